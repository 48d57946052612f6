package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/resultgrid/internal/config"
	"github.com/ethpandaops/resultgrid/internal/ratelimit"
)

type compiledRule struct {
	rule    ratelimit.Rule
	pattern *regexp.Regexp
}

// RateLimit returns a middleware that enforces per-client request budgets
// on the paths matched by cfg.Rules. The first matching rule applies.
func RateLimit(
	log logrus.FieldLogger,
	cfg config.RateLimitingConfig,
	limiter ratelimit.Limiter,
) func(http.Handler) http.Handler {
	rules := make([]compiledRule, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		rules[i] = compiledRule{
			rule: ratelimit.Rule{
				Name:   rule.Name,
				Limit:  rule.Limit,
				Window: rule.Window,
			},
			pattern: regexp.MustCompile(rule.PathPattern),
		}
	}

	exemptNets := parseExemptIPs(cfg.ExemptIPs)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			if isExempt(ip, exemptNets) {
				next.ServeHTTP(w, r)

				return
			}

			matched := matchRule(r.URL.Path, rules)
			if matched == nil {
				next.ServeHTTP(w, r)

				return
			}

			decision, err := limiter.Allow(r.Context(), ip, matched.rule)
			if err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"ip":   ip,
					"path": r.URL.Path,
					"rule": matched.rule.Name,
				}).Error("Rate limit check failed")

				if !decision.Allowed {
					writeRateLimitError(w, "service unavailable", 0)

					return
				}

				next.ServeHTTP(w, r)

				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				retryAfter := int(time.Until(decision.ResetAt).Seconds())
				if retryAfter <= 0 {
					retryAfter = int(matched.rule.Window.Seconds())
				}

				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeRateLimitError(w, "rate limit exceeded", retryAfter)

				log.WithFields(logrus.Fields{
					"ip":          ip,
					"path":        r.URL.Path,
					"rule":        matched.rule.Name,
					"retry_after": retryAfter,
				}).Warn("Rate limit exceeded")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the caller address.
// Priority: CF-Connecting-IP > X-Forwarded-For > X-Real-IP > RemoteAddr.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")

		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}

func parseExemptIPs(exemptIPs []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(exemptIPs))

	for _, entry := range exemptIPs {
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				continue
			}

			if ip.To4() != nil {
				entry += "/32"
			} else {
				entry += "/128"
			}
		}

		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			continue
		}

		nets = append(nets, network)
	}

	return nets
}

func isExempt(ip string, exemptNets []*net.IPNet) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	for _, network := range exemptNets {
		if network.Contains(parsed) {
			return true
		}
	}

	return false
}

func matchRule(path string, rules []compiledRule) *compiledRule {
	for i := range rules {
		if rules[i].pattern.MatchString(path) {
			return &rules[i]
		}
	}

	return nil
}

func writeRateLimitError(w http.ResponseWriter, message string, retryAfter int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	response := map[string]any{
		"error":  message,
		"status": http.StatusTooManyRequests,
	}

	if retryAfter > 0 {
		response["retry_after"] = retryAfter
	}

	_ = json.NewEncoder(w).Encode(response)
}
