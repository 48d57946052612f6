package querycache

import (
	"encoding/json"
	"fmt"

	"github.com/ethpandaops/resultgrid/internal/query"
)

// Key identifies one cached query result. It is a comparable tuple, so two
// keys built from equal routes and equal payloads are the same map key.
type Key struct {
	Route   string
	Payload query.Payload
}

// NewKey returns the cache key for payload sent to route.
func NewKey(route string, payload query.Payload) Key {
	return Key{Route: route, Payload: payload}
}

// String renders the key for stores that index by string. Payload fields
// are marshalled in declaration order, so equal keys render identically.
func (k Key) String() string {
	data, err := json.Marshal(k.Payload)
	if err != nil {
		// Payload only holds strings, ints and bools.
		return fmt.Sprintf("%s|%+v", k.Route, k.Payload)
	}

	return k.Route + "|" + string(data)
}
