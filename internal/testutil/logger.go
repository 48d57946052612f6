package testutil

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// VerboseEnv enables test log output at debug level when set.
const VerboseEnv = "RESULTGRID_TEST_VERBOSE"

// NewTestLogger creates a logger that discards output unless VerboseEnv
// is set.
func NewTestLogger() *logrus.Logger {
	log := logrus.New()

	if os.Getenv(VerboseEnv) != "" {
		log.SetLevel(logrus.DebugLevel)

		return log
	}

	log.SetOutput(io.Discard)

	return log
}

// NewCapturingLogger returns a discarding logger whose entries are recorded
// on the returned hook, for asserting on structured fields.
func NewCapturingLogger() (*logrus.Logger, *test.Hook) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.DebugLevel)

	return log, test.NewLocal(log)
}
