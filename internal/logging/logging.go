package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const serviceName = "chatapp"

var (
	base = logrus.New()
	env  = "development"
)

func init() {
	base.SetFormatter(&logrus.JSONFormatter{})
	base.SetOutput(os.Stdout)
}

// Setup configures the process-wide logger. Unknown levels fall back to info.
func Setup(level, environment string) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)
	if environment != "" {
		env = environment
	}
}

func SetOutput(w io.Writer) { base.SetOutput(w) }

// For returns an entry tagged with the component that emits it.
func For(component string) *logrus.Entry {
	return base.WithFields(logrus.Fields{
		"service":     serviceName,
		"component":   component,
		"environment": env,
	})
}
