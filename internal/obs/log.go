package obs

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggerOnce sync.Once
	logger     *logrus.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *logrus.Logger {
	loggerOnce.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetLevel(logrus.InfoLevel)
	})
	return logger
}

// ConfigureLogger applies level and formatting options to the shared logger.
func ConfigureLogger(level string, pretty bool) {
	l := Logger()
	SetLogLevel(l, level)
	l.SetFormatter(&logrus.JSONFormatter{PrettyPrint: pretty})
}

// SetLogLevel maps a textual level onto logger, falling back to info.
func SetLogLevel(l *logrus.Logger, level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		l.SetLevel(logrus.ErrorLevel)
	case "warn", "warning":
		l.SetLevel(logrus.WarnLevel)
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "trace":
		l.SetLevel(logrus.TraceLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
}

// LogRequest emits one structured entry with common HTTP fields.
func LogRequest(fields logrus.Fields) {
	entry := Logger().WithFields(fields)
	status, _ := fields["status"].(int)
	switch {
	case status >= 500:
		entry.Error("http request")
	case status >= 400:
		entry.Warn("http request")
	default:
		entry.Info("http request")
	}
}
