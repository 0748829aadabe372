package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// LogrusCollector is a logrus hook to collect log metrics using prometheus.
type LogrusCollector struct {
	counterVec *prometheus.CounterVec
}

var supportedLevels = []logrus.Level{logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel}

const (
	prefixKey     = "prefix"
	defaultPrefix = "global"
)

// NewLogrusCollector register internal metrics and return a logrus hook to
// collect log metrics. This function can be called only once, if called more
// than once it will panic because it's not possible to register the same
// metric twice.
func NewLogrusCollector() *LogrusCollector {
	counterVec := promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "log_entries_total",
		Help: "Total number of log messages.",
	}, []string{"level", prefixKey})
	return &LogrusCollector{
		counterVec: counterVec,
	}
}

// Fire is called on every log call.
func (hook *LogrusCollector) Fire(entry *logrus.Entry) error {
	prefix := defaultPrefix
	if prefixValue, ok := entry.Data[prefixKey]; ok {
		prefix = prefixValue.(string)
	}
	hook.counterVec.WithLabelValues(entry.Level.String(), prefix).Inc()
	return nil
}

// Levels return the levels this hook is registered for.
func (hook *LogrusCollector) Levels() []logrus.Level {
	return supportedLevels
}
