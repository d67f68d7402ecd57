// Package logging builds the structured logrus loggers shared by both services.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Field names used across services so log lines from the publisher and the
// subscriber can be joined on correlationId.
const (
	FieldService       = "service"
	FieldCorrelationID = "correlationId"
	FieldError         = "error"
	FieldStack         = "stack"
)

// Options configures New.
type Options struct {
	Service string
	Level   string
	Debug   bool
	Output  io.Writer
}

// New returns a JSON logger that stamps every entry with the service name.
func New(opts Options) *log.Logger {
	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: log.FieldMap{
			log.FieldKeyTime: "timestamp",
			log.FieldKeyMsg:  "message",
		},
	})
	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	} else {
		logger.SetOutput(os.Stdout)
	}
	logger.SetLevel(ParseLevel(opts.Level))
	if opts.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	if opts.Service != "" {
		logger.AddHook(serviceHook{service: opts.Service})
	}
	return logger
}

// ParseLevel maps a textual level to logrus, falling back to info.
func ParseLevel(level string) log.Level {
	lvl, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

type serviceHook struct {
	service string
}

func (serviceHook) Levels() []log.Level { return log.AllLevels }

func (h serviceHook) Fire(e *log.Entry) error {
	if _, ok := e.Data[FieldService]; !ok {
		e.Data[FieldService] = h.service
	}
	return nil
}
