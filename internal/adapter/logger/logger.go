package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type Logger interface {
	Info(action, message, requestID string, details map[string]interface{})
	Debug(action, message, requestID string, details map[string]interface{})
	Error(action, message, requestID string, details map[string]interface{}, err error)
}

type zeroLogger struct {
	log zerolog.Logger
}

// New writes JSON lines to stdout tagged with the service mode and host.
func New(service, level string) Logger {
	return NewWithWriter(service, level, os.Stdout)
}

func NewWithWriter(service, level string, w io.Writer) Logger {
	hostname, _ := os.Hostname()

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.DebugLevel
	}

	zl := zerolog.New(zerolog.SyncWriter(w)).
		Level(lvl).
		With().
		Timestamp().
		Str("service", service).
		Str("hostname", hostname).
		Logger()

	return &zeroLogger{log: zl}
}

// Nop discards everything.
func Nop() Logger {
	return &zeroLogger{log: zerolog.Nop()}
}

func (l *zeroLogger) Info(action, message, requestID string, details map[string]interface{}) {
	l.write(l.log.Info(), action, message, requestID, details)
}

func (l *zeroLogger) Debug(action, message, requestID string, details map[string]interface{}) {
	l.write(l.log.Debug(), action, message, requestID, details)
}

func (l *zeroLogger) Error(action, message, requestID string, details map[string]interface{}, err error) {
	l.write(l.log.Error().Err(err), action, message, requestID, details)
}

func (l *zeroLogger) write(evt *zerolog.Event, action, message, requestID string, details map[string]interface{}) {
	if evt == nil {
		return
	}
	evt = evt.Str("action", action).Str("request_id", requestID)
	if len(details) > 0 {
		evt = evt.Fields(map[string]interface{}{"details": details})
	}
	evt.Msg(message)
}
