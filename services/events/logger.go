package events

import (
	"github.com/ThreeDotsLabs/watermill"

	"github.com/trezcool/classboard/core"
)

// loggerAdapter routes watermill logs to a core.Logger.
type loggerAdapter struct {
	logger core.Logger
	fields watermill.LogFields
}

func NewLoggerAdapter(logger core.Logger) watermill.LoggerAdapter {
	return &loggerAdapter{logger: logger}
}

func (l *loggerAdapter) extras(fields watermill.LogFields) map[string]interface{} {
	out := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (l *loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	l.logger.Error("watermill: "+msg, err, l.extras(fields))
}

func (l *loggerAdapter) Info(msg string, fields watermill.LogFields) {
	l.logger.Info("watermill: "+msg, l.extras(fields))
}

func (l *loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	l.logger.Debug("watermill: "+msg, l.extras(fields))
}

// Trace is too chatty for anything but debug.
func (l *loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	l.logger.Debug("watermill: "+msg, l.extras(fields))
}

func (l *loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &loggerAdapter{logger: l.logger, fields: l.fields.Add(fields)}
}
