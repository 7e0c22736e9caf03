package client

import (
	"fmt"
	"log/slog"
)

// slogLogger routes resty's diagnostics into the structured log.
type slogLogger struct {
	l *slog.Logger
}

func (s slogLogger) Errorf(format string, v ...any) {
	s.l.Error(fmt.Sprintf(format, v...))
}

func (s slogLogger) Warnf(format string, v ...any) {
	s.l.Warn(fmt.Sprintf(format, v...))
}

func (s slogLogger) Debugf(format string, v ...any) {
	s.l.Debug(fmt.Sprintf(format, v...))
}
