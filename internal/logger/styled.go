package logger

import (
	"fmt"
	"log/slog"

	"github.com/pterm/pterm"

	"github.com/arcbridge/gatekeeper/internal/core/domain"
	"github.com/arcbridge/gatekeeper/theme"
)

// StyledLogger is the logging surface the rest of the gatekeeper codes
// against: plain slog methods plus a handful of domain-aware helpers that
// colourise endpoint names and health states when pretty output is on.
// PrettyStyledLogger and PlainStyledLogger are the two implementations.
type StyledLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	InfoWithCount(msg string, count int, args ...any)
	InfoHealthStatus(msg, endpoint string, status domain.HealthStatus, args ...any)
	WarnHealthStatus(msg, endpoint string, status domain.HealthStatus, args ...any)

	With(args ...any) StyledLogger
	GetUnderlying() *slog.Logger
}

// PrettyStyledLogger implements StyledLogger with pterm-coloured messages.
type PrettyStyledLogger struct {
	logger *slog.Logger
	theme  *theme.Theme
}

func NewPrettyStyledLogger(l *slog.Logger, t *theme.Theme) *PrettyStyledLogger {
	return &PrettyStyledLogger{logger: l, theme: t}
}

func (sl *PrettyStyledLogger) Debug(msg string, args ...any) { sl.logger.Debug(msg, args...) }
func (sl *PrettyStyledLogger) Info(msg string, args ...any)  { sl.logger.Info(msg, args...) }
func (sl *PrettyStyledLogger) Warn(msg string, args ...any)  { sl.logger.Warn(msg, args...) }
func (sl *PrettyStyledLogger) Error(msg string, args ...any) { sl.logger.Error(msg, args...) }

func (sl *PrettyStyledLogger) InfoWithCount(msg string, count int, args ...any) {
	styled := fmt.Sprintf("%s %s", msg, sl.theme.Counts.Sprint("(", count, ")"))
	sl.logger.Info(styled, args...)
}

func (sl *PrettyStyledLogger) InfoHealthStatus(msg, endpoint string, status domain.HealthStatus, args ...any) {
	styled := fmt.Sprintf("%s %s is %s", msg, sl.theme.Endpoint.Sprint(endpoint), sl.statusStyle(status).Sprint(string(status)))
	sl.logger.Info(styled, args...)
}

func (sl *PrettyStyledLogger) WarnHealthStatus(msg, endpoint string, status domain.HealthStatus, args ...any) {
	styled := fmt.Sprintf("%s %s is %s", msg, sl.theme.Endpoint.Sprint(endpoint), sl.statusStyle(status).Sprint(string(status)))
	sl.logger.Warn(styled, args...)
}

func (sl *PrettyStyledLogger) statusStyle(status domain.HealthStatus) *pterm.Style {
	switch status {
	case domain.StatusHealthy:
		return sl.theme.HealthHealthy
	case domain.StatusUnhealthy:
		return sl.theme.HealthUnhealthy
	default:
		return sl.theme.HealthUnknown
	}
}

func (sl *PrettyStyledLogger) GetUnderlying() *slog.Logger { return sl.logger }

func (sl *PrettyStyledLogger) With(args ...any) StyledLogger {
	return &PrettyStyledLogger{logger: sl.logger.With(args...), theme: sl.theme}
}

// PlainStyledLogger implements StyledLogger without any ANSI styling, used
// for JSON / non-TTY output.
type PlainStyledLogger struct {
	logger *slog.Logger
}

func NewPlainStyledLogger(l *slog.Logger) *PlainStyledLogger {
	return &PlainStyledLogger{logger: l}
}

func (sl *PlainStyledLogger) Debug(msg string, args ...any) { sl.logger.Debug(msg, args...) }
func (sl *PlainStyledLogger) Info(msg string, args ...any)  { sl.logger.Info(msg, args...) }
func (sl *PlainStyledLogger) Warn(msg string, args ...any)  { sl.logger.Warn(msg, args...) }
func (sl *PlainStyledLogger) Error(msg string, args ...any) { sl.logger.Error(msg, args...) }

func (sl *PlainStyledLogger) InfoWithCount(msg string, count int, args ...any) {
	sl.logger.Info(fmt.Sprintf("%s (%d)", msg, count), args...)
}

func (sl *PlainStyledLogger) InfoHealthStatus(msg, endpoint string, status domain.HealthStatus, args ...any) {
	sl.logger.Info(fmt.Sprintf("%s %s is %s", msg, endpoint, status), args...)
}

func (sl *PlainStyledLogger) WarnHealthStatus(msg, endpoint string, status domain.HealthStatus, args ...any) {
	sl.logger.Warn(fmt.Sprintf("%s %s is %s", msg, endpoint, status), args...)
}

func (sl *PlainStyledLogger) GetUnderlying() *slog.Logger { return sl.logger }

func (sl *PlainStyledLogger) With(args ...any) StyledLogger {
	return &PlainStyledLogger{logger: sl.logger.With(args...)}
}

// NewWithTheme builds the plain slog.Logger (for packages that only need
// structured logging) alongside a StyledLogger picked to match cfg.
func NewWithTheme(cfg *Config) (*slog.Logger, StyledLogger, func(), error) {
	l, cleanup, err := New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	var styled StyledLogger
	if cfg.PrettyLogs {
		styled = NewPrettyStyledLogger(l, theme.GetTheme(cfg.Theme))
	} else {
		styled = NewPlainStyledLogger(l)
	}

	return l, styled, cleanup, nil
}
