package seo

// Logger provides structured logging for the redirect and history services.
// The args follow slog conventions: alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger is a Logger that discards all output. Use in tests.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// componentLogger tags every record with the emitting component.
type componentLogger struct {
	next      Logger
	component string
}

// WithComponent returns a Logger that adds component=name to each record.
func WithComponent(l Logger, name string) Logger {
	if l == nil {
		return NewNopLogger()
	}
	return &componentLogger{next: l, component: name}
}

func (c *componentLogger) Debug(msg string, args ...any) { c.next.Debug(msg, c.tag(args)...) }
func (c *componentLogger) Info(msg string, args ...any)  { c.next.Info(msg, c.tag(args)...) }
func (c *componentLogger) Warn(msg string, args ...any)  { c.next.Warn(msg, c.tag(args)...) }
func (c *componentLogger) Error(msg string, args ...any) { c.next.Error(msg, c.tag(args)...) }

func (c *componentLogger) tag(args []any) []any {
	return append([]any{"component", c.component}, args...)
}
