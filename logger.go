package auth

// LoggerProvider hands out named loggers so components can share a single
// logging backend without importing it directly.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// LoggerProviderFunc adapts a function into a LoggerProvider.
type LoggerProviderFunc func(name string) Logger

// GetLogger satisfies the LoggerProvider interface.
func (f LoggerProviderFunc) GetLogger(name string) Logger {
	if f == nil {
		return defLogger{}
	}
	return f(name)
}

// ResolveLogger picks the effective logger for a component: an explicit
// logger wins, then a provider-issued named logger, then the default.
// It returns both so fluent WithLogger/WithLoggerProvider setters can keep
// provider and logger in sync.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if logger != nil {
		return provider, logger
	}

	if provider != nil {
		if l := provider.GetLogger(name); l != nil {
			return provider, l
		}
	}

	return provider, defLogger{}
}
