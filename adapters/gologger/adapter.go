package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Loggers is the resolved logging surface for one runtime: the glog
// provider/logger pair plus their go-job equivalents.
type Loggers struct {
	Name        string
	Provider    glog.LoggerProvider
	Logger      glog.Logger
	JobProvider job.LoggerProvider
	JobLogger   job.Logger
}

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) Loggers {
	name = strings.TrimSpace(name)
	resolvedProvider, resolvedLogger := glog.Resolve(name, provider, logger)
	return Loggers{
		Name:        name,
		Provider:    resolvedProvider,
		Logger:      resolvedLogger,
		JobProvider: ToJobProvider(resolvedProvider),
		JobLogger:   ToJobLogger(resolvedLogger),
	}
}

// Named returns the logger for one component, e.g. "payhooks.webhooks".
func (l Loggers) Named(component string) glog.Logger {
	component = strings.TrimSpace(component)
	if l.Provider == nil {
		if l.Logger != nil {
			return l.Logger
		}
		return glog.Nop()
	}
	name := l.Name
	if component != "" {
		if name != "" {
			name += "."
		}
		name += component
	}
	if logger := l.Provider.GetLogger(name); logger != nil {
		return logger
	}
	return glog.Nop()
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}
