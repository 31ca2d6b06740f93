package gologger

import (
	"context"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestResolveDeterministicFallback(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	resolved := Resolve("payhooks", provider, loggerOnly)
	if got := resolved.Logger.(*capturingLogger); got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}

	resolved = Resolve("payhooks", nil, loggerOnly)
	if got := resolved.Logger.(*capturingLogger); got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolved.Provider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	resolved = Resolve("payhooks", nil, nil)
	if resolved.Logger == nil || resolved.JobLogger == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestNamedUsesComponentLoggerName(t *testing.T) {
	provider := &capturingProvider{logger: &capturingLogger{id: "provider"}}
	loggers := Resolve("payhooks", provider, nil)

	if loggers.Named("webhooks") == nil {
		t.Fatalf("expected component logger")
	}
	if provider.lastName != "payhooks.webhooks" {
		t.Fatalf("expected dotted component name, got %q", provider.lastName)
	}

	loggers.Named("")
	if provider.lastName != "payhooks" {
		t.Fatalf("expected runtime name for empty component, got %q", provider.lastName)
	}

	if (Loggers{}).Named("webhooks") == nil {
		t.Fatalf("expected nop logger for empty loggers")
	}
}

func TestGoJobBridgeCompatibility(t *testing.T) {
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	loggers := Resolve("payhooks", provider, nil)
	if loggers.JobProvider == nil {
		t.Fatalf("expected go-job provider bridge")
	}
	if loggers.JobLogger == nil {
		t.Fatalf("expected go-job logger bridge")
	}

	bridged := loggers.JobProvider.GetLogger("payhooks.retry")
	bridged.Info("hello", "k", "v")

	captured := providerLogger.lastInfo
	if captured.msg != "hello" {
		t.Fatalf("expected bridged message, got %q", captured.msg)
	}
	if captured.args[0] != "k" || captured.args[1] != "v" {
		t.Fatalf("expected bridged args, got %#v", captured.args)
	}
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger   *capturingLogger
	lastName string
}

func (p *capturingProvider) GetLogger(name string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	p.lastName = name
	return p.logger
}

type infoCall struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id       string
	lastInfo infoCall
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{
		msg:  msg,
		args: append([]any(nil), args...),
	}
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
