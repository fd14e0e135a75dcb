package gologger

import (
	"context"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

type logCall struct {
	level string
	msg   string
	args  []any
}

// stubLogger records every call with its level so tests can assert which
// sink a bridged message landed on.
type stubLogger struct {
	id    string
	calls []logCall
}

func (l *stubLogger) record(level, msg string, args []any) {
	l.calls = append(l.calls, logCall{
		level: level,
		msg:   msg,
		args:  append([]any(nil), args...),
	})
}

func (l *stubLogger) Trace(msg string, args ...any) { l.record("trace", msg, args) }
func (l *stubLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *stubLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *stubLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *stubLogger) Error(msg string, args ...any) { l.record("error", msg, args) }
func (l *stubLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args) }

func (l *stubLogger) WithContext(context.Context) glog.Logger { return l }

type stubProvider struct {
	logger         *stubLogger
	requestedNames []string
}

func (p *stubProvider) GetLogger(name string) glog.Logger {
	p.requestedNames = append(p.requestedNames, name)
	if p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

var (
	_ glog.Logger         = (*stubLogger)(nil)
	_ glog.LoggerProvider = (*stubProvider)(nil)
)

func resolvedID(logger glog.Logger) string {
	if stub, ok := logger.(*stubLogger); ok {
		return stub.id
	}
	return "nop"
}

func TestResolve_PrecedenceProviderThenLoggerThenNop(t *testing.T) {
	cases := []struct {
		name         string
		provider     glog.LoggerProvider
		logger       glog.Logger
		want         string
		wantProvider bool
	}{
		{
			name:         "provider wins over direct logger",
			provider:     &stubProvider{logger: &stubLogger{id: "via-provider"}},
			logger:       &stubLogger{id: "direct"},
			want:         "via-provider",
			wantProvider: true,
		},
		{
			name:         "direct logger when provider is nil",
			logger:       &stubLogger{id: "direct"},
			want:         "direct",
			wantProvider: true,
		},
		{
			name: "nop when nothing is wired",
			want: "nop",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider, logger := Resolve(LoggerName, tc.provider, tc.logger)
			if logger == nil {
				t.Fatalf("resolved logger is nil")
			}
			if got := resolvedID(logger); got != tc.want {
				t.Fatalf("resolved logger = %q, want %q", got, tc.want)
			}
			if tc.wantProvider && provider == nil {
				t.Fatalf("expected a provider wrapper alongside the logger")
			}
		})
	}
}

func TestResolveForJob_BridgesBothJobContracts(t *testing.T) {
	sink := &stubLogger{id: "sink"}
	provider := &stubProvider{logger: sink}

	_, _, jobProvider, jobLogger := ResolveForJob(LoggerName, provider, nil)
	if jobProvider == nil {
		t.Fatalf("expected go-job provider bridge")
	}
	if jobLogger == nil {
		t.Fatalf("expected go-job logger bridge")
	}

	jobProvider.GetLogger(LoggerName).Info("retry enqueued", "operation", "enable")
	jobLogger.Info("retry drained", "operation", "disable")

	if len(sink.calls) != 2 {
		t.Fatalf("expected both bridge paths to reach the sink, got %d calls", len(sink.calls))
	}
	enqueued := sink.calls[0]
	if enqueued.level != "info" || enqueued.msg != "retry enqueued" {
		t.Fatalf("unexpected provider-path call: %+v", enqueued)
	}
	if enqueued.args[0] != "operation" || enqueued.args[1] != "enable" {
		t.Fatalf("unexpected provider-path args: %#v", enqueued.args)
	}
	if drained := sink.calls[1]; drained.msg != "retry drained" {
		t.Fatalf("unexpected logger-path call: %+v", drained)
	}
}

func TestResolveWorkerLogging_ResolvesUnderLoggerName(t *testing.T) {
	sink := &stubLogger{id: "sink"}
	provider := &stubProvider{logger: sink}

	jobProvider, jobLogger := ResolveWorkerLogging(provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected the worker logging pair, got provider=%v logger=%v", jobProvider, jobLogger)
	}
	if len(provider.requestedNames) == 0 || provider.requestedNames[0] != LoggerName {
		t.Fatalf("expected resolution under %q, got %v", LoggerName, provider.requestedNames)
	}
}
