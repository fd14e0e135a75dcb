// Package gologger resolves the glog logging pair the push registry uses and
// bridges it onto the go-job logger contracts for the retry queue worker.
package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// LoggerName is the channel the push registry resolves its loggers under.
const LoggerName = "pushregistry"

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
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

// ResolveForJob resolves glog logger/provider then returns equivalent go-job
// adapters so the retry queue worker logs through the same sink as the client.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}

// ResolveWorkerLogging is the worker-side shorthand: it resolves under
// LoggerName and returns only the go-job pair.
func ResolveWorkerLogging(provider glog.LoggerProvider, logger glog.Logger) (job.LoggerProvider, job.Logger) {
	_, _, jobProvider, jobLogger := ResolveForJob(LoggerName, provider, logger)
	return jobProvider, jobLogger
}
