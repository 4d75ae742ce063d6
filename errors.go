/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"log/slog"
	"net/http"
)

// logf and errorf write through the default slog logger, which the root
// command installs from newLogger.
func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	slog.Info(fmt.Sprintf(format, args...))
}

// errorf is printed regardless of --verbose.
func errorf(format string, args ...any) {
	slog.Error(fmt.Sprintf(format, args...))
}

func drainErrors(errs <-chan error) {
	for err := range errs {
		errorf("%v", err)
	}
}

func serverError(cfg *Config) func(http.ResponseWriter, *http.Request, any) {
	return func(w http.ResponseWriter, r *http.Request, i any) {
		errorf("panic serving %s %s to %s: %v", r.Method, r.URL.Path, realIP(r), i)

		_, _ = writeText(cfg, w, http.StatusInternalServerError, "An error has occurred. Please try again.\n")
	}
}
