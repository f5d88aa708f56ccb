// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package config

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// NewLogger builds the process logger and installs it as log's default
func NewLogger(c LogConfig) *log.Logger {
	return newLogger(os.Stderr, c)
}

func newLogger(w io.Writer, c LogConfig) *log.Logger {
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		level = log.InfoLevel
	}

	opts := log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          "efchat",
	}
	if c.Format == "json" {
		opts.Formatter = log.JSONFormatter
	}

	logger := log.NewWithOptions(w, opts)
	log.SetDefault(logger)
	return logger
}
