// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package logging provides the logger interface abstraction
// and implementation for rafflekit. It uses logrus under the hood.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type Logger interface {
	Tracef(format string, args ...any)
	Trace(args ...any)
	Debugf(format string, args ...any)
	Debug(args ...any)
	Infof(format string, args ...any)
	Info(args ...any)
	Warningf(format string, args ...any)
	Warning(args ...any)
	Errorf(format string, args ...any)
	Error(args ...any)
	WithField(key string, value any) *logrus.Entry
	WithFields(fields logrus.Fields) *logrus.Entry
	WriterLevel(logrus.Level) *io.PipeWriter
	NewEntry() *logrus.Entry
	Metrics() []prometheus.Collector
}

type logger struct {
	*logrus.Logger
	metrics metrics
}

func New(w io.Writer, level logrus.Level) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.Formatter = &logrus.TextFormatter{
		FullTimestamp: true,
	}
	metrics := newMetrics()
	l.AddHook(metrics)
	return &logger{
		Logger:  l,
		metrics: metrics,
	}
}

func (l *logger) NewEntry() *logrus.Entry {
	return logrus.NewEntry(l.Logger)
}

// ParseVerbosity maps the verbosity flag values to logrus levels. Both the
// named levels and the numeric 0-5 scale are accepted.
func ParseVerbosity(v string) (logrus.Level, bool, error) {
	switch strings.ToLower(v) {
	case "0", "silent":
		return 0, true, nil
	case "1", "error":
		return logrus.ErrorLevel, false, nil
	case "2", "warn":
		return logrus.WarnLevel, false, nil
	case "3", "info":
		return logrus.InfoLevel, false, nil
	case "4", "debug":
		return logrus.DebugLevel, false, nil
	case "5", "trace":
		return logrus.TraceLevel, false, nil
	default:
		return 0, false, fmt.Errorf("unknown verbosity level %q", v)
	}
}
