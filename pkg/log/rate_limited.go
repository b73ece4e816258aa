// Copyright 2026 The bufhand Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// LimitedLogger forwards to another Logger at a bounded rate and counts the
// messages it drops.
type LimitedLogger struct {
	logger     Logger
	limit      *rate.Limiter
	suppressed atomic.Int64
}

var _ Logger = (*LimitedLogger)(nil)

// BurstLimitedLogger returns a Logger that passes up to burst messages to
// logger back to back, then one per every.
func BurstLimitedLogger(logger Logger, every time.Duration, burst int) *LimitedLogger {
	return &LimitedLogger{
		logger: logger,
		limit:  rate.NewLimiter(rate.Every(every), burst),
	}
}

func (l *LimitedLogger) allow() bool {
	if l.limit.Allow() {
		return true
	}
	l.suppressed.Add(1)
	return false
}

// Debugf implements Logger.Debugf.
func (l *LimitedLogger) Debugf(format string, v ...any) {
	if l.allow() {
		l.logger.Debugf(format, v...)
	}
}

// Infof implements Logger.Infof.
func (l *LimitedLogger) Infof(format string, v ...any) {
	if l.allow() {
		l.logger.Infof(format, v...)
	}
}

// Warningf implements Logger.Warningf.
func (l *LimitedLogger) Warningf(format string, v ...any) {
	if l.allow() {
		l.logger.Warningf(format, v...)
	}
}

// IsLogging implements Logger.IsLogging.
func (l *LimitedLogger) IsLogging(level Level) bool {
	return l.logger.IsLogging(level)
}

// Suppressed returns the number of messages dropped so far.
func (l *LimitedLogger) Suppressed() int64 {
	return l.suppressed.Load()
}

// Flush reports the dropped messages at level, if any, and resets the
// count.
func (l *LimitedLogger) Flush(level Level) {
	n := l.suppressed.Swap(0)
	if n == 0 {
		return
	}
	switch level {
	case Debug:
		l.logger.Debugf("%d messages suppressed", n)
	case Info:
		l.logger.Infof("%d messages suppressed", n)
	default:
		l.logger.Warningf("%d messages suppressed", n)
	}
}
