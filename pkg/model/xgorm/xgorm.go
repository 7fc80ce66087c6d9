// Package xgorm adapts gorm's logger interface onto xlog.
package xgorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tokenbank/pkg/xlog"

	gl "gorm.io/gorm/logger"
)

var ErrRecordNotFound = gl.ErrRecordNotFound

const (
	Silent = gl.Silent
	Error  = gl.Error
	Warn   = gl.Warn
	Info   = gl.Info
)

type (
	LogLevel  = gl.LogLevel
	Writer    = gl.Writer
	Config    = gl.Config
	Interface = gl.Interface
)

var zapLogger = xlog.GetLogger()

func New(writer Writer, config Config) Interface {
	return &logger{
		Writer:       writer,
		Config:       config,
		infoStr:      "%s [info] ",
		warnStr:      "%s [warn] ",
		errStr:       "%s [error] ",
		traceStr:     "%s [%.3fms] [rows:%v] %s",
		traceWarnStr: "%s %s [%.3fms] [rows:%v] %s",
		traceErrStr:  "%s %s [%.3fms] [rows:%v] %s",
	}
}

type logger struct {
	Writer
	Config
	infoStr, warnStr, errStr            string
	traceStr, traceErrStr, traceWarnStr string
}

func (l *logger) LogMode(level LogLevel) Interface {
	newlogger := *l
	newlogger.LogLevel = level
	return &newlogger
}

func (l logger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Info {
		zapLogger.Infof(l.infoStr+msg, append([]interface{}{""}, data...)...)
	}
}

func (l logger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Warn {
		zapLogger.Warningf(l.warnStr+msg, append([]interface{}{""}, data...)...)
	}
}

func (l logger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Error {
		zapLogger.Errorf(l.errStr+msg, append([]interface{}{""}, data...)...)
	}
}

// Trace prints the executed sql statement
func (l logger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= Silent {
		return
	}

	elapsed := time.Since(begin)
	ms := float64(elapsed.Nanoseconds()) / 1e6
	switch {
	case err != nil && l.LogLevel >= Error && (!errors.Is(err, ErrRecordNotFound) || !l.IgnoreRecordNotFoundError):
		sql, rows := fc()
		zapLogger.Errorf(l.traceErrStr, "", err, ms, rowsValue(rows), sql)
	case elapsed > l.SlowThreshold && l.SlowThreshold != 0 && l.LogLevel >= Warn:
		sql, rows := fc()
		slowLog := fmt.Sprintf("SLOW SQL >= %v", l.SlowThreshold)
		zapLogger.Warningf(l.traceWarnStr, "", slowLog, ms, rowsValue(rows), sql)
	case l.LogLevel == Info:
		sql, rows := fc()
		zapLogger.Infof(l.traceStr, "", ms, rowsValue(rows), sql)
	}
}

func rowsValue(rows int64) interface{} {
	if rows == -1 {
		return "-"
	}
	return rows
}
