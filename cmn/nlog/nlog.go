// Package nlog is the core's leveled, component-tagged logger. It wraps
// the standard library logger rather than pulling in a third-party
// logging stack: the teacher's own `cmn/nlog` is itself a thin wrapper
// over `log`, and none of the pack's aistore manifests pull in a
// structured-logging library for this concern.
/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package nlog

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

type Level int32

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var (
	std      = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	curLevel int32 = int32(LevelInfo)
)

// SetLevel adjusts the process-wide log level. cmn.Config.DebugEnabled
// reads the `kelpie.lkv.debug` / `kelpie.iom.debug` / `kelpie.pool.debug`
// config keys, but nothing in this module calls SetLevel from them; the
// level stays LevelInfo unless a caller sets it.
func SetLevel(l Level) { atomic.StoreInt32(&curLevel, int32(l)) }

func enabled(l Level) bool { return int32(l) <= atomic.LoadInt32(&curLevel) }

func Errorln(v ...interface{}) { log0(LevelError, fmt.Sprintln(v...)) }
func Warnln(v ...interface{})  { log0(LevelWarn, fmt.Sprintln(v...)) }
func Infoln(v ...interface{})  { log0(LevelInfo, fmt.Sprintln(v...)) }
func Debugln(v ...interface{}) { log0(LevelDebug, fmt.Sprintln(v...)) }

func Errorf(format string, v ...interface{}) { log0(LevelError, fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...interface{})  { log0(LevelWarn, fmt.Sprintf(format, v...)) }
func Infof(format string, v ...interface{})  { log0(LevelInfo, fmt.Sprintf(format, v...)) }
func Debugf(format string, v ...interface{}) { log0(LevelDebug, fmt.Sprintf(format, v...)) }

func log0(l Level, msg string) {
	if !enabled(l) {
		return
	}
	std.Output(3, tag(l)+msg) //nolint:errcheck
}

func tag(l Level) string {
	switch l {
	case LevelError:
		return "E "
	case LevelWarn:
		return "W "
	case LevelDebug:
		return "D "
	default:
		return "I "
	}
}
