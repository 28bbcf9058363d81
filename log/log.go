// Copyright 2018 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.

// Package log provides the structured, per-module loggers used across every
// binary in this repo. Call sites look like:
//
//	var logger = log.NewModuleLogger(log.ModuleIngestor)
//	logger.Info("fetching is started", "startedCheckpoint", checkpoint, "currentBlock", currentBlock)
package log

import (
	"os"
	"sync"

	"github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the key-value structured logger handed out by NewModuleLogger.
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	// Crit logs at error level and terminates the process, mirroring the
	// rest of the pack's use of a "Crit" level for unrecoverable startup
	// failures (Fatal error kind in the taxonomy).
	Crit(msg string, kv ...interface{})
}

type moduleLogger struct {
	module string
	sugar  *zap.SugaredLogger
}

func (l *moduleLogger) Debug(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }
func (l *moduleLogger) Info(msg string, kv ...interface{})  { l.sugar.Infow(msg, kv...) }
func (l *moduleLogger) Warn(msg string, kv ...interface{})  { l.sugar.Warnw(msg, kv...) }
func (l *moduleLogger) Error(msg string, kv ...interface{}) { l.sugar.Errorw(msg, kv...) }
func (l *moduleLogger) Crit(msg string, kv ...interface{}) {
	l.sugar.Errorw(msg, kv...)
	os.Exit(1)
}

var (
	baseOnce sync.Once
	base     *zap.Logger
)

// Production selects the JSON encoder instead of the development
// (console, human-readable) default. It is read once, by the first
// NewModuleLogger call; every logger shares the encoder chosen then.
// api/debug.Setup sets it from the --jsonlogs flag.
var Production bool

func buildBase() *zap.Logger {
	if Production {
		cfg := zap.NewProductionConfig()
		logger, err := cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			// zap itself failing to build is unrecoverable at startup.
			panic(err)
		}
		return logger
	}

	// Development output goes through go-colorable so level colors survive
	// on Windows consoles and get stripped automatically when stderr isn't
	// a terminal (piped to a file, captured by a supervisor), rather than
	// leaking raw ANSI escapes.
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(colorable.NewColorableStderr()),
		zap.NewAtomicLevelAt(zapcore.DebugLevel),
	)
	return zap.New(core, zap.AddCallerSkip(1))
}

// NewModuleLogger returns a Logger scoped to module. Every package declares
// its own package-level `var logger = log.NewModuleLogger(log.ModuleX)`
// rather than sharing one global logger.
func NewModuleLogger(module Module) Logger {
	baseOnce.Do(func() {
		base = buildBase()
	})
	return &moduleLogger{
		module: string(module),
		sugar:  base.Sugar().With("module", string(module)),
	}
}
