package logging

import (
	"go.uber.org/zap/zapcore"
)

// NewMultiCore tees output to a console writer and an optional file writer.
//
// The file output always uses JSON encoding. The console output is colored
// and human-readable in development mode and JSON otherwise. A nil
// fileWriter yields a console-only core.
//
// Example:
//
//	core := NewMultiCore(zapcore.InfoLevel, zapcore.Lock(os.Stdout), NewFileWriter("stylizer.log"), false)
//	logger := zap.New(core)
func NewMultiCore(level zapcore.Level, consoleWriter, fileWriter zapcore.WriteSyncer, isDev bool) zapcore.Core {
	var consoleEncoder zapcore.Encoder
	if isDev {
		consoleEncoder = zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(NewEncoderConfig())
	}
	consoleCore := zapcore.NewCore(consoleEncoder, consoleWriter, level)

	if fileWriter == nil {
		return consoleCore
	}

	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(NewEncoderConfig()),
		fileWriter,
		level,
	)
	return zapcore.NewTee(consoleCore, fileCore)
}
