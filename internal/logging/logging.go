// Package logging builds the process logger: human-readable console output
// on stderr, plus an optional machine-readable diagnostics file enabled
// through the environment. Everything downstream consumes logr.Logger.
package logging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// DiagnosticsLogFolderEnv names the folder diagnostics logs are written
	// to (defaults to a temp folder).
	DiagnosticsLogFolderEnv = "DEBUGGER_DIAGNOSTICS_LOG_FOLDER"

	// DiagnosticsLogLevelEnv enables the diagnostics log and sets its level.
	DiagnosticsLogLevelEnv = "DEBUGGER_DIAGNOSTICS_LOG_LEVEL"
)

var defaultLogPath = filepath.Join(os.TempDir(), "debugger-cli", "logs")

// Logger couples the logr front end with the knobs the CLI needs: a mutable
// console level and an explicit flush.
type Logger struct {
	logr.Logger
	atomicLevel zap.AtomicLevel
	flush       func()
}

// New builds the process logger named name.
func New(name string) *Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	consoleAtomicLevel := zap.NewAtomicLevel()

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), consoleAtomicLevel),
	}

	var diagnosticsErr error
	if fileCore, coreErr := diagnosticsLogCore(name, encoderConfig); coreErr != nil {
		if !errors.Is(coreErr, errDiagnosticsLogNotEnabled) {
			diagnosticsErr = coreErr
		}
	} else {
		cores = append(cores, fileCore)
	}

	zapLogger := zap.New(zapcore.NewTee(cores...))
	log := zapr.NewLogger(zapLogger).WithName(name)

	if diagnosticsErr != nil {
		log.Error(diagnosticsErr, "failed to enable diagnostics log output")
	}

	return &Logger{
		Logger:      log,
		atomicLevel: consoleAtomicLevel,
		flush: func() {
			_ = zapLogger.Sync()
		},
	}
}

// SetLevel adjusts the console verbosity.
func (l *Logger) SetLevel(level zapcore.Level) {
	l.atomicLevel.SetLevel(level)
}

// Flush drains buffered log output. Call before process exit.
func (l *Logger) Flush() {
	l.flush()
}

var errDiagnosticsLogNotEnabled = errors.New("diagnostics log not enabled")

func diagnosticsLogCore(name string, encoderConfig zapcore.EncoderConfig) (zapcore.Core, error) {
	levelValue, found := os.LookupEnv(DiagnosticsLogLevelEnv)
	if !found {
		return nil, errDiagnosticsLogNotEnabled
	}

	logLevel, levelErr := StringToLevel(levelValue, zapcore.ErrorLevel)
	if levelErr != nil {
		return nil, levelErr
	}

	logFolder, folderErr := ensureDiagnosticsLogFolder()
	if folderErr != nil {
		return nil, folderErr
	}

	logName := fmt.Sprintf("%s-%d.log", name, os.Getpid())
	logOutput, openErr := os.OpenFile(
		filepath.Join(logFolder, logName),
		os.O_RDWR|os.O_CREATE|os.O_APPEND,
		0o600,
	)
	if openErr != nil {
		return nil, fmt.Errorf("failed to create log file: %w", openErr)
	}

	// Machine readable, unlike the console core.
	logEncoder := zapcore.NewJSONEncoder(encoderConfig)
	return zapcore.NewCore(logEncoder, zapcore.AddSync(logOutput), zap.NewAtomicLevelAt(logLevel)), nil
}

func ensureDiagnosticsLogFolder() (string, error) {
	logFolder, found := os.LookupEnv(DiagnosticsLogFolderEnv)
	if !found {
		logFolder = defaultLogPath
	}

	info, statErr := os.Stat(logFolder)
	if errors.Is(statErr, fs.ErrNotExist) {
		if mkdirErr := os.MkdirAll(logFolder, 0o700); mkdirErr != nil {
			return "", fmt.Errorf("failed to create the diagnostics log folder %s: %w", logFolder, mkdirErr)
		}
	} else if statErr != nil {
		return "", fmt.Errorf("failed to inspect the diagnostics log folder %s: %w", logFolder, statErr)
	} else if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory and cannot hold logs", logFolder)
	}

	return logFolder, nil
}
