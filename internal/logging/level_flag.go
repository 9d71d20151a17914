package logging

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const verbosityFlagName = "verbosity"

var levelStrings = map[string]zapcore.Level{
	"debug": zap.DebugLevel,
	"info":  zap.InfoLevel,
	"error": zap.ErrorLevel,
}

// StringToLevel parses a named level or a positive integer verbosity into a
// zap level. Integers map to increasingly verbose debug levels.
func StringToLevel(value string, defaultLevel zapcore.Level) (zapcore.Level, error) {
	if level, named := levelStrings[strings.ToLower(value)]; named {
		return level, nil
	}

	verbosity, parseErr := strconv.Atoi(value)
	if parseErr != nil || verbosity <= 0 {
		return defaultLevel, fmt.Errorf("invalid log level %q", value)
	}

	// Zap counts verbosity downward.
	return zapcore.Level(int8(-verbosity)), nil
}

// LevelFlagValue is a pflag value that forwards parsed levels to the logger.
type LevelFlagValue struct {
	onLevelAvailable func(zapcore.Level)
	value            string
}

var _ pflag.Value = &LevelFlagValue{}

func (lfv *LevelFlagValue) Set(flagValue string) error {
	level, parseErr := StringToLevel(flagValue, zapcore.InfoLevel)
	if parseErr != nil {
		return parseErr
	}
	lfv.onLevelAvailable(level)
	lfv.value = flagValue
	return nil
}

func (lfv *LevelFlagValue) String() string {
	return lfv.value
}

func (*LevelFlagValue) Type() string {
	return "level"
}

// AddLevelFlag registers the -v/--verbosity flag wired to l's console level.
func (l *Logger) AddLevelFlag(fs *pflag.FlagSet) {
	levelVal := LevelFlagValue{
		onLevelAvailable: func(level zapcore.Level) {
			l.SetLevel(level)
		},
	}
	fs.VarP(&levelVal, verbosityFlagName, "v",
		"Logging verbosity (debug, info, error, or a positive integer for increasing debug detail)")
}
