package logging

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestStringToLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    zapcore.Level
		wantErr bool
	}{
		{input: "debug", want: zapcore.DebugLevel},
		{input: "INFO", want: zapcore.InfoLevel},
		{input: "error", want: zapcore.ErrorLevel},
		{input: "1", want: zapcore.Level(-1)},
		{input: "6", want: zapcore.Level(-6)},
		{input: "0", wantErr: true},
		{input: "-3", wantErr: true},
		{input: "loud", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			level, parseErr := StringToLevel(tt.input, zapcore.ErrorLevel)
			if tt.wantErr {
				assert.Error(t, parseErr)
				return
			}
			require.NoError(t, parseErr)
			assert.Equal(t, tt.want, level)
		})
	}
}

func TestAddLevelFlag(t *testing.T) {
	t.Parallel()

	log := New("test")
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	log.AddLevelFlag(fs)

	require.NoError(t, fs.Parse([]string{"-v=debug"}))
	assert.True(t, log.atomicLevel.Enabled(zapcore.DebugLevel))

	assert.Error(t, fs.Parse([]string{"-v=bogus"}))
}
