package dap

import (
	"context"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstitutePort(t *testing.T) {
	t.Parallel()

	args := []string{"dlv", "dap", "--listen", "127.0.0.1:{{port}}", "--log-dest", "{{port}}.log"}
	result := substitutePort(args, "38697")

	assert.Equal(t, []string{"dlv", "dap", "--listen", "127.0.0.1:38697", "--log-dest", "38697.log"}, result)
	// Input is untouched.
	assert.Equal(t, "127.0.0.1:{{port}}", args[3])
}

func TestAllocateFreePort(t *testing.T) {
	t.Parallel()

	port, portErr := allocateFreePort()
	require.NoError(t, portErr)
	assert.Greater(t, port, 0)
	assert.LessOrEqual(t, port, 65535)
}

func TestPortAnnouncementParsing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		line     string
		wantPort string
		match    bool
	}{
		{
			name:     "delve style",
			line:     "DAP server listening at: 127.0.0.1:38697",
			wantPort: "38697",
			match:    true,
		},
		{
			name:     "bare port announcement",
			line:     "Listening on port 4711",
			wantPort: "4711",
			match:    true,
		},
		{
			name:     "server started style",
			line:     "server started at 0.0.0.0:9229",
			wantPort: "9229",
			match:    true,
		},
		{
			name:  "unrelated output",
			line:  "loading symbols for target",
			match: false,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			m := portAnnouncementRe.FindStringSubmatch(tc.line)
			if !tc.match {
				assert.Nil(t, m)
				return
			}
			require.NotNil(t, m)
			assert.Equal(t, tc.wantPort, m[1])
		})
	}
}

func TestLaunchAdapterInvalidConfig(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := testr.New(t)

	_, launchErr := LaunchAdapter(ctx, nil, log)
	assert.ErrorIs(t, launchErr, ErrInvalidAdapterConfig)

	_, launchErr = LaunchAdapter(ctx, &AdapterConfig{}, log)
	assert.ErrorIs(t, launchErr, ErrInvalidAdapterConfig)

	_, launchErr = LaunchAdapter(ctx, &AdapterConfig{Args: []string{"adapter"}, Mode: "carrier-pigeon"}, log)
	assert.ErrorIs(t, launchErr, ErrInvalidAdapterConfig)
}
