package telemetry

import (
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewProfiler_Disabled(t *testing.T) {
	p, err := NewProfiler(ProfilerConfig{ApplicationName: "bloodchain"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())
}

func TestNewProfiler_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  ProfilerConfig
		want string
	}{
		{"no address", ProfilerConfig{Enabled: true, ApplicationName: "bloodchain"}, "server address is required"},
		{"no name", ProfilerConfig{Enabled: true, ServerAddress: "http://localhost:4040"}, "application name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProfiler(tt.cfg, zaptest.NewLogger(t))
			require.Error(t, err)
			assert.Nil(t, p)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestProfileTypes(t *testing.T) {
	base := profileTypes(ProfilerConfig{})
	assert.Contains(t, base, pyroscope.ProfileCPU)
	assert.NotContains(t, base, pyroscope.ProfileMutexCount)

	full := profileTypes(ProfilerConfig{ProfileContention: true})
	assert.Len(t, full, len(base)+4)
	assert.Contains(t, full, pyroscope.ProfileBlockDuration)
}
