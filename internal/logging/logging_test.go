package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/elixir/internal/config"
)

func TestSetupLevels(t *testing.T) {
	tests := []struct {
		level   string
		verbose bool
		want    zerolog.Level
	}{
		{"", false, zerolog.WarnLevel},
		{"info", false, zerolog.InfoLevel},
		{"error", false, zerolog.ErrorLevel},
		{"nonsense", false, zerolog.WarnLevel},
		{"error", true, zerolog.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := Setup(config.LogConfig{Level: tt.level, File: "stderr"}, tt.verbose)
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestSetupWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "elixir.log")
	logger := Setup(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1}, false)

	logger.Info().Str("server", "http://10.0.0.2:9000").Msg("probe ok")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"server":"http://10.0.0.2:9000"`)
	assert.Contains(t, string(data), "probe ok")
}
