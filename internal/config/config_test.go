package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadWithoutConfigFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "text", cfg.LogFormat)
	require.Equal(t, 1000, cfg.HistorySize)
	require.True(t, cfg.StopAtEntry)
}
