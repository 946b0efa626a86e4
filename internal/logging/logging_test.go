package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFansOutToBothSinks(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := New(Options{Level: slog.LevelInfo, JSON: true, Stderr: &stderr, ExtraFile: &file})

	logger.Info("tracee stopped", "reason", "breakpoint")

	require.True(t, strings.Contains(stderr.String(), "tracee stopped"))
	require.True(t, strings.Contains(file.String(), "tracee stopped"))
}

func TestLevelFromString(t *testing.T) {
	require.Equal(t, slog.LevelDebug, LevelFromString("debug"))
	require.Equal(t, slog.LevelWarn, LevelFromString("warn"))
	require.Equal(t, slog.LevelError, LevelFromString("error"))
	require.Equal(t, slog.LevelInfo, LevelFromString("nonsense"))
}
