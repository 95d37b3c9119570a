package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("-1")
	require.NoError(t, err)
	assert.Equal(t, DebugLevel, lvl)

	lvl, err = ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestCreateLoggerAsLocalFile(t *testing.T) {
	_, _, err := CreateLoggerAsLocalFile("", InfoLevel)
	assert.Error(t, err, "empty path must be rejected")

	path := filepath.Join(t.TempDir(), "gchannel.log")
	logger, flush, err := CreateLoggerAsLocalFile(path, InfoLevel)
	require.NoError(t, err)
	logger.Debugf("dropped %d", 1)
	logger.Infof("channel %d opened", 7)
	require.NoError(t, flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "channel 7 opened")
	assert.NotContains(t, string(data), "dropped")
}
