package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/logging"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    logging.Level
		wantErr bool
	}{
		{"debug", logging.LevelDebug, false},
		{"INFO", logging.LevelInfo, false},
		{"warning", logging.LevelWarn, false},
		{"error", logging.LevelError, false},
		{"", logging.LevelInfo, false},
		{"loud", logging.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := logging.ParseLevel(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, logging.ErrInvalidLevel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Tests in this file share global logging state and must not run in parallel.
func TestInitAndComponentLevels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "test.log")

	early := logging.Get("pipeline")
	early.Info("dropped before init")

	require.NoError(t, logging.Init(logging.Config{
		Level:      "info",
		Path:       path,
		Components: map[string]string{"tuner": "debug"},
	}))
	t.Cleanup(func() { _ = logging.Close() })

	early.Info("hashing started", "files", 3)
	early.Debug("suppressed debug line")
	logging.Get("tuner").Debug("budget changed", "workers", 2)

	require.NoError(t, logging.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.NotContains(t, content, "dropped before init")
	assert.Contains(t, content, "hashing started")
	assert.NotContains(t, content, "suppressed debug line")
	assert.Contains(t, content, "budget changed")
}

func TestInitRejectsBadComponentLevel(t *testing.T) {
	err := logging.Init(logging.Config{
		Path:       filepath.Join(t.TempDir(), "x.log"),
		Components: map[string]string{"cluster": "chatty"},
	})
	assert.ErrorIs(t, err, logging.ErrInvalidLevel)
}

func TestRotatingWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rot.log")
	w, err := logging.NewRotatingWriter(path, 16, 2)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := w.Write([]byte(strings.Repeat("x", 10) + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	assert.FileExists(t, path)
	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")

	_, err = w.Write([]byte("closed"))
	assert.Error(t, err)
}
