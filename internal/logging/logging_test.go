package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "debug.log")
	log, closer, err := New(path, "debug")
	require.NoError(t, err)

	log.Debug().Str("op", "Posts_Query").Msg("graphql request")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &line))
	require.Equal(t, "Posts_Query", line["op"])
	require.Equal(t, "debug", line["level"])
	require.Contains(t, line, "time")
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, zerolog.WarnLevel)
	log.Info().Msg("hidden")
	require.Zero(t, buf.Len())
	log.Warn().Msg("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	require.Equal(t, zerolog.InfoLevel, lvl)

	lvl, err = ParseLevel(" WARN ")
	require.NoError(t, err)
	require.Equal(t, zerolog.WarnLevel, lvl)

	_, err = ParseLevel("loud")
	require.Error(t, err)
}

func TestEmptyPathDiscards(t *testing.T) {
	_, closer, err := New("", "info")
	require.NoError(t, err)
	require.NoError(t, closer.Close())
}
