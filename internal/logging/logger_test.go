package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New("prod", "info", &buf)

	log.Debug().Msg("hidden")
	log.Info().Str("slot_id", "abc").Msg("appointment booked")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "appointment booked", line["message"])
	assert.Equal(t, "abc", line["slot_id"])
	assert.Equal(t, "info", line["level"])
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New("prod", "chatty", &buf)

	log.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
}

func TestStartup_ChainsFromReturnValue(t *testing.T) {
	var buf bytes.Buffer

	Startup(&buf).Error().Str("key", "POSTGRES_DSN").Msg("config load error")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "config load error", line["message"])
	assert.Equal(t, "POSTGRES_DSN", line["key"])
}
