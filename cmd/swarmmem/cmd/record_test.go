package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyValues(t *testing.T) {
	got, err := parseKeyValues([]string{"tool=git", "outcome=success", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"tool":    "git",
		"outcome": "success",
		"note":    "a=b",
	}, got)

	got, err = parseKeyValues(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseKeyValues([]string{"toolgit"})
	assert.Error(t, err)

	_, err = parseKeyValues([]string{"=value"})
	assert.Error(t, err)
}

func TestBuildPayload_MergesJSONOverFields(t *testing.T) {
	payload, err := buildPayload(
		[]string{"tool=git", "outcome=failure"},
		`{"outcome":"success","duration_ms":120}`)
	require.NoError(t, err)

	assert.Equal(t, "git", payload["tool"])
	assert.Equal(t, "success", payload["outcome"])
	assert.Equal(t, float64(120), payload["duration_ms"])
}

func TestBuildPayload_InvalidJSON(t *testing.T) {
	_, err := buildPayload(nil, "{")
	assert.Error(t, err)
}
