package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "debug", Format: "json", Output: &buf})

	logger.WithField("url", "https://example.com").Debug("visiting")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "visiting", entry["msg"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "https://example.com", entry["url"])
}

func TestNewTextAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "nonsense", Output: &buf})

	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	logger.Debug("hidden")
	logger.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}
