package events_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seiken-dev/jiten/internal/config"
	"github.com/seiken-dev/jiten/internal/events"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.WarnLevel, &buf)

	logger.Debug("too quiet")
	logger.Info("still too quiet")
	logger.Warn("heard")
	logger.Error("also heard")

	out := buf.String()
	assert.NotContains(t, out, "too quiet")
	assert.Contains(t, out, "[WARN] heard")
	assert.Contains(t, out, "[ERROR] also heard")
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, &buf)

	logger.WithField("series", "kanji").
		WithFields(map[string]interface{}{"lang": "en", "attempt": 3}).
		Info("downloading")

	line := buf.String()
	assert.Contains(t, line, "downloading")
	// Fields print sorted by key.
	assert.Less(t,
		strings.Index(line, "attempt=3"),
		strings.Index(line, "lang=en"))
	assert.Contains(t, line, "series=kanji")
}

func TestLoggerFieldsDoNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base := events.NewTestLogger(events.DebugLevel, &buf)

	derived := base.WithField("series", "words")
	base.Info("plain")

	assert.NotContains(t, buf.String(), "series=words")
	_ = derived
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, &buf)

	logger.WithError(errors.New("dial tcp: refused")).Error("fetch failed")
	assert.Contains(t, buf.String(), "error=dial tcp: refused")

	buf.Reset()
	logger.WithError(nil).Error("no error attached")
	assert.NotContains(t, buf.String(), "error=")
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := events.NewLogger(&config.LogConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	jl := logger.WithField("dataset", "names")
	jl.SetOutput(&buf)

	jl.Info("state updated")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "state updated", entry["msg"])
	assert.Equal(t, "names", entry["dataset"])
	assert.NotEmpty(t, entry["time"])
}
