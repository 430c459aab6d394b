package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONIncludesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "debug", "json")

	logger.WithField("note_id", "123").Info("processed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "processed", line["msg"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "123", line["note_id"])
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "text")

	logger.WithField("file_id", "f1").Warn("skipped")

	out := buf.String()
	assert.True(t, strings.Contains(out, "level=warning"), out)
	assert.True(t, strings.Contains(out, "file_id=f1"), out)
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	logger := NewWithWriter(&bytes.Buffer{}, "chatty", "json")
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}
