package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLogging(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json", "debug").With(WithField("contract", "0x1234"))
	l.Info("signed authorization", WithField("variant", "point"), WithField("err", errors.New("boom")))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "signed authorization", line["msg"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "0x1234", line["contract"])
	assert.Equal(t, "point", line["variant"])
	assert.Equal(t, "boom", line["err"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "text", "warn")
	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")

	l.SetLogLevel("debug")
	l.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}
