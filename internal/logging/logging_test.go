package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	Setup(false, false, &buf)

	Info("test message", "key", "value")
	assert.Contains(t, buf.String(), "test message")
	assert.Contains(t, buf.String(), "key=value")
}

func TestSetup_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Setup(false, true, &buf)

	Warn("test message", "key", "value")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "test message", line["msg"])
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "value", line["key"])
}

func TestSetup_Verbosity(t *testing.T) {
	var buf bytes.Buffer
	Setup(false, false, &buf)
	assert.False(t, Verbose)
	Debug("hidden")
	assert.NotContains(t, buf.String(), "hidden")

	buf.Reset()
	Setup(true, false, &buf)
	assert.True(t, Verbose)
	Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	Setup(false, false, &buf)

	assert.Same(t, Logger, FromContext(context.Background()))

	ctx := NewContext(context.Background(), With("request_id", "r-1"))
	FromContext(ctx).Error("boom")
	assert.Contains(t, buf.String(), "request_id=r-1")
	assert.Contains(t, buf.String(), "boom")
}

func TestSetup_ServiceAttr(t *testing.T) {
	var buf bytes.Buffer
	Setup(false, true, &buf)

	Info("hello")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, Service, line["service"])
}

func TestSetup_VerbosityReachesDerivedLoggers(t *testing.T) {
	var buf bytes.Buffer
	Setup(false, false, &buf)
	reqLog := With("request_id", "r-2")

	reqLog.Debug("before")
	Setup(true, false, &buf)
	reqLog.Debug("after")

	assert.NotContains(t, buf.String(), "before")
	assert.Contains(t, buf.String(), "after")
}
