package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type id string

func (i id) String() string { return string(i) }

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("JSON"))
	assert.Equal(t, FormatText, ParseFormat("pretty"))
}

func TestNew_JSONCarriesHelpers(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf, Level: slog.LevelInfo, Format: FormatJSON})

	l.Info("award committed", UserID(id("42")), XP(17), Level(3), Err(errors.New("boom")))
	l.Debug("filtered")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "award committed", line["msg"])
	assert.Equal(t, "42", line["user_id"])
	assert.EqualValues(t, 17, line["xp"])
	assert.EqualValues(t, 3, line["level"])
	assert.Equal(t, "boom", line["error"])
}

func TestFromContext(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))

	l := New(DefaultOptions())
	ctx := WithContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
}
