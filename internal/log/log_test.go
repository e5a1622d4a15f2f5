package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalLoggerChains(t *testing.T) {
	// Level methods hang off *Logger; the accessors must hand back an
	// addressable logger so call sites can chain directly.
	require.NotNil(t, L())
	L().Debug().Str(FieldRoomCode, "AB12CD").Msg("chained on global")
	Ctx(context.Background()).Debug().Msg("chained on context fallback")
}

func TestCtxPrefersStoredLogger(t *testing.T) {
	var buf bytes.Buffer
	stored := zerolog.New(&buf).With().Str(FieldService, "scribe-test").Logger()

	ctx := WithLogger(context.Background(), stored)
	Ctx(ctx).Info().Msg("hello")

	assert.Contains(t, buf.String(), `"scribe-test"`)
	assert.Contains(t, buf.String(), `"hello"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel(" WARNING "))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("bogus"))
}
