package respcache

import (
	"io"
	"testing"
	"time"

	"github.com/stephnangue/porter/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logger.Logger {
	return logger.NewZerologLogger(&logger.Config{
		Level:   logger.ErrorLevel,
		Format:  logger.JSONFormat,
		Outputs: []io.Writer{io.Discard},
	})
}

func TestCache_SetGet(t *testing.T) {
	c, err := New(time.Minute, testLogger())
	require.NoError(t, err)
	defer c.Close()

	key := Key("accounts", "u1")
	c.Set(key, []byte(`{"accounts":[]}`))

	blob, ok := c.Get(key)
	require.True(t, ok)
	assert.JSONEq(t, `{"accounts":[]}`, string(blob))

	_, ok = c.Get(Key("accounts", "u2"))
	assert.False(t, ok)
}

func TestCache_Invalidate(t *testing.T) {
	c, err := New(time.Minute, testLogger())
	require.NoError(t, err)
	defer c.Close()

	key := Key("accounts", "u1")
	c.Set(key, []byte(`{}`))
	c.Invalidate(key)

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestCache_TTLExpiry(t *testing.T) {
	c, err := New(50*time.Millisecond, testLogger())
	require.NoError(t, err)
	defer c.Close()

	key := Key("accounts", "u1")
	c.Set(key, []byte(`{}`))

	_, ok := c.Get(key)
	require.True(t, ok)

	time.Sleep(150 * time.Millisecond)
	_, ok = c.Get(key)
	assert.False(t, ok)
}

func TestKey_Deterministic(t *testing.T) {
	assert.Equal(t, Key("accounts", "u1"), Key("accounts", "u1"))
	assert.NotEqual(t, Key("accounts", "u1"), Key("accounts", "u2"))

	// The separator keeps part boundaries unambiguous
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}
