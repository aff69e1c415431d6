package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestNewWriter(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := NewWriter(&buf, "debug", "json")
		require.NoError(t, err)
		l.Info("file cleaned", zap.String("pathname", "a.go"))
		assert.Contains(t, buf.String(), `"pathname":"a.go"`)
		assert.Contains(t, buf.String(), `"msg":"file cleaned"`)
	})

	t.Run("Level Filter", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := NewWriter(&buf, "warn", "console")
		require.NoError(t, err)
		l.Info("hidden")
		l.Warn("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := NewWriter(&bytes.Buffer{}, "loud", "console")
		assert.Error(t, err)
		_, err = NewWriter(&bytes.Buffer{}, "info", "xml")
		assert.Error(t, err)
	})
}

func TestContext(t *testing.T) {
	assert.NotNil(t, From(context.Background()))

	l := zaptest.NewLogger(t)
	ctx := With(context.Background(), l)
	assert.Same(t, l, From(ctx))
}
