package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	t.Run("file by default", func(t *testing.T) {
		b, err := Open(context.Background(), Config{Dir: t.TempDir()})
		require.NoError(t, err)
		defer b.Close()
		assert.IsType(t, &File{}, b)
	})

	t.Run("badger", func(t *testing.T) {
		b, err := Open(context.Background(), Config{Backend: BackendBadger, BadgerDir: t.TempDir()})
		require.NoError(t, err)
		defer b.Close()
		assert.IsType(t, &Badger{}, b)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := Open(context.Background(), Config{Backend: "floppy"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported storage backend")
	})
}
