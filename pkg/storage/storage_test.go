package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalDisk(t *testing.T) {
	ctx := context.Background()
	m, err := New(ctx, Config{Default: "local", LocalRoot: t.TempDir(), LocalURL: "http://localhost:8080/storage/"})
	require.NoError(t, err)

	d := m.Default()
	url, err := d.Put(ctx, "menu/alloco.jpg", strings.NewReader("jpeg-bytes"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/storage/menu/alloco.jpg", url)
	assert.True(t, d.Exists(ctx, "menu/alloco.jpg"))

	data, err := d.Get(ctx, "menu/alloco.jpg")
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	require.NoError(t, d.Delete(ctx, "menu/alloco.jpg"))
	require.NoError(t, d.Delete(ctx, "menu/alloco.jpg"), "deleting twice is fine")
	assert.False(t, d.Exists(ctx, "menu/alloco.jpg"))
}

func TestLocalDiskStaysInRoot(t *testing.T) {
	root := t.TempDir()
	d, err := NewLocal(root, "")
	require.NoError(t, err)

	_, err = d.Put(context.Background(), "../../etc/passwd", strings.NewReader("x"), "")
	require.NoError(t, err)
	assert.True(t, d.Exists(context.Background(), "etc/passwd"), "traversal is clamped inside root")
}

func TestUnknownDisk(t *testing.T) {
	_, err := New(context.Background(), Config{Default: "s3", LocalRoot: t.TempDir()})
	assert.Error(t, err)

	m, err := New(context.Background(), Config{LocalRoot: t.TempDir()})
	require.NoError(t, err)
	_, err = m.Use("gcs")
	assert.Error(t, err)
}
