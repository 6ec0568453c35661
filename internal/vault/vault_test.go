package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-pinto/watermark"
)

func openTest(t *testing.T) *Vault {
	t.Helper()
	v, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return v
}

func block(w, h int, seed byte) watermark.Block {
	b := watermark.NewBlock(w, h)
	for i := range b.Pix {
		b.Pix[i] = seed + byte(i%13)
	}
	return b
}

func TestPutGet(t *testing.T) {
	v := openTest(t)

	want := block(17, 9, 3)
	require.NoError(t, v.Put("clip-a", 4, 2, want))

	got, err := v.Get("clip-a", 4, 2)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = v.Get("clip-a", 4, 3)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = v.Get("clip-b", 4, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPut_InvalidBlock(t *testing.T) {
	v := openTest(t)
	err := v.Put("clip", 0, 0, watermark.Block{Width: 2, Height: 2})
	assert.ErrorIs(t, err, watermark.ErrInvalidBlock)
}

func TestKeysAndDelete(t *testing.T) {
	v := openTest(t)

	require.NoError(t, v.Put("clip", 10, 1, block(2, 2, 0)))
	require.NoError(t, v.Put("clip", 2, 7, block(2, 2, 1)))
	require.NoError(t, v.Put("clip", 2, 0, block(2, 2, 2)))
	// A clip whose name extends the first must not leak into its listing.
	require.NoError(t, v.Put("clip2", 0, 0, block(2, 2, 3)))

	keys, err := v.Keys("clip")
	require.NoError(t, err)
	assert.Equal(t, []Key{{Frame: 2, Cell: 0}, {Frame: 2, Cell: 7}, {Frame: 10, Cell: 1}}, keys)

	require.NoError(t, v.DeleteClip("clip"))
	keys, err = v.Keys("clip")
	require.NoError(t, err)
	assert.Empty(t, keys)

	keys, err = v.Keys("clip2")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestOpen_OnDisk(t *testing.T) {
	dir := t.TempDir()
	v, err := Open(Config{Path: dir})
	require.NoError(t, err)
	require.NoError(t, v.Put("c", 0, 0, block(3, 3, 9)))
	require.NoError(t, v.Close())

	v, err = Open(Config{Path: dir})
	require.NoError(t, err)
	defer v.Close()
	got, err := v.Get("c", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, block(3, 3, 9), got)
}
