package pipeline

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegions(t *testing.T) {
	in := "0,0,10,10\n\n 5,6,7,8 ; 40,40,1,1\n"
	rf, err := ParseRegions(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 3, rf.Frames())

	ctx := context.Background()
	got, err := rf.Detect(ctx, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []image.Rectangle{image.Rect(0, 0, 10, 10)}, got)

	got, err = rf.Detect(ctx, 1, nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = rf.Detect(ctx, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []image.Rectangle{image.Rect(5, 6, 12, 14), image.Rect(40, 40, 41, 41)}, got)

	got, err = rf.Detect(ctx, 7, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseRegionsErrors(t *testing.T) {
	for _, in := range []string{
		"1,2,3",
		"1,2,3,x",
		"0,0,-1,4",
		"0,0,1,1\n1,2,3,4,5",
	} {
		_, err := ParseRegions(strings.NewReader(in))
		assert.ErrorIs(t, err, ErrRegions, "input %q", in)
	}
}

func TestLoadRegions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.regions")
	require.NoError(t, os.WriteFile(path, []byte("1,1,2,2\n"), 0o644))
	rf, err := LoadRegions(path)
	require.NoError(t, err)
	assert.Equal(t, 1, rf.Frames())

	_, err = LoadRegions(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestNoDetections(t *testing.T) {
	got, err := NoDetections{}.Detect(context.Background(), 3, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}
