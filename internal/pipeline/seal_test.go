package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-pinto/hashchain"
	"github.com/ajroetker/go-pinto/internal/timestamp"
)

func TestSeal(t *testing.T) {
	chain, err := hashchain.New(hashchain.BLAKE3)
	require.NoError(t, err)
	chain.Update([]byte("cell"))

	fp := Seal(context.Background(), chain, nil, nil)
	assert.Equal(t, chain.HexDigest(), fp.Digest)
	assert.Equal(t, "blake3", fp.Algorithm)
	assert.False(t, fp.Stamped())

	ok := &fakeStamper{stamp: timestamp.Stamp{Time: "t", Sign: "s"}}
	fp = Seal(context.Background(), chain, ok, quietLogger())
	assert.Equal(t, "t", fp.Time)
	assert.Equal(t, "s", fp.Sign)

	down := &fakeStamper{err: errors.New("dial tcp: refused")}
	fp = Seal(context.Background(), chain, down, quietLogger())
	assert.Equal(t, chain.HexDigest(), fp.Digest)
	assert.False(t, fp.Stamped())
}
