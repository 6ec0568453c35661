package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ajroetker/go-pinto/hashchain"
	"github.com/ajroetker/go-pinto/internal/meta"
	"github.com/ajroetker/go-pinto/internal/timestamp"
)

// Stamper countersigns a digest. *timestamp.Client implements it.
type Stamper interface {
	Stamp(ctx context.Context, digest string) (timestamp.Stamp, error)
}

// Seal turns the chain into a fingerprint and asks stamper, if any, to
// countersign it. A failing stamper leaves the fingerprint unstamped and
// is only logged.
func Seal(ctx context.Context, chain *hashchain.State, stamper Stamper, log *logrus.Logger) *meta.Fingerprint {
	if log == nil {
		log = logrus.New()
	}
	fp := &meta.Fingerprint{
		Digest:    chain.HexDigest(),
		Algorithm: string(chain.Algorithm()),
	}
	if stamper == nil {
		return fp
	}
	st, err := stamper.Stamp(ctx, fp.Digest)
	if err != nil {
		log.WithError(err).WithField("digest", fp.Digest).Warn("timestamp unavailable, fingerprint left unstamped")
		return fp
	}
	fp.Time, fp.Sign = st.Time, st.Sign
	return fp
}
