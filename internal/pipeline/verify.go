package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	pinto "github.com/ajroetker/go-pinto"
	"github.com/ajroetker/go-pinto/hashchain"
	"github.com/ajroetker/go-pinto/internal/meta"
	"github.com/ajroetker/go-pinto/internal/vault"
	"github.com/ajroetker/go-pinto/watermark"
)

// VerifyOptions configures Verify.
type VerifyOptions struct {
	Rows, Cols int // Detection grid the clip was redacted with
	Workers    int

	// Intensity, when set, is the pixelation factor the clip was
	// redacted with; side-channel blocks of any other size are treated as
	// tampered.
	Intensity float64

	// Vault, when set, holds the escrowed originals of Clip; every
	// side-channel block is checked against its original's fingerprint.
	Vault *vault.Vault
	Clip  string

	Logger *logrus.Logger
}

// Verdict is the result of verifying a clip against its fingerprint.
type Verdict struct {
	Same           bool
	Expected       string // Digest from the fingerprint
	Actual         string // Digest recomputed from the clip
	Frames         int
	TamperedFrames []int // Frames with blocks that failed to decode or match
}

func (v *Verdict) String() string {
	if v.Same {
		return "same"
	}
	return "different"
}

type frameCheck struct {
	inputs   [][]byte
	tampered bool
}

type verifier struct {
	opts VerifyOptions
	log  *logrus.Logger
}

// Verify recomputes the hash chain of a stored clip and compares it with
// fp. A mismatch is reported in the verdict, not as an error.
func Verify(ctx context.Context, src FrameSource, fp *meta.Fingerprint, opts VerifyOptions) (*Verdict, error) {
	if opts.Rows < 1 || opts.Cols < 1 {
		return nil, fmt.Errorf("pipeline: invalid grid %dx%d", opts.Rows, opts.Cols)
	}
	if opts.Vault != nil && opts.Clip == "" {
		return nil, errors.New("pipeline: vault check needs a clip name")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	chain, err := hashchain.New(hashchain.Algorithm(fp.Algorithm))
	if err != nil {
		return nil, err
	}
	v := &verifier{opts: opts, log: opts.Logger}

	verdict := &Verdict{Expected: fp.Digest}
	err = runOrdered(ctx, opts.Workers, src, v.frame, func(index int, fc frameCheck) error {
		updateChain(chain, fc.inputs)
		verdict.Frames++
		if fc.tampered {
			verdict.TamperedFrames = append(verdict.TamperedFrames, index)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	verdict.Actual = chain.HexDigest()
	verdict.Same = strings.EqualFold(verdict.Actual, verdict.Expected) && len(verdict.TamperedFrames) == 0

	entry := v.log.WithFields(logrus.Fields{
		"frames":   verdict.Frames,
		"expected": verdict.Expected,
		"actual":   verdict.Actual,
	})
	if verdict.Same {
		entry.Info("clip verified")
	} else {
		entry.WithField("tampered", verdict.TamperedFrames).Warn("clip does not match its fingerprint")
	}
	return verdict, nil
}

func (v *verifier) frame(_ context.Context, index int, data []byte) (frameCheck, error) {
	f, rec, err := pinto.SplitFrame(data)
	if err != nil {
		return frameCheck{}, err
	}
	img, err := decodePixels(f)
	if err != nil {
		return frameCheck{}, err
	}
	grid, err := f.Grid(v.opts.Rows, v.opts.Cols)
	if err != nil {
		return frameCheck{}, err
	}
	inputs, err := cellInputs(grid, img)
	if err != nil {
		return frameCheck{}, err
	}
	fc := frameCheck{inputs: inputs}
	if rec == nil {
		return fc, nil
	}

	for _, e := range rec.Entries {
		i := int(e.Index)
		if i >= grid.Len() || inputs[i] == nil {
			return frameCheck{}, fmt.Errorf("%w: side-channel cell %d not in %dx%d grid", pinto.ErrDecode, i, v.opts.Rows, v.opts.Cols)
		}
		inputs[i] = nil
		b, err := watermark.DecodeBlock(e.Data)
		if err != nil {
			v.log.WithError(err).WithFields(logrus.Fields{"frame": index, "cell": i}).Warn("undecodable side-channel block")
			fc.tampered = true
			continue
		}
		inputs[i] = b.Pix
		if ok, err := v.checkBlock(grid, index, i, b); err != nil {
			return frameCheck{}, err
		} else if !ok {
			fc.tampered = true
		}
	}
	return fc, nil
}

// checkBlock applies the optional size and escrow checks to a decoded
// side-channel block.
func (v *verifier) checkBlock(grid *pinto.Grid, frame, cell int, b watermark.Block) (bool, error) {
	fields := logrus.Fields{"frame": frame, "cell": cell}
	if v.opts.Intensity >= 1 {
		rect, err := grid.CellRect(cell)
		if err != nil {
			return false, err
		}
		w, h := watermark.PixelatedSize(rect.Dx(), rect.Dy(), v.opts.Intensity)
		if b.Width != w || b.Height != h {
			v.log.WithFields(fields).Warnf("side-channel block is %dx%d, want %dx%d", b.Width, b.Height, w, h)
			return false, nil
		}
	}
	if v.opts.Vault == nil {
		return true, nil
	}
	orig, err := v.opts.Vault.Get(v.opts.Clip, frame, cell)
	if errors.Is(err, vault.ErrNotFound) {
		v.log.WithFields(fields).Warn("no escrowed original for side-channel block")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	ok, err := watermark.Matches(b, orig)
	if err != nil {
		return false, err
	}
	if !ok {
		v.log.WithFields(fields).Warn("watermark does not match escrowed original")
	}
	return ok, nil
}
