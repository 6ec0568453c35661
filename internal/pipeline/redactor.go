package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	pinto "github.com/ajroetker/go-pinto"
	"github.com/ajroetker/go-pinto/hashchain"
	"github.com/ajroetker/go-pinto/internal/vault"
	"github.com/ajroetker/go-pinto/watermark"
)

// Options configures a Redactor.
type Options struct {
	Rows, Cols int                 // Detection grid
	Intensity  float64             // Pixelation factor, at least 1
	Detector   Detector            // Nil means NoDetections
	Codec      watermark.Codec     // Block codec; nil means PNG
	Algorithm  hashchain.Algorithm // Chain algorithm; empty means sha256
	Workers    int                 // Frames in flight; zero means GOMAXPROCS
	Vault      *vault.Vault        // Optional escrow of original cells
	Clip       string              // Clip name used as the vault key
	Logger     *logrus.Logger
}

// Redactor erases detected cells from frames, keeping a watermarked
// pixelated copy of each in the frame's side channel.
type Redactor struct {
	opts     Options
	embedder *watermark.Embedder
	log      *logrus.Logger
}

// NewRedactor validates opts and returns a redactor.
func NewRedactor(opts Options) (*Redactor, error) {
	if opts.Rows < 1 || opts.Cols < 1 {
		return nil, fmt.Errorf("pipeline: invalid grid %dx%d", opts.Rows, opts.Cols)
	}
	if !(opts.Intensity >= 1) {
		return nil, fmt.Errorf("pipeline: invalid intensity %v", opts.Intensity)
	}
	alg, err := hashchain.ParseAlgorithm(string(opts.Algorithm))
	if err != nil {
		return nil, err
	}
	opts.Algorithm = alg
	if opts.Vault != nil && opts.Clip == "" {
		return nil, errors.New("pipeline: vault escrow needs a clip name")
	}
	if opts.Detector == nil {
		opts.Detector = NoDetections{}
	}
	if opts.Codec == nil {
		opts.Codec = watermark.PNG
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Redactor{
		opts:     opts,
		embedder: watermark.NewEmbedder(nil),
		log:      opts.Logger,
	}, nil
}

// FrameResult is the outcome of redacting one frame.
type FrameResult struct {
	Index int
	Data  []byte // Stored frame; the input itself when nothing was detected
	Cells []int  // Redacted detection cells, ascending

	// Chain inputs per detection cell, nil for cells covering no MCU.
	// Source holds the unredacted pixels, Stored what a verifier of Data
	// will recompute.
	Source [][]byte
	Stored [][]byte
}

// RedactFrame redacts every cell the detector flags in one frame.
func (r *Redactor) RedactFrame(ctx context.Context, index int, data []byte) (*FrameResult, error) {
	f, err := pinto.ParseFrame(data)
	if err != nil {
		return nil, err
	}
	if len(f.Trailer()) > 0 {
		return nil, fmt.Errorf("%w: frame already carries a side channel", pinto.ErrFormat)
	}
	img, err := decodePixels(f)
	if err != nil {
		return nil, err
	}
	grid, err := f.Grid(r.opts.Rows, r.opts.Cols)
	if err != nil {
		return nil, err
	}
	source, err := cellInputs(grid, img)
	if err != nil {
		return nil, err
	}
	rects, err := r.opts.Detector.Detect(ctx, index, img)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	res := &FrameResult{
		Index:  index,
		Data:   data,
		Cells:  coveredCells(grid, rects),
		Source: source,
		Stored: source,
	}
	if len(res.Cells) == 0 {
		r.log.WithFields(logrus.Fields{"frame": index, "cells": grid.Len(), "redacted": 0}).Debug("frame passed through")
		return res, nil
	}

	stored := slices.Clone(source)
	rec := &pinto.SideChannelRecord{}
	for _, i := range res.Cells {
		rect, err := grid.CellRect(i)
		if err != nil {
			return nil, err
		}
		orig := watermark.Block{Width: rect.Dx(), Height: rect.Dy(), Pix: source[i]}
		wb, err := r.embedder.Embed(orig, r.opts.Intensity)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", i, err)
		}
		enc, err := watermark.EncodeBlock(r.opts.Codec, wb.Block)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", i, err)
		}
		rec.Add(i, enc)
		stored[i] = wb.Pix
		if r.opts.Vault != nil {
			if err := r.opts.Vault.Put(r.opts.Clip, index, i, orig); err != nil {
				return nil, err
			}
		}
	}

	set, err := grid.RedactionSet(res.Cells)
	if err != nil {
		return nil, err
	}
	out, err := f.Redact(set, rec)
	if err != nil {
		return nil, err
	}
	res.Data, res.Stored = out, stored
	r.log.WithFields(logrus.Fields{
		"frame":    index,
		"cells":    grid.Len(),
		"redacted": len(res.Cells),
		"mcus":     set.Len(),
	}).Debug("frame redacted")
	return res, nil
}

// ClipResult summarizes a redacted clip.
type ClipResult struct {
	Frames         int
	RedactedFrames int
	RedactedCells  int
	Source         *hashchain.State // Chain over the frames as read
	Stored         *hashchain.State // Chain over the frames as written
}

// RedactClip redacts every frame of src and writes the results to dst in
// capture order.
func (r *Redactor) RedactClip(ctx context.Context, src FrameSource, dst FrameSink) (*ClipResult, error) {
	source, err := hashchain.New(r.opts.Algorithm)
	if err != nil {
		return nil, err
	}
	stored, err := hashchain.New(r.opts.Algorithm)
	if err != nil {
		return nil, err
	}
	res := &ClipResult{Source: source, Stored: stored}

	err = runOrdered(ctx, r.opts.Workers, src, r.RedactFrame, func(_ int, fr *FrameResult) error {
		if err := dst.Write(fr.Data); err != nil {
			return err
		}
		updateChain(source, fr.Source)
		updateChain(stored, fr.Stored)
		res.Frames++
		if len(fr.Cells) > 0 {
			res.RedactedFrames++
			res.RedactedCells += len(fr.Cells)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{
		"clip":     r.opts.Clip,
		"frames":   res.Frames,
		"redacted": res.RedactedFrames,
		"cells":    res.RedactedCells,
	}).Info("clip redacted")
	return res, nil
}
