// Package pipeline runs redaction, verification, restoration and recording
// over whole clips. Frames are processed on a bounded worker pool and their
// results consumed strictly in capture order, so the hash chain and the
// output container see frames as they were recorded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// FrameSource yields stored frames in capture order. Next returns io.EOF
// after the last frame.
type FrameSource interface {
	Next() ([]byte, error)
}

// FrameSink receives output frames in capture order.
type FrameSink interface {
	Write(frame []byte) error
}

// SliceSource serves frames from memory.
type SliceSource struct {
	Frames [][]byte
	pos    int
}

// Next returns the next frame or io.EOF.
func (s *SliceSource) Next() ([]byte, error) {
	if s.pos >= len(s.Frames) {
		return nil, io.EOF
	}
	s.pos++
	return s.Frames[s.pos-1], nil
}

// SliceSink collects frames in memory.
type SliceSink struct {
	Frames [][]byte
}

// Write appends frame.
func (s *SliceSink) Write(frame []byte) error {
	s.Frames = append(s.Frames, frame)
	return nil
}

// runOrdered applies work to every frame of src on up to workers
// goroutines and hands each result to consume in frame order. A frame
// either completes or fails as a whole; the first failure cancels the
// frames still queued.
func runOrdered[T any](
	ctx context.Context,
	workers int,
	src FrameSource,
	work func(ctx context.Context, index int, data []byte) (T, error),
	consume func(index int, res T) error,
) error {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	queue := make(chan chan T, workers)
	var readErr error
	go func() {
		defer close(queue)
		for i := 0; ; i++ {
			if gctx.Err() != nil {
				return
			}
			data, err := src.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				readErr = fmt.Errorf("frame %d: %w", i, err)
				return
			}
			future := make(chan T, 1)
			select {
			case queue <- future:
			case <-gctx.Done():
				return
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				res, err := work(gctx, i, data)
				if err != nil {
					return fmt.Errorf("frame %d: %w", i, err)
				}
				future <- res
				return nil
			})
		}
	}()

	var consumeErr error
	stopped := false
	index := 0
	for future := range queue {
		if stopped {
			continue
		}
		select {
		case res := <-future:
			if err := consume(index, res); err != nil {
				consumeErr = fmt.Errorf("frame %d: %w", index, err)
				stopped = true
				cancel()
			}
		case <-gctx.Done():
			stopped = true
		}
		index++
	}

	workErr := g.Wait()
	switch {
	case consumeErr != nil:
		return consumeErr
	case workErr != nil:
		return workErr
	case readErr != nil:
		return readErr
	}
	return ctx.Err()
}
