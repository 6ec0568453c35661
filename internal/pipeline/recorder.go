package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	pinto "github.com/ajroetker/go-pinto"
	"github.com/ajroetker/go-pinto/hashchain"
	"github.com/ajroetker/go-pinto/internal/container"
	"github.com/ajroetker/go-pinto/internal/meta"
)

// Recorder accepts the frames of one clip at a time.
type Recorder interface {
	Begin(id string) error
	Write(frame []byte) error
	End() error
}

// Paths names the files that make up a stored clip.
type Paths struct {
	Video       string // Frame container
	Metadata    string
	Fingerprint string
}

// ClipPaths returns the paths of clip id in dir.
func ClipPaths(dir, id string) Paths {
	base := filepath.Join(dir, id)
	return Paths{
		Video:       base + ".pv",
		Metadata:    base + ".pm",
		Fingerprint: base + ".ph",
	}
}

// FileRecorder stores clips in a directory: the frames in a container,
// the recording parameters in a metadata file and the sealed hash chain in
// a fingerprint file. Every cell of every frame is hashed as it is
// written.
type FileRecorder struct {
	Dir        string
	Rows, Cols int
	Intensity  float64
	Algorithm  hashchain.Algorithm
	FrameRate  int     // When positive, video_time is derived from the frame count
	Stamper    Stamper // Optional timestamp service
	Logger     *logrus.Logger

	id          string
	paths       Paths
	file        *os.File
	w           *container.Writer
	chain       *hashchain.State
	start       time.Time
	fingerprint *meta.Fingerprint
}

var _ Recorder = (*FileRecorder)(nil)

var errNotRecording = errors.New("pipeline: recorder has no open clip")

// Begin opens clip id.
func (r *FileRecorder) Begin(id string) error {
	if r.file != nil {
		return fmt.Errorf("pipeline: clip %s still open", r.id)
	}
	m := meta.Metadata{Rows: r.Rows, Columns: r.Cols, Intensity: r.Intensity}
	if err := m.Validate(); err != nil {
		return err
	}
	if r.Logger == nil {
		r.Logger = logrus.New()
	}
	chain, err := hashchain.New(r.Algorithm)
	if err != nil {
		return err
	}
	paths := ClipPaths(r.Dir, id)
	file, err := os.Create(paths.Video)
	if err != nil {
		return err
	}
	r.id, r.paths, r.file = id, paths, file
	r.w = container.NewWriter(file)
	r.chain = chain
	r.start = time.Now()
	r.fingerprint = nil
	r.Logger.WithFields(logrus.Fields{"clip": id, "path": paths.Video}).Info("recording started")
	return nil
}

// Write hashes and stores one frame.
func (r *FileRecorder) Write(frame []byte) error {
	if r.file == nil {
		return errNotRecording
	}
	index := r.w.Count()
	f, err := pinto.ParseFrame(frame)
	if err != nil {
		return fmt.Errorf("frame %d: %w", index, err)
	}
	if len(f.Trailer()) > 0 {
		return fmt.Errorf("frame %d: %w: unexpected trailer", index, pinto.ErrFormat)
	}
	img, err := decodePixels(f)
	if err != nil {
		return fmt.Errorf("frame %d: %w", index, err)
	}
	grid, err := f.Grid(r.Rows, r.Cols)
	if err != nil {
		return fmt.Errorf("frame %d: %w", index, err)
	}
	inputs, err := cellInputs(grid, img)
	if err != nil {
		return fmt.Errorf("frame %d: %w", index, err)
	}
	if err := r.w.Write(frame); err != nil {
		return fmt.Errorf("frame %d: %w", index, err)
	}
	updateChain(r.chain, inputs)
	return nil
}

// End closes the clip and writes its metadata and fingerprint.
func (r *FileRecorder) End() error {
	if r.file == nil {
		return errNotRecording
	}
	frames := r.w.Count()
	err := r.w.Close()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	r.file = nil
	if err != nil {
		return err
	}

	videoTime := int(time.Since(r.start).Seconds())
	if r.FrameRate > 0 {
		videoTime = frames / r.FrameRate
	}
	m := &meta.Metadata{
		VideoTime:  videoTime,
		Rows:       r.Rows,
		Columns:    r.Cols,
		Intensity:  r.Intensity,
		FrameCount: frames,
	}
	if err := meta.SaveMetadata(r.paths.Metadata, m); err != nil {
		return err
	}
	fp := Seal(context.Background(), r.chain, r.Stamper, r.Logger)
	if err := meta.SaveFingerprint(r.paths.Fingerprint, fp); err != nil {
		return err
	}
	r.fingerprint = fp
	r.Logger.WithFields(logrus.Fields{
		"clip":    r.id,
		"frames":  frames,
		"digest":  fp.Digest,
		"stamped": fp.Stamped(),
	}).Info("recording finished")
	return nil
}

// Fingerprint returns the fingerprint of the last finished clip.
func (r *FileRecorder) Fingerprint() *meta.Fingerprint {
	return r.fingerprint
}
