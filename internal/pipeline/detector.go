package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrRegions is returned for a malformed region file.
var ErrRegions = errors.New("pipeline: malformed region file")

// Detector finds the regions of a decoded frame that must be redacted.
// Implementations must be safe for concurrent use.
type Detector interface {
	Detect(ctx context.Context, frame int, img image.Image) ([]image.Rectangle, error)
}

// NoDetections is a Detector that never finds anything.
type NoDetections struct{}

// Detect returns no regions.
func (NoDetections) Detect(context.Context, int, image.Image) ([]image.Rectangle, error) {
	return nil, nil
}

// RegionFile replays detections prepared ahead of time. Line n of the file
// lists the regions of frame n as "x,y,w,h" separated by ';'. An empty line
// means no detections; frames past the end of the file have none.
type RegionFile struct {
	frames [][]image.Rectangle
}

// NewRegionFile returns a detector replaying regions[n] for frame n.
func NewRegionFile(regions [][]image.Rectangle) *RegionFile {
	return &RegionFile{frames: regions}
}

// ParseRegions reads a region file.
func ParseRegions(r io.Reader) (*RegionFile, error) {
	rf := &RegionFile{}
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		var rects []image.Rectangle
		for _, field := range strings.Split(sc.Text(), ";") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			rect, err := parseRegion(field)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrRegions, line, err)
			}
			rects = append(rects, rect)
		}
		rf.frames = append(rf.frames, rects)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rf, nil
}

// LoadRegions reads a region file from disk.
func LoadRegions(path string) (*RegionFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	rf, err := ParseRegions(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rf, nil
}

func parseRegion(s string) (image.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("region %q: want x,y,w,h", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("region %q: %v", s, err)
		}
		v[i] = n
	}
	if v[2] < 0 || v[3] < 0 {
		return image.Rectangle{}, fmt.Errorf("region %q: negative size", s)
	}
	return image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3]), nil
}

// Frames returns the number of frames described by the file.
func (rf *RegionFile) Frames() int {
	return len(rf.frames)
}

// Detect returns the regions listed for frame.
func (rf *RegionFile) Detect(_ context.Context, frame int, _ image.Image) ([]image.Rectangle, error) {
	if frame < 0 || frame >= len(rf.frames) {
		return nil, nil
	}
	return rf.frames[frame], nil
}
