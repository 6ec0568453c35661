package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// dirSource serves the JPEG files of a directory in name order.
type dirSource struct {
	paths []string
	pos   int
}

func newDirSource(dir string) (*dirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	s := &dirSource{}
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.Type().IsRegular() && (ext == ".jpg" || ext == ".jpeg") {
			s.paths = append(s.paths, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(s.paths)
	if len(s.paths) == 0 {
		return nil, fmt.Errorf("no JPEG frames in %s", dir)
	}
	return s, nil
}

func (s *dirSource) Next() ([]byte, error) {
	if s.pos >= len(s.paths) {
		return nil, io.EOF
	}
	s.pos++
	return os.ReadFile(s.paths[s.pos-1])
}

// dirSink writes numbered JPEG files to a directory.
type dirSink struct {
	dir string
	n   int
}

func (s *dirSink) Write(frame []byte) error {
	path := filepath.Join(s.dir, fmt.Sprintf("frame_%05d.jpg", s.n))
	if err := os.WriteFile(path, frame, 0o644); err != nil {
		return err
	}
	s.n++
	return nil
}
