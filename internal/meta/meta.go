// Package meta reads and writes the clip metadata (.pm) and fingerprint
// (.ph) files: plain key=value lines with a fixed schema.
package meta

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrInvalid is returned for files that do not match their schema.
var ErrInvalid = errors.New("meta: invalid record")

// Values is a parsed key=value file.
type Values map[string]string

// Parse reads key=value lines. Lines without '=' are ignored; the value
// runs to the end of the line and a later key overrides an earlier one.
func Parse(r io.Reader) (Values, error) {
	v := Values{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimRight(sc.Text(), "\r"), "=")
		if !ok {
			continue
		}
		v[strings.TrimSpace(key)] = value
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("meta: read: %w", err)
	}
	return v, nil
}

// Require returns an error naming every key in keys absent from v.
func (v Values) Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if _, ok := v[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalid, strings.Join(missing, ", "))
	}
	return nil
}

func (v Values) intValue(key string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v[key]))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return n, nil
}

func (v Values) floatValue(key string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v[key]), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return f, nil
}

// pair is one output line.
type pair struct {
	key, value string
}

func writePairs(w io.Writer, pairs []pair) error {
	bw := bufio.NewWriter(w)
	for _, p := range pairs {
		if strings.ContainsAny(p.value, "\r\n") {
			return fmt.Errorf("%w: value of %s spans lines", ErrInvalid, p.key)
		}
		if _, err := fmt.Fprintf(bw, "%s=%s\n", p.key, p.value); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Metadata describes how a clip was recorded and is to be redacted.
type Metadata struct {
	VideoTime  int     // Clip length in seconds
	Rows       int     // Detection grid rows
	Columns    int     // Detection grid columns
	Intensity  float64 // Pixelation factor
	FrameCount int
}

var metadataKeys = []string{"video_time", "row", "column", "intensity", "frame_count"}

// Validate checks field ranges.
func (m *Metadata) Validate() error {
	switch {
	case m.VideoTime < 0:
		return fmt.Errorf("%w: video_time %d", ErrInvalid, m.VideoTime)
	case m.Rows < 1 || m.Columns < 1:
		return fmt.Errorf("%w: grid %dx%d", ErrInvalid, m.Rows, m.Columns)
	case m.Rows*m.Columns > 1<<16:
		return fmt.Errorf("%w: grid %dx%d has more than 65536 cells", ErrInvalid, m.Rows, m.Columns)
	case !(m.Intensity >= 1):
		return fmt.Errorf("%w: intensity %v", ErrInvalid, m.Intensity)
	case m.FrameCount < 0:
		return fmt.Errorf("%w: frame_count %d", ErrInvalid, m.FrameCount)
	}
	return nil
}

// ReadMetadata parses a metadata file. "scale" is accepted as an older
// name for "intensity".
func ReadMetadata(r io.Reader) (*Metadata, error) {
	v, err := Parse(r)
	if err != nil {
		return nil, err
	}
	if _, ok := v["intensity"]; !ok {
		if s, ok := v["scale"]; ok {
			v["intensity"] = s
		}
	}
	if err := v.Require(metadataKeys...); err != nil {
		return nil, err
	}

	m := &Metadata{}
	if m.VideoTime, err = v.intValue("video_time"); err != nil {
		return nil, err
	}
	if m.Rows, err = v.intValue("row"); err != nil {
		return nil, err
	}
	if m.Columns, err = v.intValue("column"); err != nil {
		return nil, err
	}
	if m.Intensity, err = v.floatValue("intensity"); err != nil {
		return nil, err
	}
	if m.FrameCount, err = v.intValue("frame_count"); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// WriteMetadata writes m in key=value form.
func WriteMetadata(w io.Writer, m *Metadata) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return writePairs(w, []pair{
		{"video_time", strconv.Itoa(m.VideoTime)},
		{"row", strconv.Itoa(m.Rows)},
		{"column", strconv.Itoa(m.Columns)},
		{"intensity", strconv.FormatFloat(m.Intensity, 'g', -1, 64)},
		{"frame_count", strconv.Itoa(m.FrameCount)},
	})
}

// Fingerprint is the sealed digest of a clip's hash chain.
type Fingerprint struct {
	Digest    string // Hex digest
	Time      string // Timestamp from the timestamp service, if any
	Sign      string // Service signature over the digest, if any
	Algorithm string // Chain algorithm; empty means sha256
}

// Stamped reports whether the fingerprint carries a service timestamp.
func (f *Fingerprint) Stamped() bool {
	return f.Time != "" || f.Sign != ""
}

// ReadFingerprint parses a fingerprint file.
func ReadFingerprint(r io.Reader) (*Fingerprint, error) {
	v, err := Parse(r)
	if err != nil {
		return nil, err
	}
	if err := v.Require("digest"); err != nil {
		return nil, err
	}
	f := &Fingerprint{
		Digest:    strings.TrimSpace(v["digest"]),
		Time:      v["time"],
		Sign:      v["sign"],
		Algorithm: strings.TrimSpace(v["algorithm"]),
	}
	if f.Digest == "" {
		return nil, fmt.Errorf("%w: empty digest", ErrInvalid)
	}
	return f, nil
}

// WriteFingerprint writes f. Empty optional fields are omitted.
func WriteFingerprint(w io.Writer, f *Fingerprint) error {
	if f.Digest == "" {
		return fmt.Errorf("%w: empty digest", ErrInvalid)
	}
	pairs := []pair{{"digest", f.Digest}}
	if f.Time != "" {
		pairs = append(pairs, pair{"time", f.Time})
	}
	if f.Sign != "" {
		pairs = append(pairs, pair{"sign", f.Sign})
	}
	if f.Algorithm != "" {
		pairs = append(pairs, pair{"algorithm", f.Algorithm})
	}
	return writePairs(w, pairs)
}

// LoadMetadata reads a metadata file from disk.
func LoadMetadata(path string) (*Metadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	m, err := ReadMetadata(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// SaveMetadata writes a metadata file to disk.
func SaveMetadata(path string, m *Metadata) error {
	return saveFile(path, func(w io.Writer) error { return WriteMetadata(w, m) })
}

// LoadFingerprint reads a fingerprint file from disk.
func LoadFingerprint(path string) (*Fingerprint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	f, err := ReadFingerprint(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// SaveFingerprint writes a fingerprint file to disk.
func SaveFingerprint(path string, f *Fingerprint) error {
	return saveFile(path, func(w io.Writer) error { return WriteFingerprint(w, f) })
}

func saveFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return file.Close()
}
