// Command pinto records, redacts, verifies and restores clips of JPEG
// frames.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ajroetker/go-pinto/hashchain"
	"github.com/ajroetker/go-pinto/internal/container"
	"github.com/ajroetker/go-pinto/internal/meta"
	"github.com/ajroetker/go-pinto/internal/pipeline"
	"github.com/ajroetker/go-pinto/internal/timestamp"
	"github.com/ajroetker/go-pinto/internal/vault"
	"github.com/ajroetker/go-pinto/watermark"
)

// errDifferent makes verify exit non-zero without printing an error.
var errDifferent = errors.New("clip does not match its fingerprint")

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: pinto <command> [flags] [arguments]")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  record  [flags] <id> <frame-dir>")
	fmt.Fprintln(os.Stderr, "  redact  [flags] <id>")
	fmt.Fprintln(os.Stderr, "  verify  [flags] <id>")
	fmt.Fprintln(os.Stderr, "  restore [flags] <id> <out-dir>")
	fmt.Fprintln(os.Stderr, "  inspect [flags] <frame.jpg | id>")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "record":
		err = runRecord(ctx, os.Args[2:])
	case "redact":
		err = runRedact(ctx, os.Args[2:])
	case "verify":
		err = runVerify(ctx, os.Args[2:])
	case "restore":
		err = runRestore(ctx, os.Args[2:])
	case "inspect":
		err = runInspect(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if errors.Is(err, errDifferent) {
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pinto %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

// command holds what every subcommand sets up from its flags.
type command struct {
	fs      *flag.FlagSet
	cfgPath *string
	dataDir *string
	workers *int
	cfg     *Config
	log     *logrus.Logger
}

func newCommand(name string) *command {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return &command{
		fs:      fs,
		cfgPath: fs.String("config", "", "config file (default "+defaultConfigPath+")"),
		dataDir: fs.String("data", "", "clip directory, overrides the config"),
		workers: fs.Int("workers", 0, "frames processed in parallel, overrides the config"),
	}
}

// parse parses args, loads the config and applies flag overrides.
func (c *command) parse(args []string, nargs int) error {
	c.fs.Parse(args)
	if c.fs.NArg() != nargs {
		c.fs.Usage()
		return fmt.Errorf("want %d arguments, got %d", nargs, c.fs.NArg())
	}
	path, explicit := *c.cfgPath, *c.cfgPath != ""
	if !explicit {
		path = defaultConfigPath
	}
	cfg, err := loadConfig(path, explicit)
	if err != nil {
		return err
	}
	if *c.dataDir != "" {
		cfg.DataDir = *c.dataDir
	}
	if *c.workers != 0 {
		cfg.Workers = *c.workers
	}
	log, err := cfg.logger()
	if err != nil {
		return err
	}
	c.cfg, c.log = cfg, log
	return nil
}

func (c *command) stamper() pipeline.Stamper {
	if c.cfg.TimestampAddr == "" {
		return nil
	}
	return &timestamp.Client{Addr: c.cfg.TimestampAddr, Timeout: c.cfg.TimestampTimeout}
}

func (c *command) openVault() (*vault.Vault, error) {
	if c.cfg.VaultPath == "" {
		return nil, errors.New("no vaultPath configured")
	}
	return vault.Open(vault.Config{Path: c.cfg.VaultPath, Logger: c.log})
}

func openClip(path string) (*container.Reader, func() error, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return container.NewReader(file), file.Close, nil
}

func runRecord(_ context.Context, args []string) error {
	c := newCommand("record")
	rows := c.fs.Int("rows", 0, "detection grid rows")
	cols := c.fs.Int("cols", 0, "detection grid columns")
	intensity := c.fs.Float64("intensity", 0, "pixelation factor")
	if err := c.parse(args, 2); err != nil {
		return err
	}
	id, frameDir := c.fs.Arg(0), c.fs.Arg(1)
	if *rows != 0 {
		c.cfg.Rows = *rows
	}
	if *cols != 0 {
		c.cfg.Columns = *cols
	}
	if *intensity != 0 {
		c.cfg.Intensity = *intensity
	}

	src, err := newDirSource(frameDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.cfg.DataDir, 0o755); err != nil {
		return err
	}
	rec := &pipeline.FileRecorder{
		Dir:       c.cfg.DataDir,
		Rows:      c.cfg.Rows,
		Cols:      c.cfg.Columns,
		Intensity: c.cfg.Intensity,
		Algorithm: hashchain.Algorithm(c.cfg.Algorithm),
		FrameRate: c.cfg.FrameRate,
		Stamper:   c.stamper(),
		Logger:    c.log,
	}
	if err := rec.Begin(id); err != nil {
		return err
	}
	for {
		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			rec.End()
			return err
		}
		if err := rec.Write(frame); err != nil {
			rec.End()
			return err
		}
	}
	if err := rec.End(); err != nil {
		return err
	}
	fmt.Println(rec.Fingerprint().Digest)
	return nil
}

func runRedact(ctx context.Context, args []string) error {
	c := newCommand("redact")
	regions := c.fs.String("regions", "", "region file with the detections of each frame")
	out := c.fs.String("out", "", "id of the redacted clip (default <id>-redacted)")
	codec := c.fs.String("codec", "", "side-channel block codec (png or qoi), overrides the config")
	escrow := c.fs.Bool("escrow", false, "store the original cells in the vault")
	if err := c.parse(args, 1); err != nil {
		return err
	}
	id := c.fs.Arg(0)
	if *out == "" {
		*out = id + "-redacted"
	}
	if *codec != "" {
		c.cfg.Codec = *codec
	}

	src := pipeline.ClipPaths(c.cfg.DataDir, id)
	dst := pipeline.ClipPaths(c.cfg.DataDir, *out)
	m, err := meta.LoadMetadata(src.Metadata)
	if err != nil {
		return err
	}
	blockCodec, err := watermark.CodecByName(c.cfg.Codec)
	if err != nil {
		return err
	}
	opts := pipeline.Options{
		Rows:      m.Rows,
		Cols:      m.Columns,
		Intensity: m.Intensity,
		Detector:  pipeline.NoDetections{},
		Codec:     blockCodec,
		Algorithm: hashchain.Algorithm(c.cfg.Algorithm),
		Workers:   c.cfg.Workers,
		Clip:      *out,
		Logger:    c.log,
	}
	if *regions != "" {
		rf, err := pipeline.LoadRegions(*regions)
		if err != nil {
			return err
		}
		opts.Detector = rf
	}
	if *escrow {
		v, err := c.openVault()
		if err != nil {
			return err
		}
		defer v.Close()
		opts.Vault = v
	}
	r, err := pipeline.NewRedactor(opts)
	if err != nil {
		return err
	}

	reader, closeSrc, err := openClip(src.Video)
	if err != nil {
		return err
	}
	defer closeSrc()
	file, err := os.Create(dst.Video)
	if err != nil {
		return err
	}
	defer file.Close()
	w := container.NewWriter(file)
	res, err := r.RedactClip(ctx, reader, w)
	if err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	// The recording fingerprint, when present, vouches for the source.
	if fp, err := meta.LoadFingerprint(src.Fingerprint); err == nil {
		if alg, _ := hashchain.ParseAlgorithm(fp.Algorithm); alg == res.Source.Algorithm() {
			if !strings.EqualFold(fp.Digest, res.Source.HexDigest()) {
				c.log.WithFields(logrus.Fields{"clip": id, "expected": fp.Digest, "actual": res.Source.HexDigest()}).
					Error("source clip does not match its recording fingerprint")
			}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	m.FrameCount = res.Frames
	if err := meta.SaveMetadata(dst.Metadata, m); err != nil {
		return err
	}
	fp := pipeline.Seal(ctx, res.Stored, c.stamper(), c.log)
	if err := meta.SaveFingerprint(dst.Fingerprint, fp); err != nil {
		return err
	}
	fmt.Printf("%s: %d frames, %d redacted, %d cells\n", *out, res.Frames, res.RedactedFrames, res.RedactedCells)
	return nil
}

func runVerify(ctx context.Context, args []string) error {
	c := newCommand("verify")
	checkVault := c.fs.Bool("vault", false, "check side-channel blocks against escrowed originals")
	if err := c.parse(args, 1); err != nil {
		return err
	}
	id := c.fs.Arg(0)
	paths := pipeline.ClipPaths(c.cfg.DataDir, id)
	m, err := meta.LoadMetadata(paths.Metadata)
	if err != nil {
		return err
	}
	fp, err := meta.LoadFingerprint(paths.Fingerprint)
	if err != nil {
		return err
	}
	opts := pipeline.VerifyOptions{
		Rows:      m.Rows,
		Cols:      m.Columns,
		Intensity: m.Intensity,
		Workers:   c.cfg.Workers,
		Logger:    c.log,
	}
	if *checkVault {
		v, err := c.openVault()
		if err != nil {
			return err
		}
		defer v.Close()
		opts.Vault, opts.Clip = v, id
	}

	reader, closeSrc, err := openClip(paths.Video)
	if err != nil {
		return err
	}
	defer closeSrc()
	verdict, err := pipeline.Verify(ctx, reader, fp, opts)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s (%d frames)\n", id, verdict, verdict.Frames)
	if len(verdict.TamperedFrames) > 0 {
		fmt.Printf("tampered frames: %v\n", verdict.TamperedFrames)
	}
	if !verdict.Same {
		return errDifferent
	}
	return nil
}

func runRestore(ctx context.Context, args []string) error {
	c := newCommand("restore")
	quality := c.fs.Int("quality", pipeline.DefaultQuality, "JPEG quality of restored frames")
	if err := c.parse(args, 2); err != nil {
		return err
	}
	id, outDir := c.fs.Arg(0), c.fs.Arg(1)
	paths := pipeline.ClipPaths(c.cfg.DataDir, id)
	m, err := meta.LoadMetadata(paths.Metadata)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	reader, closeSrc, err := openClip(paths.Video)
	if err != nil {
		return err
	}
	defer closeSrc()
	patched, err := pipeline.Restore(ctx, reader, &dirSink{dir: outDir}, pipeline.RestoreOptions{
		Rows:    m.Rows,
		Cols:    m.Columns,
		Quality: *quality,
		Workers: c.cfg.Workers,
		Logger:  c.log,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d frames patched into %s\n", id, patched, outDir)
	return nil
}

func runInspect(args []string) error {
	c := newCommand("inspect")
	index := c.fs.Int("frame", 0, "frame of the clip to inspect")
	rows := c.fs.Int("rows", 0, "detection grid rows (default from metadata or config)")
	cols := c.fs.Int("cols", 0, "detection grid columns (default from metadata or config)")
	if err := c.parse(args, 1); err != nil {
		return err
	}
	arg := c.fs.Arg(0)
	r, k := c.cfg.Rows, c.cfg.Columns

	var data []byte
	if ext := strings.ToLower(filepath.Ext(arg)); ext == ".jpg" || ext == ".jpeg" {
		b, err := os.ReadFile(arg)
		if err != nil {
			return err
		}
		data = b
	} else {
		paths := pipeline.ClipPaths(c.cfg.DataDir, arg)
		if m, err := meta.LoadMetadata(paths.Metadata); err == nil {
			r, k = m.Rows, m.Columns
		}
		reader, closeSrc, err := openClip(paths.Video)
		if err != nil {
			return err
		}
		defer closeSrc()
		for i := 0; i <= *index; i++ {
			if data, err = reader.Next(); err != nil {
				return fmt.Errorf("frame %d: %w", i, err)
			}
		}
	}
	if *rows != 0 {
		r = *rows
	}
	if *cols != 0 {
		k = *cols
	}
	return inspect(os.Stdout, data, r, k)
}
