// Package vault escrows the original pixels of redacted cells so that an
// authorized party can later check each watermark against what it
// replaced. Blocks are zstd-compressed and kept in a badger database.
package vault

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"

	"github.com/ajroetker/go-pinto/watermark"
)

// ErrNotFound is returned when no block is stored under a key.
var ErrNotFound = errors.New("vault: block not found")

// Config configures a vault.
type Config struct {
	Path     string // Database directory; ignored when InMemory is set
	InMemory bool
	Logger   *logrus.Logger
}

// Vault stores original block captures keyed by clip, frame and cell.
// It is safe for concurrent use.
type Vault struct {
	db  *badger.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
	log *logrus.Logger
}

// Open opens or creates a vault.
func Open(cfg Config) (*Vault, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Path == "" && !cfg.InMemory {
		return nil, errors.New("vault: no path provided in configuration")
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("vault: open %s: %w", cfg.Path, err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("vault: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("vault: zstd decoder: %w", err)
	}

	cfg.Logger.WithFields(logrus.Fields{
		"path":     cfg.Path,
		"inMemory": cfg.InMemory,
	}).Debug("vault opened")
	return &Vault{db: db, enc: enc, dec: dec, log: cfg.Logger}, nil
}

// Close releases the database.
func (v *Vault) Close() error {
	v.enc.Close()
	v.dec.Close()
	return v.db.Close()
}

// key is clip name, a zero byte, then frame and cell as big-endian
// integers, so a clip's blocks sort in capture order.
func key(clip string, frame, cell int) []byte {
	k := make([]byte, 0, len(clip)+9)
	k = append(k, clip...)
	k = append(k, 0)
	k = binary.BigEndian.AppendUint32(k, uint32(frame))
	return binary.BigEndian.AppendUint32(k, uint32(cell))
}

func clipPrefix(clip string) []byte {
	return append([]byte(clip), 0)
}

// Put stores the original pixels of one cell.
func (v *Vault) Put(clip string, frame, cell int, b watermark.Block) error {
	if err := b.Validate(); err != nil {
		return err
	}
	val := make([]byte, 8, 8+len(b.Pix)/2)
	binary.BigEndian.PutUint32(val[0:], uint32(b.Width))
	binary.BigEndian.PutUint32(val[4:], uint32(b.Height))
	val = v.enc.EncodeAll(b.Pix, val)

	err := v.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(clip, frame, cell), val)
	})
	if err != nil {
		return fmt.Errorf("vault: put %s/%d/%d: %w", clip, frame, cell, err)
	}
	return nil
}

// Get returns the original pixels of one cell.
func (v *Vault) Get(clip string, frame, cell int) (watermark.Block, error) {
	var val []byte
	err := v.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(clip, frame, cell))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return watermark.Block{}, fmt.Errorf("%w: %s/%d/%d", ErrNotFound, clip, frame, cell)
	}
	if err != nil {
		return watermark.Block{}, fmt.Errorf("vault: get %s/%d/%d: %w", clip, frame, cell, err)
	}
	return v.decode(val)
}

func (v *Vault) decode(val []byte) (watermark.Block, error) {
	if len(val) < 8 {
		return watermark.Block{}, errors.New("vault: corrupt entry")
	}
	b := watermark.Block{
		Width:  int(binary.BigEndian.Uint32(val[0:])),
		Height: int(binary.BigEndian.Uint32(val[4:])),
	}
	pix, err := v.dec.DecodeAll(val[8:], nil)
	if err != nil {
		return watermark.Block{}, fmt.Errorf("vault: decompress: %w", err)
	}
	b.Pix = pix
	if err := b.Validate(); err != nil {
		return watermark.Block{}, fmt.Errorf("vault: corrupt entry: %w", err)
	}
	return b, nil
}

// Key identifies one escrowed block.
type Key struct {
	Frame int
	Cell  int
}

// Keys lists the blocks stored for clip in capture order.
func (v *Vault) Keys(clip string) ([]Key, error) {
	prefix := clipPrefix(clip)
	var keys []Key
	err := v.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()[len(prefix):]
			if len(k) != 8 {
				continue
			}
			keys = append(keys, Key{
				Frame: int(binary.BigEndian.Uint32(k[0:])),
				Cell:  int(binary.BigEndian.Uint32(k[4:])),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vault: list %s: %w", clip, err)
	}
	return keys, nil
}

// DeleteClip removes every block stored for clip.
func (v *Vault) DeleteClip(clip string) error {
	keys, err := v.Keys(clip)
	if err != nil {
		return err
	}
	wb := v.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(key(clip, k.Frame, k.Cell)); err != nil {
			return fmt.Errorf("vault: delete %s: %w", clip, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("vault: delete %s: %w", clip, err)
	}
	v.log.WithFields(logrus.Fields{
		"clip":   clip,
		"blocks": len(keys),
	}).Info("vault clip deleted")
	return nil
}
