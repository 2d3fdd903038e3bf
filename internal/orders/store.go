package orders

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Bucket is one of the three order directories.
type Bucket string

const (
	BucketNew       Bucket = "new"
	BucketProcessed Bucket = "processed"
	BucketCancelled Bucket = "cancelled"
)

// Buckets lists every bucket in lookup order.
var Buckets = []Bucket{BucketNew, BucketProcessed, BucketCancelled}

const (
	fileExt        = ".json"
	fileMarker     = "_order_"
	filenameLayout = "20060102_150405"
)

var (
	// ErrNotFound is returned when no bucket holds the requested order.
	ErrNotFound = errors.New("order not found")
	// ErrRaceLost is returned by Move when the source file vanished, which
	// means another writer already transitioned the order.
	ErrRaceLost = errors.New("order file moved by another writer")
	// ErrInvalidOrderID is returned for ids that cannot be embedded in a filename.
	ErrInvalidOrderID = errors.New("order id is not usable as a filename")
)

// Handle locates one order file.
type Handle struct {
	Bucket Bucket
	Name   string
	Path   string
}

// Repository is the storage contract used by the pipeline and the gateway.
type Repository interface {
	WriteNew(ctx context.Context, doc *Document) (Handle, error)
	Find(ctx context.Context, orderID string) (Handle, error)
	Read(ctx context.Context, h Handle) (*Document, error)
	Pending(ctx context.Context) iter.Seq2[*Document, error]
	Move(ctx context.Context, orderID string, from, to Bucket) (Handle, error)
	Count(ctx context.Context, bucket Bucket) (int, error)
}

// Store keeps orders as JSON files in one directory per bucket.
// It holds no locks: rename atomicity is the only guard between writers.
type Store struct {
	root    string
	log     *logrus.Entry
	nowFunc func() time.Time
}

var _ Repository = (*Store)(nil)

// NewStore creates a Store rooted at dir. Bucket directories are created lazily.
func NewStore(dir string, log *logrus.Entry) *Store {
	return &Store{
		root:    dir,
		log:     log,
		nowFunc: time.Now,
	}
}

// Init creates all bucket directories.
func (s *Store) Init() error {
	for _, b := range Buckets {
		if err := os.MkdirAll(s.dir(b), 0o755); err != nil {
			return fmt.Errorf("create bucket %s: %w", b, err)
		}
	}
	return nil
}

func (s *Store) dir(b Bucket) string { return filepath.Join(s.root, string(b)) }

func fileSuffix(orderID string) string { return fileMarker + orderID + fileExt }

// ValidOrderID reports whether id can be embedded in an order filename.
func ValidOrderID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`+"\x00")
}

// WriteNew stores doc in the new bucket as <timestamp>_order_<id>.json.
// The file is written under a temporary name first so listings never see
// a partially written order.
func (s *Store) WriteNew(ctx context.Context, doc *Document) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	if !ValidOrderID(doc.ID()) {
		return Handle{}, fmt.Errorf("%w: %q", ErrInvalidOrderID, doc.ID())
	}
	data, err := encodeFile(doc)
	if err != nil {
		return Handle{}, err
	}

	dir := s.dir(BucketNew)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Handle{}, fmt.Errorf("create bucket %s: %w", BucketNew, err)
	}

	name := s.nowFunc().Format(filenameLayout) + fileSuffix(doc.ID())
	tmp, err := os.CreateTemp(dir, ".order-*.tmp")
	if err != nil {
		return Handle{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Handle{}, fmt.Errorf("write order file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return Handle{}, fmt.Errorf("close order file: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return Handle{}, fmt.Errorf("publish order file: %w", err)
	}

	s.log.WithFields(logrus.Fields{"order_id": doc.ID(), "file": name}).Info("order saved")
	return Handle{Bucket: BucketNew, Name: name, Path: path}, nil
}

// listNames returns the order file names of a bucket in ascending order.
// A missing bucket directory is treated as empty.
func (s *Store) listNames(b Bucket) ([]string, error) {
	entries, err := os.ReadDir(s.dir(b))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list bucket %s: %w", b, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) findIn(b Bucket, orderID string) (Handle, error) {
	names, err := s.listNames(b)
	if err != nil {
		return Handle{}, err
	}
	suffix := fileSuffix(orderID)
	for _, name := range names {
		if strings.HasSuffix(name, suffix) {
			return Handle{Bucket: b, Name: name, Path: filepath.Join(s.dir(b), name)}, nil
		}
	}
	return Handle{}, ErrNotFound
}

// Find scans new, processed and cancelled, in that order, for the order file.
func (s *Store) Find(ctx context.Context, orderID string) (Handle, error) {
	if !ValidOrderID(orderID) {
		return Handle{}, ErrNotFound
	}
	for _, b := range Buckets {
		if err := ctx.Err(); err != nil {
			return Handle{}, err
		}
		h, err := s.findIn(b, orderID)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Handle{}, err
		}
	}
	return Handle{}, ErrNotFound
}

// Read loads the order file behind h. A file that disappeared since it was
// located yields ErrNotFound.
func (s *Store) Read(ctx context.Context, h Handle) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(h.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, h.Name)
		}
		return nil, fmt.Errorf("read %s: %w", h.Name, err)
	}
	doc, err := decodeFile(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", h.Name, err)
	}
	return doc, nil
}

// Pending yields orders from the new bucket whose status is still
// processing, oldest file first. Files that vanish or fail to decode are
// logged and skipped; only a failure to list the bucket is yielded as an error.
func (s *Store) Pending(ctx context.Context) iter.Seq2[*Document, error] {
	return func(yield func(*Document, error) bool) {
		names, err := s.listNames(BucketNew)
		if err != nil {
			yield(nil, err)
			return
		}
		dir := s.dir(BucketNew)
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			doc, err := s.Read(ctx, Handle{Bucket: BucketNew, Name: name, Path: filepath.Join(dir, name)})
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					s.log.WithField("file", name).Debug("order file moved away while listing")
				} else {
					s.log.WithError(err).WithField("file", name).Error("skipping unreadable order file")
				}
				continue
			}
			if doc.Status() != StatusProcessing {
				continue
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

// Move renames the order file from one bucket to another, creating the
// destination directory if needed. If the source is gone, ErrRaceLost is
// returned; callers should read that as "already transitioned".
func (s *Store) Move(ctx context.Context, orderID string, from, to Bucket) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	src, err := s.findIn(from, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Handle{}, fmt.Errorf("%w: order %s not in %s", ErrRaceLost, orderID, from)
		}
		return Handle{}, err
	}

	dstDir := s.dir(to)
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return Handle{}, fmt.Errorf("create bucket %s: %w", to, err)
	}
	dst := Handle{Bucket: to, Name: src.Name, Path: filepath.Join(dstDir, src.Name)}
	if err := os.Rename(src.Path, dst.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Handle{}, fmt.Errorf("%w: %s", ErrRaceLost, src.Name)
		}
		return Handle{}, fmt.Errorf("move %s to %s: %w", src.Name, to, err)
	}

	s.log.WithFields(logrus.Fields{"order_id": orderID, "from": from, "to": to}).Info("order moved")
	return dst, nil
}

// Count returns the number of order files in a bucket.
func (s *Store) Count(ctx context.Context, bucket Bucket) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	names, err := s.listNames(bucket)
	if err != nil {
		return 0, err
	}
	return len(names), nil
}
