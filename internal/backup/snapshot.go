package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"github.com/gyeh/payrun/internal/normalize"
	"github.com/gyeh/payrun/internal/payerr"
)

// Uploader copies a local snapshot file to durable storage and returns its
// remote reference.
type Uploader interface {
	Upload(ctx context.Context, localPath, objectKey string) (string, error)
}

// Snapshotter writes one parquet file per collection under Dir.
type Snapshotter struct {
	Dir      string
	Uploader Uploader
	Now      func() time.Time
	Log      zerolog.Logger
}

// NewSnapshotter returns a Snapshotter writing under dir. uploader may be nil.
func NewSnapshotter(dir string, uploader Uploader, log zerolog.Logger) *Snapshotter {
	return &Snapshotter{Dir: dir, Uploader: uploader, Now: time.Now, Log: log}
}

// Snapshot writes rows to <dir>/<event>/<collection>-<timestamp>.parquet and
// returns a reference of the form <location>#sha256=<hex>. An empty row set
// still produces a file.
func (s *Snapshotter) Snapshot(ctx context.Context, paymentEventID, collection string, rows []Row) (string, error) {
	const op = "backup.Snapshot"
	if err := ctx.Err(); err != nil {
		return "", payerr.Wrap(payerr.KindProcessingState, op, err)
	}
	start := time.Now()

	stamp := s.Now().UTC().Format("20060102T150405.000000000Z")
	rel := filepath.Join(paymentEventID, fmt.Sprintf("%s-%s.parquet", collection, stamp))
	path := filepath.Join(s.Dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", payerr.Wrap(payerr.KindExternalService, op, err).With("path", path)
	}

	if err := writeFile(path, collection, rows); err != nil {
		return "", payerr.Wrap(payerr.KindExternalService, op, err).With("path", path)
	}
	sum, size, err := normalize.FileDigest(path)
	if err != nil {
		return "", payerr.Wrap(payerr.KindExternalService, op, err).With("path", path)
	}

	location := path
	if s.Uploader != nil {
		location, err = s.Uploader.Upload(ctx, path, filepath.ToSlash(rel))
		if err != nil {
			return "", payerr.Wrap(payerr.KindExternalService, op, err).With("path", path)
		}
	}

	ref := location + "#sha256=" + sum
	s.Log.Info().
		Str("collection", collection).
		Int("rows", len(rows)).
		Int64("bytes", size).
		Str("ref", ref).
		Dur("duration", time.Since(start)).
		Msg("snapshot written")
	return ref, nil
}

func writeFile(path, collection string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	w := parquet.NewGenericWriter[Row](f, parquet.KeyValueMetadata(MetadataCollection, collection))
	if len(rows) > 0 {
		if _, err := w.Write(rows); err != nil {
			f.Close()
			return fmt.Errorf("write snapshot rows: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close snapshot writer: %w", err)
	}
	return f.Close()
}
