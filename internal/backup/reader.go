package backup

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Reader streams the rows of a snapshot file.
type Reader struct {
	file   *os.File
	pf     *parquet.File
	reader *parquet.GenericReader[Row]
}

// Open opens a snapshot file and checks its schema.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	if err := ValidateSchema(pf.Schema()); err != nil {
		f.Close()
		return nil, err
	}

	r := parquet.NewGenericReader[Row](pf)
	return &Reader{file: f, pf: pf, reader: r}, nil
}

// NumRows returns the total number of rows in the snapshot.
func (r *Reader) NumRows() int64 {
	return r.reader.NumRows()
}

// Collection returns the collection recorded in the file metadata.
func (r *Reader) Collection() string {
	v, _ := r.pf.Lookup(MetadataCollection)
	return v
}

// Read reads up to len(rows) records into the provided slice.
// Returns the number of rows read and io.EOF when done.
func (r *Reader) Read(rows []Row) (int, error) {
	n, err := r.reader.Read(rows)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("read snapshot rows: %w", err)
	}
	return n, err
}

// ReadAll returns every row of the snapshot.
func (r *Reader) ReadAll() ([]Row, error) {
	out := make([]Row, 0, r.NumRows())
	buf := make([]Row, 512)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Close releases all resources.
func (r *Reader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// ValidateSchema checks that a parquet schema carries every snapshot column.
func ValidateSchema(schema *parquet.Schema) error {
	columns := make(map[string]bool)
	for _, field := range schema.Fields() {
		columns[strings.ToLower(field.Name())] = true
	}
	for _, col := range []string{"collection", "payment_event_id", "key", "payload"} {
		if !columns[col] {
			return fmt.Errorf("missing required column: %s", col)
		}
	}
	return nil
}

// ReadSnapshot reads a whole snapshot file and returns its collection and rows.
func ReadSnapshot(path string) (string, []Row, error) {
	r, err := Open(path)
	if err != nil {
		return "", nil, err
	}
	defer r.Close()
	rows, err := r.ReadAll()
	if err != nil {
		return "", nil, err
	}
	return r.Collection(), rows, nil
}
