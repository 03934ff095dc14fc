package db

import (
	"github.com/jackc/pgx/v5"
)

// CopyRow is a row that knows its COPY column values.
type CopyRow interface {
	CopyValues() []any
}

// SliceSource implements pgx.CopyFromSource over an in-memory batch of rows.
// Batches are bounded by the configured batch size, so the whole chunk is
// already materialized by the time COPY starts.
type SliceSource[T CopyRow] struct {
	rows []T
	idx  int
}

// NewSliceSource creates a CopyFromSource backed by rows.
func NewSliceSource[T CopyRow](rows []T) *SliceSource[T] {
	return &SliceSource[T]{rows: rows, idx: -1}
}

// Next advances to the next row. Returns false after the last row.
func (s *SliceSource[T]) Next() bool {
	s.idx++
	return s.idx < len(s.rows)
}

// Values returns the current row's values in COPY column order.
func (s *SliceSource[T]) Values() ([]any, error) {
	return s.rows[s.idx].CopyValues(), nil
}

// Err always returns nil; an in-memory source cannot fail mid-iteration.
func (s *SliceSource[T]) Err() error {
	return nil
}

// Compile-time check that SliceSource satisfies the interface.
var _ pgx.CopyFromSource = (*SliceSource[CopyRow])(nil)
