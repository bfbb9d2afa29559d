package backends

import (
	"context"
	"io"
)

// SliceLister serves a listing that was already materialized
type SliceLister struct {
	entries []*Attributes
	next    int
}

// NewSliceLister creates a lister over entries
func NewSliceLister(entries []*Attributes) *SliceLister {
	return &SliceLister{entries: entries}
}

// Next returns the next entry or io.EOF
func (l *SliceLister) Next(ctx context.Context) (*Attributes, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.next >= len(l.entries) {
		return nil, io.EOF
	}
	entry := l.entries[l.next]
	l.next++
	return entry, nil
}

// Close releases the listing
func (l *SliceLister) Close() error {
	l.entries = nil
	return nil
}

// Collect drains a lister into a slice and closes it
func Collect(ctx context.Context, l Lister) ([]*Attributes, error) {
	defer l.Close()

	var out []*Attributes
	for {
		entry, err := l.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, entry)
	}
}

// Int64 returns a pointer to v
func Int64(v int64) *int64 { return &v }

// VisibilityPtr returns a pointer to v
func VisibilityPtr(v Visibility) *Visibility { return &v }
