// Package instrumented wraps an operator with Prometheus timing and call counters.
package instrumented

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/ebogdum/flystream/backends"
	"github.com/ebogdum/flystream/metrics"
)

// Operator decorates another operator, recording one sample per call
type Operator struct {
	next   backends.Operator
	scheme string
}

// Wrap returns op instrumented under the scheme label
func Wrap(scheme string, op backends.Operator) *Operator {
	return &Operator{next: op, scheme: scheme}
}

// Unwrap returns the decorated operator
func (o *Operator) Unwrap() backends.Operator {
	return o.next
}

func (o *Operator) observe(operation string, start time.Time, err error) {
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, backends.ErrNotFound):
		status = "not_found"
	default:
		status = "failure"
	}

	metrics.BackendOpsTotal.WithLabelValues(o.scheme, operation, status).Inc()
	metrics.BackendOpDuration.WithLabelValues(o.scheme, operation).Observe(time.Since(start).Seconds())
}

func (o *Operator) FileExists(ctx context.Context, path string) (bool, error) {
	start := time.Now()
	ok, err := o.next.FileExists(ctx, path)
	o.observe("file_exists", start, err)
	return ok, err
}

func (o *Operator) DirectoryExists(ctx context.Context, path string) (bool, error) {
	start := time.Now()
	ok, err := o.next.DirectoryExists(ctx, path)
	o.observe("directory_exists", start, err)
	return ok, err
}

func (o *Operator) Read(ctx context.Context, path string) ([]byte, error) {
	start := time.Now()
	data, err := o.next.Read(ctx, path)
	o.observe("read", start, err)
	return data, err
}

func (o *Operator) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	start := time.Now()
	r, err := o.next.ReadStream(ctx, path)
	o.observe("read_stream", start, err)
	return r, err
}

func (o *Operator) Write(ctx context.Context, path string, data []byte, cfg backends.WriteConfig) error {
	start := time.Now()
	err := o.next.Write(ctx, path, data, cfg)
	o.observe("write", start, err)
	return err
}

func (o *Operator) WriteStream(ctx context.Context, path string, r io.Reader, cfg backends.WriteConfig) error {
	start := time.Now()
	err := o.next.WriteStream(ctx, path, r, cfg)
	o.observe("write_stream", start, err)
	return err
}

func (o *Operator) Delete(ctx context.Context, path string) error {
	start := time.Now()
	err := o.next.Delete(ctx, path)
	o.observe("delete", start, err)
	return err
}

func (o *Operator) DeleteDirectory(ctx context.Context, path string) error {
	start := time.Now()
	err := o.next.DeleteDirectory(ctx, path)
	o.observe("delete_directory", start, err)
	return err
}

func (o *Operator) CreateDirectory(ctx context.Context, path string, cfg backends.WriteConfig) error {
	start := time.Now()
	err := o.next.CreateDirectory(ctx, path, cfg)
	o.observe("create_directory", start, err)
	return err
}

func (o *Operator) Move(ctx context.Context, src, dst string, cfg backends.WriteConfig) error {
	start := time.Now()
	err := o.next.Move(ctx, src, dst, cfg)
	o.observe("move", start, err)
	return err
}

func (o *Operator) Copy(ctx context.Context, src, dst string, cfg backends.WriteConfig) error {
	start := time.Now()
	err := o.next.Copy(ctx, src, dst, cfg)
	o.observe("copy", start, err)
	return err
}

func (o *Operator) ListContents(ctx context.Context, path string, deep bool) (backends.Lister, error) {
	start := time.Now()
	l, err := o.next.ListContents(ctx, path, deep)
	o.observe("list_contents", start, err)
	return l, err
}

func (o *Operator) Visibility(ctx context.Context, path string) (backends.Visibility, error) {
	start := time.Now()
	v, err := o.next.Visibility(ctx, path)
	o.observe("visibility", start, err)
	return v, err
}

func (o *Operator) SetVisibility(ctx context.Context, path string, visibility backends.Visibility) error {
	start := time.Now()
	err := o.next.SetVisibility(ctx, path, visibility)
	o.observe("set_visibility", start, err)
	return err
}

func (o *Operator) FileSize(ctx context.Context, path string) (int64, error) {
	start := time.Now()
	size, err := o.next.FileSize(ctx, path)
	o.observe("file_size", start, err)
	return size, err
}

func (o *Operator) LastModified(ctx context.Context, path string) (time.Time, error) {
	start := time.Now()
	t, err := o.next.LastModified(ctx, path)
	o.observe("last_modified", start, err)
	return t, err
}

func (o *Operator) MimeType(ctx context.Context, path string) (string, error) {
	start := time.Now()
	m, err := o.next.MimeType(ctx, path)
	o.observe("mime_type", start, err)
	return m, err
}

func (o *Operator) Stat(ctx context.Context, path string) (*backends.Attributes, error) {
	start := time.Now()
	attrs, err := o.next.Stat(ctx, path)
	o.observe("stat", start, err)
	return attrs, err
}

func (o *Operator) Capabilities() backends.Capabilities {
	return o.next.Capabilities()
}

func (o *Operator) Close() error {
	return o.next.Close()
}
