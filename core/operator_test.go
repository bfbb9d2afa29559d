package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ebogdum/flystream/backends"
)

type memFile struct {
	data       []byte
	visibility backends.Visibility
	modified   time.Time
}

// memoryOperator is an in-memory operator with switches for failure injection
type memoryOperator struct {
	mu    sync.Mutex
	files map[string]*memFile
	dirs  map[string]backends.Visibility
	now   time.Time

	caps         backends.Capabilities
	noStat       bool
	noFileSize   bool
	writeErr     error
	moveErr      error
	visErr       error
	setVisErr    error
	fileSizeCall int
}

func newMemoryOperator() *memoryOperator {
	return &memoryOperator{
		files: make(map[string]*memFile),
		dirs:  make(map[string]backends.Visibility),
		now:   time.Unix(1700000000, 0),
		caps:  backends.AllCapabilities,
	}
}

func (o *memoryOperator) put(path, content string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mkParents(path)
	o.files[path] = &memFile{data: []byte(content), visibility: backends.VisibilityPublic, modified: o.now}
}

func (o *memoryOperator) content(path string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, ok := o.files[path]
	if !ok {
		return "", false
	}
	return string(f.data), true
}

func (o *memoryOperator) mkParents(path string) {
	for dir := parentOf(path); dir != ""; dir = parentOf(dir) {
		if _, ok := o.dirs[dir]; !ok {
			o.dirs[dir] = backends.VisibilityPublic
		}
	}
}

func parentOf(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return ""
}

func (o *memoryOperator) isDir(path string) bool {
	if path == "" {
		return true
	}
	_, ok := o.dirs[path]
	return ok
}

func (o *memoryOperator) FileExists(ctx context.Context, path string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.files[path]
	return ok, nil
}

func (o *memoryOperator) DirectoryExists(ctx context.Context, path string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isDir(path), nil
}

func (o *memoryOperator) Read(ctx context.Context, path string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, ok := o.files[path]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", path, backends.ErrNotFound)
	}
	return bytes.Clone(f.data), nil
}

func (o *memoryOperator) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	data, err := o.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (o *memoryOperator) Write(ctx context.Context, path string, data []byte, cfg backends.WriteConfig) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.writeErr != nil {
		return o.writeErr
	}
	if o.isDir(path) {
		return fmt.Errorf("write %s: %w", path, backends.ErrIsDirectory)
	}

	visibility := cfg.Visibility
	if existing, ok := o.files[path]; ok && visibility == "" {
		visibility = existing.visibility
	}
	if visibility == "" {
		visibility = backends.VisibilityPublic
	}

	o.mkParents(path)
	o.files[path] = &memFile{data: bytes.Clone(data), visibility: visibility, modified: o.now}
	return nil
}

func (o *memoryOperator) WriteStream(ctx context.Context, path string, r io.Reader, cfg backends.WriteConfig) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return o.Write(ctx, path, data, cfg)
}

func (o *memoryOperator) Delete(ctx context.Context, path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.files[path]; !ok {
		return fmt.Errorf("delete %s: %w", path, backends.ErrNotFound)
	}
	delete(o.files, path)
	return nil
}

func (o *memoryOperator) DeleteDirectory(ctx context.Context, path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	prefix := path + "/"
	for p := range o.files {
		if strings.HasPrefix(p, prefix) {
			delete(o.files, p)
		}
	}
	for p := range o.dirs {
		if p == path || strings.HasPrefix(p, prefix) {
			delete(o.dirs, p)
		}
	}
	return nil
}

func (o *memoryOperator) CreateDirectory(ctx context.Context, path string, cfg backends.WriteConfig) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.files[path]; ok {
		return fmt.Errorf("mkdir %s: %w", path, backends.ErrExists)
	}
	o.mkParents(path)
	visibility := cfg.DirectoryVisibility
	if visibility == "" {
		visibility = backends.VisibilityPrivate
	}
	o.dirs[path] = visibility
	return nil
}

func (o *memoryOperator) Move(ctx context.Context, src, dst string, cfg backends.WriteConfig) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.moveErr != nil {
		return o.moveErr
	}

	if f, ok := o.files[src]; ok {
		delete(o.files, src)
		o.mkParents(dst)
		o.files[dst] = f
		return nil
	}
	if !o.isDir(src) {
		return fmt.Errorf("move %s: %w", src, backends.ErrNotFound)
	}

	prefix := src + "/"
	for p, f := range o.files {
		if strings.HasPrefix(p, prefix) {
			delete(o.files, p)
			o.files[dst+"/"+strings.TrimPrefix(p, prefix)] = f
		}
	}
	for p, v := range o.dirs {
		if p == src || strings.HasPrefix(p, prefix) {
			delete(o.dirs, p)
			o.dirs[dst+strings.TrimPrefix(p, src)] = v
		}
	}
	o.mkParents(dst)
	return nil
}

func (o *memoryOperator) Copy(ctx context.Context, src, dst string, cfg backends.WriteConfig) error {
	data, err := o.Read(ctx, src)
	if err != nil {
		return err
	}
	return o.Write(ctx, dst, data, cfg)
}

func (o *memoryOperator) ListContents(ctx context.Context, path string, deep bool) (backends.Lister, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.isDir(path) {
		return nil, fmt.Errorf("list %s: %w", path, backends.ErrNotFound)
	}

	var entries []*backends.Attributes
	for p, f := range o.files {
		if parentOf(p) == path || (deep && strings.HasPrefix(p, path+"/")) {
			modified := f.modified
			entries = append(entries, &backends.Attributes{Path: p, Size: backends.Int64(int64(len(f.data))), LastModified: &modified})
		}
	}
	for p := range o.dirs {
		if parentOf(p) == path || (deep && strings.HasPrefix(p, path+"/")) {
			entries = append(entries, &backends.Attributes{Path: p, IsDir: true})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return backends.NewSliceLister(entries), nil
}

func (o *memoryOperator) Visibility(ctx context.Context, path string) (backends.Visibility, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.visErr != nil {
		return "", o.visErr
	}
	if f, ok := o.files[path]; ok {
		return f.visibility, nil
	}
	if v, ok := o.dirs[path]; ok {
		return v, nil
	}
	return "", fmt.Errorf("visibility %s: %w", path, backends.ErrNotFound)
}

func (o *memoryOperator) SetVisibility(ctx context.Context, path string, visibility backends.Visibility) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.setVisErr != nil {
		return o.setVisErr
	}
	if f, ok := o.files[path]; ok {
		f.visibility = visibility
		return nil
	}
	if _, ok := o.dirs[path]; ok {
		o.dirs[path] = visibility
		return nil
	}
	return fmt.Errorf("chmod %s: %w", path, backends.ErrNotFound)
}

func (o *memoryOperator) FileSize(ctx context.Context, path string) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fileSizeCall++
	if o.noFileSize {
		return 0, fmt.Errorf("size %s: %w", path, backends.ErrUnsupported)
	}
	f, ok := o.files[path]
	if !ok {
		return 0, fmt.Errorf("size %s: %w", path, backends.ErrNotFound)
	}
	return int64(len(f.data)), nil
}

func (o *memoryOperator) LastModified(ctx context.Context, path string) (time.Time, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if f, ok := o.files[path]; ok {
		return f.modified, nil
	}
	return time.Time{}, fmt.Errorf("mtime %s: %w", path, backends.ErrNotFound)
}

func (o *memoryOperator) MimeType(ctx context.Context, path string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.isDir(path) {
		return backends.DirectoryMimeType, nil
	}
	if _, ok := o.files[path]; ok {
		return backends.ContentType(path), nil
	}
	return "", fmt.Errorf("mimetype %s: %w", path, backends.ErrNotFound)
}

func (o *memoryOperator) Stat(ctx context.Context, path string) (*backends.Attributes, error) {
	if o.noStat {
		return nil, fmt.Errorf("stat: %w", backends.ErrUnsupported)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if f, ok := o.files[path]; ok {
		modified := f.modified
		return &backends.Attributes{
			Path:         path,
			Size:         backends.Int64(int64(len(f.data))),
			LastModified: &modified,
		}, nil
	}
	if o.isDir(path) {
		return &backends.Attributes{Path: path, IsDir: true}, nil
	}
	return nil, fmt.Errorf("stat %s: %w", path, backends.ErrNotFound)
}

func (o *memoryOperator) Capabilities() backends.Capabilities {
	return o.caps
}

func (o *memoryOperator) Close() error {
	return nil
}
