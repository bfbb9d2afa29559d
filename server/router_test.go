package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ebogdum/flystream/auth"
	"github.com/ebogdum/flystream/backends"
	"github.com/ebogdum/flystream/backends/localfs"
	"github.com/ebogdum/flystream/config"
	"github.com/ebogdum/flystream/core"
	"github.com/ebogdum/flystream/locks"
	"github.com/ebogdum/flystream/server/handlers"
)

const (
	rootKey   = "root-key"
	readerKey = "reader-key"
)

func newTestServer(t *testing.T, cfg config.ServerConfig) (*httptest.Server, string) {
	t.Helper()
	srv, root, _ := newTestServerWithBridge(t, cfg)
	return srv, root
}

func newTestServerWithBridge(t *testing.T, cfg config.ServerConfig) (*httptest.Server, string, *core.Wrapper) {
	t.Helper()

	root := t.TempDir()
	adapter, err := localfs.NewLocalFSAdapter(root, backends.DefaultPortableVisibility())
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}

	opts := core.DefaultSchemeOptions()
	opts.LockStore = "memory://"

	reg := core.NewRegistry()
	if err := reg.Register("local", adapter, opts); err != nil {
		t.Fatalf("failed to register scheme: %v", err)
	}

	factory := locks.NewFactory(zap.NewNop())
	bridge := core.NewWrapper(reg, factory, zap.NewNop())

	router := NewRouter(
		bridge,
		auth.NewAPIKeyAuthenticator([]string{rootKey}, []string{readerKey}),
		auth.NewPermissionAuthorizer(bridge),
		&cfg,
		true,
		zap.NewNop(),
	)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		_ = factory.Close()
		_ = reg.Close()
	})
	return srv, root, bridge
}

func do(t *testing.T, srv *httptest.Server, method, path, key, body string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: expected status %d, got %d: %s",
			resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, body)
	}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})

	resp := do(t, srv, http.MethodGet, "/health", "", "")
	expectStatus(t, resp, http.StatusOK)
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on every response")
	}

	resp = do(t, srv, http.MethodGet, "/metrics", "", "")
	expectStatus(t, resp, http.StatusOK)
}

func TestAuthentication(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})

	tests := []struct {
		name string
		key  string
		want int
	}{
		{"missing key", "", http.StatusUnauthorized},
		{"wrong key", "nope", http.StatusUnauthorized},
		{"root key", rootKey, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, http.MethodGet, "/v1/dirs/local/", tt.key, "")
			expectStatus(t, resp, tt.want)
		})
	}
}

func TestFileLifecycle(t *testing.T) {
	srv, root := newTestServer(t, config.ServerConfig{})

	resp := do(t, srv, http.MethodPut, "/v1/files/local/docs/readme.txt", rootKey, "hello")
	expectStatus(t, resp, http.StatusCreated)
	stat := decode[handlers.StatResponse](t, resp)
	if stat.Type != "file" || stat.Size != 5 || stat.Mode != "0644" {
		t.Errorf("unexpected stat after put: %+v", stat)
	}

	data, err := os.ReadFile(filepath.Join(root, "docs", "readme.txt"))
	if err != nil || string(data) != "hello" {
		t.Fatalf("expected file on disk, got %q err=%v", data, err)
	}

	resp = do(t, srv, http.MethodPut, "/v1/files/local/docs/readme.txt?append=true", rootKey, " world")
	expectStatus(t, resp, http.StatusCreated)

	resp = do(t, srv, http.MethodGet, "/v1/files/local/docs/readme.txt", rootKey, "")
	expectStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "hello world" {
		t.Errorf("expected appended content, got %q", body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("expected text/plain content type, got %q", ct)
	}
	if resp.Header.Get("X-Flystream-Mode") != "0644" {
		t.Errorf("expected mode header 0644, got %q", resp.Header.Get("X-Flystream-Mode"))
	}

	resp = do(t, srv, http.MethodPut, "/v1/files/local/docs/readme.txt", rootKey, "replaced")
	expectStatus(t, resp, http.StatusCreated)
	data, _ = os.ReadFile(filepath.Join(root, "docs", "readme.txt"))
	if string(data) != "replaced" {
		t.Errorf("expected replaced content, got %q", data)
	}

	resp = do(t, srv, http.MethodPatch, "/v1/files/local/docs/readme.txt", rootKey, `{"mode":"0600"}`)
	expectStatus(t, resp, http.StatusOK)
	if stat := decode[handlers.StatResponse](t, resp); stat.Mode != "0600" {
		t.Errorf("expected mode 0600 after chmod, got %s", stat.Mode)
	}

	resp = do(t, srv, http.MethodDelete, "/v1/files/local/docs/readme.txt", rootKey, "")
	expectStatus(t, resp, http.StatusNoContent)

	resp = do(t, srv, http.MethodGet, "/v1/files/local/docs/readme.txt", rootKey, "")
	expectStatus(t, resp, http.StatusNotFound)
}

func TestPutWithModeAndTouch(t *testing.T) {
	srv, root := newTestServer(t, config.ServerConfig{})

	resp := do(t, srv, http.MethodPut, "/v1/files/local/secret.txt?mode=0600", rootKey, "s")
	expectStatus(t, resp, http.StatusCreated)
	if stat := decode[handlers.StatResponse](t, resp); stat.Mode != "0600" {
		t.Errorf("expected mode 0600, got %s", stat.Mode)
	}

	resp = do(t, srv, http.MethodPut, "/v1/files/local/bad.txt?mode=999", rootKey, "s")
	expectStatus(t, resp, http.StatusBadRequest)

	resp = do(t, srv, http.MethodPatch, "/v1/files/local/empty.txt", rootKey, `{"touch":true}`)
	expectStatus(t, resp, http.StatusOK)
	if info, err := os.Stat(filepath.Join(root, "empty.txt")); err != nil || info.Size() != 0 {
		t.Errorf("expected touch to create an empty file, err=%v", err)
	}

	resp = do(t, srv, http.MethodPatch, "/v1/files/local/empty.txt", rootKey, `{}`)
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestUploadLimit(t *testing.T) {
	srv, root := newTestServer(t, config.ServerConfig{MaxUploadBytes: 4})

	resp := do(t, srv, http.MethodPut, "/v1/files/local/big.bin", rootKey, "0123456789")
	expectStatus(t, resp, http.StatusRequestEntityTooLarge)

	if _, err := os.Stat(filepath.Join(root, "big.bin")); !os.IsNotExist(err) {
		t.Errorf("rejected upload must not create the file, err=%v", err)
	}
}

func TestPutRejectedWhileLocked(t *testing.T) {
	ctx := context.Background()
	srv, root, bridge := newTestServerWithBridge(t, config.ServerConfig{})

	held := filepath.Join(root, "held.txt")
	if err := os.WriteFile(held, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		mode string
	}{
		{"existing file", "held.txt", "r+"},
		{"new file", "fresh.txt", "w"},
		{"existing file append", "held.txt?append=true", "r+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name := strings.SplitN(tt.path, "?", 2)[0]
			holder, err := bridge.Open(ctx, "local://"+name, tt.mode, 0)
			if err != nil {
				t.Fatal(err)
			}
			defer holder.Abort()
			if ok, err := holder.Lock(core.LockExclusive); err != nil || !ok {
				t.Fatalf("failed to take the lock: ok=%v err=%v", ok, err)
			}

			resp := do(t, srv, http.MethodPut, "/v1/files/local/"+tt.path, rootKey, "replacement")
			expectStatus(t, resp, http.StatusLocked)

			data, err := os.ReadFile(held)
			if err != nil || string(data) != "original" {
				t.Errorf("rejected upload changed held.txt: %q err=%v", data, err)
			}
			if _, err := os.Stat(filepath.Join(root, "fresh.txt")); !os.IsNotExist(err) {
				t.Errorf("rejected upload created fresh.txt, err=%v", err)
			}
		})
	}

	resp := do(t, srv, http.MethodPut, "/v1/files/local/held.txt?append=true", rootKey, "+more")
	expectStatus(t, resp, http.StatusCreated)
	if data, _ := os.ReadFile(held); string(data) != "original+more" {
		t.Errorf("expected append once the lock is free, got %q", data)
	}
}

func TestDirectories(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})

	resp := do(t, srv, http.MethodPost, "/v1/dirs/local/a/b", rootKey, "")
	expectStatus(t, resp, http.StatusNotFound)

	resp = do(t, srv, http.MethodPost, "/v1/dirs/local/a/b?recursive=true", rootKey, "")
	expectStatus(t, resp, http.StatusCreated)
	if stat := decode[handlers.StatResponse](t, resp); stat.Type != "directory" {
		t.Errorf("expected directory, got %+v", stat)
	}

	resp = do(t, srv, http.MethodPost, "/v1/dirs/local/a", rootKey, "")
	expectStatus(t, resp, http.StatusConflict)

	do(t, srv, http.MethodPut, "/v1/files/local/a/file.txt", rootKey, "x")

	resp = do(t, srv, http.MethodGet, "/v1/dirs/local/a", rootKey, "")
	expectStatus(t, resp, http.StatusOK)
	listing := decode[handlers.DirectoryListing](t, resp)
	if len(listing.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", listing.Entries)
	}
	if listing.Entries[0].Name != "b" || listing.Entries[0].Type != "directory" {
		t.Errorf("unexpected first entry %+v", listing.Entries[0])
	}
	if listing.Entries[1].URI != "local://a/file.txt" || listing.Entries[1].Size != 1 {
		t.Errorf("unexpected second entry %+v", listing.Entries[1])
	}

	resp = do(t, srv, http.MethodGet, "/v1/files/local/a", rootKey, "")
	expectStatus(t, resp, http.StatusConflict)

	resp = do(t, srv, http.MethodDelete, "/v1/dirs/local/a", rootKey, "")
	expectStatus(t, resp, http.StatusConflict)

	resp = do(t, srv, http.MethodDelete, "/v1/dirs/local/a?recursive=true", rootKey, "")
	expectStatus(t, resp, http.StatusNoContent)

	resp = do(t, srv, http.MethodDelete, "/v1/dirs/local/", rootKey, "")
	expectStatus(t, resp, http.StatusForbidden)

	resp = do(t, srv, http.MethodGet, "/v1/dirs/local/missing", rootKey, "")
	expectStatus(t, resp, http.StatusNotFound)
}

func TestRename(t *testing.T) {
	srv, root := newTestServer(t, config.ServerConfig{})

	do(t, srv, http.MethodPut, "/v1/files/local/from.txt", rootKey, "move me")

	resp := do(t, srv, http.MethodPost, "/v1/rename", rootKey, `{"from":"local://from.txt","to":"local://sub/to.txt"}`)
	expectStatus(t, resp, http.StatusOK)
	if stat := decode[handlers.StatResponse](t, resp); stat.URI != "local://sub/to.txt" {
		t.Errorf("unexpected rename result %+v", stat)
	}

	if data, err := os.ReadFile(filepath.Join(root, "sub", "to.txt")); err != nil || string(data) != "move me" {
		t.Errorf("expected moved content, got %q err=%v", data, err)
	}

	resp = do(t, srv, http.MethodPost, "/v1/rename", rootKey, `{"from":"local://from.txt","to":"local://x.txt"}`)
	expectStatus(t, resp, http.StatusNotFound)

	resp = do(t, srv, http.MethodPost, "/v1/rename", rootKey, `{"from":"nope","to":"local://x.txt"}`)
	expectStatus(t, resp, http.StatusBadRequest)

	resp = do(t, srv, http.MethodPost, "/v1/rename", rootKey, `{"from":"ftp://a","to":"local://x.txt"}`)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestReaderPermissions(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})

	do(t, srv, http.MethodPut, "/v1/files/local/public.txt", rootKey, "p")
	do(t, srv, http.MethodPut, "/v1/files/local/private.txt?mode=0600", rootKey, "p")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"read public", http.MethodGet, "/v1/files/local/public.txt", "", http.StatusOK},
		{"stat public", http.MethodGet, "/v1/stat/local/public.txt", "", http.StatusOK},
		{"read private", http.MethodGet, "/v1/files/local/private.txt", "", http.StatusForbidden},
		{"read missing", http.MethodGet, "/v1/files/local/missing.txt", "", http.StatusForbidden},
		{"write", http.MethodPut, "/v1/files/local/public.txt", "x", http.StatusForbidden},
		{"delete", http.MethodDelete, "/v1/files/local/public.txt", "", http.StatusForbidden},
		{"mkdir", http.MethodPost, "/v1/dirs/local/new", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, tt.method, tt.path, readerKey, tt.body)
			expectStatus(t, resp, tt.want)
		})
	}
}

func TestInvalidPaths(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{})

	tests := []struct {
		name string
		path string
		want int
	}{
		{"traversal", "/v1/stat/local/a/../../etc/passwd", http.StatusBadRequest},
		{"unknown scheme", "/v1/stat/ftp/file.txt", http.StatusNotFound},
		{"missing file", "/v1/stat/local/nothing.txt", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, http.MethodGet, tt.path, rootKey, "")
			expectStatus(t, resp, tt.want)

			var errResp handlers.ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Code == "" {
				t.Errorf("expected JSON error body, got %+v err=%v", errResp, err)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{RateLimit: 0.001, RateBurst: 1})

	resp := do(t, srv, http.MethodGet, "/v1/dirs/local/", rootKey, "")
	expectStatus(t, resp, http.StatusOK)

	resp = do(t, srv, http.MethodGet, "/v1/dirs/local/", rootKey, "")
	expectStatus(t, resp, http.StatusTooManyRequests)
	if resp.Header.Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}
