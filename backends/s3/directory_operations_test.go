package s3

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"

	"github.com/ebogdum/flystream/config"
)

func TestDeleteErrors(t *testing.T) {
	tests := []struct {
		name    string
		out     *s3.DeleteObjectsOutput
		wantErr string
	}{
		{name: "nil output"},
		{name: "no errors", out: &s3.DeleteObjectsOutput{}},
		{
			name: "one failed key",
			out: &s3.DeleteObjectsOutput{Errors: []*s3.Error{
				{Key: aws.String("dir/a.txt"), Code: aws.String("AccessDenied"), Message: aws.String("Access Denied")},
			}},
			wantErr: "1 keys not deleted, first dir/a.txt: Access Denied (AccessDenied)",
		},
		{
			name: "several failed keys",
			out: &s3.DeleteObjectsOutput{Errors: []*s3.Error{
				{Key: aws.String("dir/a.txt"), Code: aws.String("InternalError")},
				{Key: aws.String("dir/b.txt"), Code: aws.String("InternalError")},
			}},
			wantErr: "2 keys not deleted, first dir/a.txt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := deleteErrors(tt.out)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

// fakeBucket answers just enough of the S3 REST protocol for DeleteDirectory
func fakeBucket(t *testing.T, keys []string, failKey string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && q.Get("list-type") == "2":
			var b strings.Builder
			b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
			fmt.Fprintf(&b, "<Name>bucket</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount><IsTruncated>false</IsTruncated>", q.Get("prefix"), len(keys))
			for _, k := range keys {
				fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>1</Size></Contents>", k)
			}
			b.WriteString(`</ListBucketResult>`)
			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write([]byte(b.String()))
		case r.Method == http.MethodPost && q.Has("delete"):
			var b strings.Builder
			b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><DeleteResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
			if failKey != "" {
				fmt.Fprintf(&b, "<Error><Key>%s</Key><Code>AccessDenied</Code><Message>Access Denied</Message></Error>", failKey)
			}
			b.WriteString(`</DeleteResult>`)
			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write([]byte(b.String()))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
			w.WriteHeader(http.StatusNotImplemented)
		}
	}))
}

func TestDeleteDirectoryReportsFailedKeys(t *testing.T) {
	tests := []struct {
		name    string
		failKey string
		wantErr bool
	}{
		{name: "all keys deleted"},
		{name: "one key refused", failKey: "dir/b.txt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeBucket(t, []string{"dir/", "dir/a.txt", "dir/b.txt"}, tt.failKey)
			defer srv.Close()

			a, err := NewS3Adapter(config.SchemeConfig{
				S3BucketName: "bucket",
				S3Region:     "us-east-1",
				S3AccessKey:  "key",
				S3SecretKey:  "secret",
				S3Endpoint:   srv.URL,
				S3DisableSSL: true,
			}, zap.NewNop())
			if err != nil {
				t.Fatalf("failed to create adapter: %v", err)
			}

			err = a.DeleteDirectory(context.Background(), "dir")
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), tt.failKey) {
					t.Errorf("expected error naming %s, got %v", tt.failKey, err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
