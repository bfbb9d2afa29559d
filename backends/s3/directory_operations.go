package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"

	"github.com/ebogdum/flystream/backends"
)

// deleteBatchSize is the DeleteObjects limit
const deleteBatchSize = 1000

func isNotFound(err error) bool {
	return errors.Is(err, backends.ErrNotFound)
}

// deleteErrors turns the per-key failures of a quiet DeleteObjects call into an error
func deleteErrors(out *s3.DeleteObjectsOutput) error {
	if out == nil || len(out.Errors) == 0 {
		return nil
	}
	first := out.Errors[0]
	return fmt.Errorf("%d keys not deleted, first %s: %s (%s)",
		len(out.Errors), aws.StringValue(first.Key), aws.StringValue(first.Message), aws.StringValue(first.Code))
}

// DirectoryExists reports whether any key lives under the directory prefix
func (a *S3Adapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	if path == "" {
		return true, nil
	}

	result, err := a.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucketName),
		Prefix:  aws.String(a.dirPrefix(path)),
		MaxKeys: aws.Int64(1),
	})
	if err != nil {
		return false, fmt.Errorf("failed to list objects in S3: %w", err)
	}
	return aws.Int64Value(result.KeyCount) > 0 || len(result.Contents) > 0, nil
}

// CreateDirectory creates a directory (S3 doesn't have true directories, so we create a marker)
func (a *S3Adapter) CreateDirectory(ctx context.Context, path string, cfg backends.WriteConfig) error {
	key := a.dirPrefix(path)
	if key == "" {
		return nil
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader([]byte{}), // Empty object as directory marker
	}

	visibility := cfg.DirectoryVisibility
	if visibility == "" {
		visibility = a.directoryVisibility
	}
	if acl := a.aclFor(visibility); acl != "" {
		input.ACL = aws.String(acl)
	}

	if _, err := a.client.PutObjectWithContext(ctx, input); err != nil {
		return fmt.Errorf("failed to create directory marker in S3: %w", err)
	}

	a.logger.Debug("Directory created in S3",
		zap.String("bucket", a.bucketName),
		zap.String("key", key))

	return nil
}

// DeleteDirectory removes every key under the directory prefix, marker included
func (a *S3Adapter) DeleteDirectory(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("refusing to delete bucket root: %w", backends.ErrForbidden)
	}

	prefix := a.dirPrefix(path)
	var batch []*s3.ObjectIdentifier

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		out, err := a.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(a.bucketName),
			Delete: &s3.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		batch = batch[:0]
		if err != nil {
			return err
		}
		return deleteErrors(out)
	}

	var flushErr error
	err := a.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucketName),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, object := range page.Contents {
			batch = append(batch, &s3.ObjectIdentifier{Key: object.Key})
			if len(batch) == deleteBatchSize {
				if flushErr = flush(); flushErr != nil {
					return false
				}
			}
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to list objects in S3: %w", err)
	}
	if flushErr != nil {
		return fmt.Errorf("failed to delete objects in S3: %w", flushErr)
	}
	if err := flush(); err != nil {
		return fmt.Errorf("failed to delete objects in S3: %w", err)
	}

	a.logger.Debug("Directory deleted from S3",
		zap.String("bucket", a.bucketName),
		zap.String("prefix", prefix))

	return nil
}

// ListContents lists a directory page by page as the caller advances
func (a *S3Adapter) ListContents(ctx context.Context, path string, deep bool) (backends.Lister, error) {
	prefix := a.dirPrefix(path)
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucketName),
		Prefix: aws.String(prefix),
	}
	if !deep {
		input.Delimiter = aws.String("/")
	}

	return &objectLister{adapter: a, input: input, prefix: prefix}, nil
}

// objectLister walks ListObjectsV2 pages lazily
type objectLister struct {
	adapter *S3Adapter
	input   *s3.ListObjectsV2Input
	prefix  string
	pending []*backends.Attributes
	done    bool
}

func (l *objectLister) Next(ctx context.Context) (*backends.Attributes, error) {
	for len(l.pending) == 0 {
		if l.done {
			return nil, io.EOF
		}
		if err := l.fetch(ctx); err != nil {
			return nil, err
		}
	}

	next := l.pending[0]
	l.pending = l.pending[1:]
	return next, nil
}

func (l *objectLister) fetch(ctx context.Context) error {
	a := l.adapter

	result, err := a.client.ListObjectsV2WithContext(ctx, l.input)
	if err != nil {
		return fmt.Errorf("failed to list objects in S3: %w", err)
	}

	// Process directory objects (common prefixes)
	for _, commonPrefix := range result.CommonPrefixes {
		if commonPrefix.Prefix == nil || *commonPrefix.Prefix == l.prefix {
			continue
		}
		l.pending = append(l.pending, &backends.Attributes{
			Path:       a.keyToPath(*commonPrefix.Prefix),
			IsDir:      true,
			Visibility: backends.VisibilityPtr(a.directoryVisibility),
			MimeType:   backends.DirectoryMimeType,
		})
	}

	// Process file objects
	for _, object := range result.Contents {
		if object.Key == nil || *object.Key == l.prefix {
			continue
		}

		// Directory markers show up as keys in deep listings
		if strings.HasSuffix(*object.Key, "/") {
			l.pending = append(l.pending, &backends.Attributes{
				Path:       a.keyToPath(*object.Key),
				IsDir:      true,
				Visibility: backends.VisibilityPtr(a.directoryVisibility),
				MimeType:   backends.DirectoryMimeType,
			})
			continue
		}

		l.pending = append(l.pending, &backends.Attributes{
			Path:         a.keyToPath(*object.Key),
			Size:         backends.Int64(aws.Int64Value(object.Size)),
			LastModified: object.LastModified,
			MimeType:     backends.ContentType(*object.Key),
		})
	}

	// Check if there are more results
	if !aws.BoolValue(result.IsTruncated) || result.NextContinuationToken == nil {
		l.done = true
	} else {
		l.input.ContinuationToken = result.NextContinuationToken
	}
	return nil
}

func (l *objectLister) Close() error {
	l.done = true
	l.pending = nil
	return nil
}
