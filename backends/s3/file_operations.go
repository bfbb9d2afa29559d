package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"go.uber.org/zap"

	"github.com/ebogdum/flystream/backends"
)

func (a *S3Adapter) head(ctx context.Context, p string) (*s3.HeadObjectOutput, error) {
	if p == "" {
		return nil, fmt.Errorf("head %s: %w", p, backends.ErrIsDirectory)
	}

	result, err := a.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(a.pathToKey(p)),
	})
	if err != nil {
		return nil, translate(err, "head", p)
	}
	return result, nil
}

// FileExists reports whether an object exists at the key
func (a *S3Adapter) FileExists(ctx context.Context, p string) (bool, error) {
	if p == "" {
		return false, nil
	}
	_, err := a.head(ctx, p)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Read returns the full content of an object
func (a *S3Adapter) Read(ctx context.Context, p string) ([]byte, error) {
	body, err := a.ReadStream(ctx, p)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", p, err)
	}
	return data, nil
}

// ReadStream opens an object for reading; the body is not seekable
func (a *S3Adapter) ReadStream(ctx context.Context, p string) (io.ReadCloser, error) {
	key := a.pathToKey(p)

	result, err := a.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, translate(err, "get object", p)
	}

	a.logger.Debug("File opened from S3",
		zap.String("bucket", a.bucketName),
		zap.String("key", key))

	return result.Body, nil
}

// Write uploads data as a single PutObject
func (a *S3Adapter) Write(ctx context.Context, p string, data []byte, cfg backends.WriteConfig) error {
	key := a.pathToKey(p)

	putInput := &s3.PutObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}

	// Set server-side encryption if configured
	if a.serverSideEncryption != "" {
		putInput.ServerSideEncryption = aws.String(a.serverSideEncryption)
		if a.serverSideEncryption == "aws:kms" && a.kmsKeyID != "" {
			putInput.SSEKMSKeyId = aws.String(a.kmsKeyID)
		}
	}

	if acl := a.aclFor(cfg.Visibility); acl != "" {
		putInput.ACL = aws.String(acl)
	}

	putInput.ContentType = aws.String(backends.ContentType(p))

	if _, err := a.client.PutObjectWithContext(ctx, putInput); err != nil {
		return fmt.Errorf("failed to put object to S3: %w", err)
	}

	a.logger.Debug("File written to S3",
		zap.String("bucket", a.bucketName),
		zap.String("key", key),
		zap.Int("size", len(data)))

	return nil
}

// WriteStream uploads the reader with the multipart uploader, which accepts
// readers of unknown length
func (a *S3Adapter) WriteStream(ctx context.Context, p string, r io.Reader, cfg backends.WriteConfig) error {
	key := a.pathToKey(p)

	input := &s3manager.UploadInput{
		Bucket:      aws.String(a.bucketName),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(backends.ContentType(p)),
	}

	if a.serverSideEncryption != "" {
		input.ServerSideEncryption = aws.String(a.serverSideEncryption)
		if a.serverSideEncryption == "aws:kms" && a.kmsKeyID != "" {
			input.SSEKMSKeyId = aws.String(a.kmsKeyID)
		}
	}

	if acl := a.aclFor(cfg.Visibility); acl != "" {
		input.ACL = aws.String(acl)
	}

	if _, err := a.uploader.UploadWithContext(ctx, input); err != nil {
		return fmt.Errorf("failed to upload object to S3: %w", err)
	}

	a.logger.Debug("File streamed to S3",
		zap.String("bucket", a.bucketName),
		zap.String("key", key))

	return nil
}

// Delete removes an object
func (a *S3Adapter) Delete(ctx context.Context, p string) error {
	key := a.pathToKey(p)

	_, err := a.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return translate(err, "delete object", p)
	}

	a.logger.Debug("File deleted from S3",
		zap.String("bucket", a.bucketName),
		zap.String("key", key))

	return nil
}

// Copy duplicates an object server side
func (a *S3Adapter) Copy(ctx context.Context, src, dst string, cfg backends.WriteConfig) error {
	input := &s3.CopyObjectInput{
		Bucket:     aws.String(a.bucketName),
		Key:        aws.String(a.pathToKey(dst)),
		CopySource: aws.String(url.PathEscape(path.Join(a.bucketName, a.pathToKey(src)))),
	}

	visibility := cfg.Visibility
	if visibility == "" {
		if v, err := a.Visibility(ctx, src); err == nil {
			visibility = v
		}
	}
	if acl := a.aclFor(visibility); acl != "" {
		input.ACL = aws.String(acl)
	}

	if a.serverSideEncryption != "" {
		input.ServerSideEncryption = aws.String(a.serverSideEncryption)
		if a.serverSideEncryption == "aws:kms" && a.kmsKeyID != "" {
			input.SSEKMSKeyId = aws.String(a.kmsKeyID)
		}
	}

	if _, err := a.client.CopyObjectWithContext(ctx, input); err != nil {
		return translate(err, "copy object", src)
	}
	return nil
}

// Move copies the object then deletes the source; S3 has no rename
func (a *S3Adapter) Move(ctx context.Context, src, dst string, cfg backends.WriteConfig) error {
	if err := a.Copy(ctx, src, dst, cfg); err != nil {
		return err
	}
	return a.Delete(ctx, src)
}

// Visibility derives the visibility from the object ACL
func (a *S3Adapter) Visibility(ctx context.Context, p string) (backends.Visibility, error) {
	result, err := a.client.GetObjectAclWithContext(ctx, &s3.GetObjectAclInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(a.pathToKey(p)),
	})
	if err != nil {
		if isS3NotFound(err) {
			if ok, dirErr := a.DirectoryExists(ctx, p); dirErr == nil && ok {
				return a.directoryVisibility, nil
			}
		}
		return "", translate(err, "get object acl", p)
	}

	for _, grant := range result.Grants {
		if grant.Grantee == nil || grant.Grantee.URI == nil || grant.Permission == nil {
			continue
		}
		if *grant.Grantee.URI == allUsersGroup && *grant.Permission == s3.PermissionRead {
			return backends.VisibilityPublic, nil
		}
	}
	return backends.VisibilityPrivate, nil
}

// SetVisibility replaces the object ACL with the canned ACL for visibility
func (a *S3Adapter) SetVisibility(ctx context.Context, p string, visibility backends.Visibility) error {
	_, err := a.client.PutObjectAclWithContext(ctx, &s3.PutObjectAclInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(a.pathToKey(p)),
		ACL:    aws.String(a.aclFor(visibility)),
	})
	if err != nil {
		return translate(err, "put object acl", p)
	}
	return nil
}

// FileSize returns the object content length
func (a *S3Adapter) FileSize(ctx context.Context, p string) (int64, error) {
	result, err := a.head(ctx, p)
	if err != nil {
		return 0, err
	}
	return aws.Int64Value(result.ContentLength), nil
}

// LastModified returns the object modification time
func (a *S3Adapter) LastModified(ctx context.Context, p string) (time.Time, error) {
	result, err := a.head(ctx, p)
	if err != nil {
		return time.Time{}, err
	}
	if result.LastModified == nil {
		return time.Time{}, fmt.Errorf("no modification time for %s: %w", p, backends.ErrNotFound)
	}
	return *result.LastModified, nil
}

// MimeType returns the stored content type
func (a *S3Adapter) MimeType(ctx context.Context, p string) (string, error) {
	result, err := a.head(ctx, p)
	if err != nil {
		if isNotFound(err) {
			if ok, dirErr := a.DirectoryExists(ctx, p); dirErr == nil && ok {
				return backends.DirectoryMimeType, nil
			}
		}
		return "", err
	}
	if result.ContentType == nil {
		return backends.ContentType(p), nil
	}
	return *result.ContentType, nil
}

// Stat returns the metadata HeadObject provides, or a directory record when the
// key is a prefix. Visibility of files needs a separate ACL call and is left out.
func (a *S3Adapter) Stat(ctx context.Context, p string) (*backends.Attributes, error) {
	if p != "" {
		result, err := a.head(ctx, p)
		if err == nil {
			attrs := &backends.Attributes{
				Path:         p,
				Size:         backends.Int64(aws.Int64Value(result.ContentLength)),
				LastModified: result.LastModified,
				MimeType:     aws.StringValue(result.ContentType),
			}
			return attrs, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}

	ok, err := a.DirectoryExists(ctx, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("stat %s: %w", p, backends.ErrNotFound)
	}

	return &backends.Attributes{
		Path:       p,
		IsDir:      true,
		Visibility: backends.VisibilityPtr(a.directoryVisibility),
		MimeType:   backends.DirectoryMimeType,
	}, nil
}
