package s3

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"go.uber.org/zap"

	"github.com/ebogdum/flystream/backends"
	"github.com/ebogdum/flystream/config"
)

const allUsersGroup = "http://acs.amazonaws.com/groups/global/AllUsers"

// S3Adapter implements the backends.Operator interface for AWS S3 and compatible stores
type S3Adapter struct {
	client               *s3.S3
	uploader             *s3manager.Uploader
	bucketName           string
	prefix               string
	serverSideEncryption string
	acl                  string
	kmsKeyID             string
	directoryVisibility  backends.Visibility
	logger               *zap.Logger
}

// NewS3Adapter creates a new S3 operator for one scheme
func NewS3Adapter(cfg config.SchemeConfig, logger *zap.Logger) (*S3Adapter, error) {
	if cfg.S3BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}

	// Create AWS session
	awsConfig := &aws.Config{
		Region:     aws.String(cfg.S3Region),
		DisableSSL: aws.Bool(cfg.S3DisableSSL),
	}
	if cfg.S3AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			cfg.S3AccessKey,
			cfg.S3SecretKey,
			"",
		)
	}

	// Set custom endpoint if provided (for MinIO compatibility)
	if cfg.S3Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.S3Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)              // Required for MinIO
		awsConfig.S3DisableContentMD5Validation = aws.Bool(true) // Disable MD5 for MinIO
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	client := s3.New(sess)

	// Verify bucket access
	_, err = client.HeadBucket(&s3.HeadBucketInput{
		Bucket: aws.String(cfg.S3BucketName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access S3 bucket %s: %w", cfg.S3BucketName, err)
	}

	directoryVisibility := backends.VisibilityPrivate
	if v, ok := backends.ParseVisibility(cfg.VisibilityDefaultForDirectories); ok {
		directoryVisibility = v
	}

	return &S3Adapter{
		client:               client,
		uploader:             s3manager.NewUploaderWithClient(client),
		bucketName:           cfg.S3BucketName,
		prefix:               strings.Trim(cfg.S3Prefix, "/"),
		serverSideEncryption: cfg.S3ServerSideEncryption,
		acl:                  cfg.S3ACL,
		kmsKeyID:             cfg.S3KMSKeyID,
		directoryVisibility:  directoryVisibility,
		logger:               logger,
	}, nil
}

// Capabilities reports that S3 supports every metadata kind
func (a *S3Adapter) Capabilities() backends.Capabilities {
	return backends.AllCapabilities
}

// Close closes any resources used by the S3 adapter
func (a *S3Adapter) Close() error {
	// No resources to close for S3
	return nil
}

// pathToKey converts an operator path to an S3 key
func (a *S3Adapter) pathToKey(path string) string {
	path = strings.Trim(path, "/")
	if a.prefix == "" {
		return path
	}
	if path == "" {
		return a.prefix
	}
	return a.prefix + "/" + path
}

// dirPrefix converts an operator path to the key prefix of its children
func (a *S3Adapter) dirPrefix(path string) string {
	key := a.pathToKey(path)
	if key == "" {
		return ""
	}
	return key + "/"
}

// keyToPath converts an S3 key back to an operator path
func (a *S3Adapter) keyToPath(key string) string {
	key = strings.TrimSuffix(key, "/")
	if a.prefix != "" {
		key = strings.TrimPrefix(strings.TrimPrefix(key, a.prefix), "/")
	}
	return key
}

// aclFor returns the canned ACL matching visibility, falling back to the configured ACL
func (a *S3Adapter) aclFor(visibility backends.Visibility) string {
	switch visibility {
	case backends.VisibilityPublic:
		return s3.ObjectCannedACLPublicRead
	case backends.VisibilityPrivate:
		return s3.ObjectCannedACLPrivate
	}
	return a.acl
}

// isS3NotFound checks if an error indicates the object was not found
func isS3NotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}

	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return true
		}
	}
	return false
}

// translate maps S3 errors onto the operator error set
func translate(err error, action, path string) error {
	if isS3NotFound(err) {
		return fmt.Errorf("%s %s: %w", action, path, backends.ErrNotFound)
	}
	return fmt.Errorf("failed to %s %s in S3: %w", action, path, err)
}
