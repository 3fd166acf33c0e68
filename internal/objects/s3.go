package objects

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"ecorpus-go/internal/errs"
	"ecorpus-go/internal/vfs"
)

// S3Options configures an S3Store.
type S3Options struct {
	Bucket string
	// Prefix is prepended to object hashes to form keys.
	Prefix string
	// Region of the bucket. If empty, the region is taken from the environment.
	Region string
	// Endpoint of an S3 compatible service. If empty, AWS S3 is used.
	Endpoint string
	// Static credentials. If empty, the default credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
	// SpoolDir receives uploads while they are hashed. Defaults to os.TempDir().
	SpoolDir string
}

// s3Client is the subset of *s3.Client used by S3Store.
type s3Client interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type s3Uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Store stores objects in an S3 bucket under <prefix><hash>.
type S3Store struct {
	bucket   string
	prefix   string
	spoolDir string
	client   s3Client
	uploader s3Uploader
	logger   vfs.Logger
}

// NewS3Store creates a store backed by the configured bucket.
func NewS3Store(ctx context.Context, opts S3Options, logger vfs.Logger) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 object store requires a bucket")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}
	// Requests fail without a region even when an endpoint is given.
	if cfg.Region == "" {
		return nil, fmt.Errorf("missing AWS region configuration for bucket %q", opts.Bucket)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			// Bucket-named virtual hosts do not work with explicit endpoints.
			o.UsePathStyle = true
		}
	})
	return newS3Store(client, manager.NewUploader(client), opts, logger), nil
}

func newS3Store(client s3Client, uploader s3Uploader, opts S3Options, logger vfs.Logger) *S3Store {
	if logger == nil {
		logger = vfs.NewNopLogger()
	}
	spoolDir := opts.SpoolDir
	if spoolDir == "" {
		spoolDir = os.TempDir()
	}
	return &S3Store{
		bucket:   opts.Bucket,
		prefix:   opts.Prefix,
		spoolDir: spoolDir,
		client:   client,
		uploader: uploader,
		logger:   logger,
	}
}

func (s *S3Store) key(hash string) string {
	return s.prefix + hash
}

// Put spools r to disk to learn its hash, then uploads it unless the bucket
// already holds that key.
func (s *S3Store) Put(ctx context.Context, r io.Reader) (vfs.Object, error) {
	tmpPath, obj, err := spool(ctx, s.spoolDir, r)
	if err != nil {
		return vfs.Object{}, err
	}
	defer os.Remove(tmpPath)

	exists, err := s.exists(ctx, obj.Hash)
	if err != nil {
		return vfs.Object{}, err
	}
	if exists {
		s.logger.Debug("object already stored", "hash", obj.Hash, "size", obj.Size)
		observePut(obj, true)
		return obj, nil
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return vfs.Object{}, fmt.Errorf("failed to reopen upload: %w", err)
	}
	defer f.Close()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(obj.Hash)),
		Body:          f,
		ContentLength: aws.Int64(obj.Size),
	})
	if err != nil {
		return vfs.Object{}, fmt.Errorf("failed to upload object %s: %w", obj.Hash, err)
	}

	observePut(obj, false)
	return obj, nil
}

func (s *S3Store) exists(ctx context.Context, hash string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(hash)),
	})
	if err == nil {
		return true, nil
	}
	if isS3NotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("checking object %s: %w", hash, err)
}

func (s *S3Store) Open(ctx context.Context, hash string) (io.ReadCloser, error) {
	if err := ValidateHash(hash); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(hash)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, errs.NotFound("object not found: %s", hash)
		}
		return nil, fmt.Errorf("failed to get object %s: %w", hash, err)
	}
	return out.Body, nil
}

func (s *S3Store) Stat(ctx context.Context, hash string) (vfs.Object, error) {
	if err := ValidateHash(hash); err != nil {
		return vfs.Object{}, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(hash)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return vfs.Object{}, errs.NotFound("object not found: %s", hash)
		}
		return vfs.Object{}, fmt.Errorf("failed to stat object %s: %w", hash, err)
	}
	return vfs.Object{Hash: hash, Size: aws.ToInt64(out.ContentLength)}, nil
}

// ValidateSetup verifies that the bucket is reachable with the configured credentials.
func (s *S3Store) ValidateSetup() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("bucket %q not accessible: %w", s.bucket, err)
	}
	if info, err := os.Stat(s.spoolDir); err != nil || !info.IsDir() {
		return fmt.Errorf("spool directory %q not accessible", s.spoolDir)
	}
	return nil
}

// isS3NotFound reports whether err is a missing key: GetObject returns
// NoSuchKey while HeadObject, which has no body, returns NotFound.
func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

// Compile-time check that S3Store implements vfs.ObjectStore interface
var _ vfs.ObjectStore = (*S3Store)(nil)
