// Package archive uploads completed job artifacts to S3-compatible
// object storage.
//
// Archiving is strictly best-effort from the engine's point of view:
// it never influences orchestration decisions, and uploads are
// idempotent so a tree can be archived again after a crash without
// clobbering or duplicating anything.
package archive

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/3leaps/qcherd/pkg/workspace"
)

// Config configures the S3 client shared by all uploads.
//
// Authentication follows the AWS SDK v2 default chain; explicit
// AccessKeyID/SecretAccessKey take precedence when set. For
// S3-compatible stores (MinIO, Wasabi) set Endpoint and usually
// ForcePathStyle.
type Config struct {
	Region          string
	Endpoint        string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// Dest is a parsed archive destination from a configure directive.
type Dest struct {
	Bucket string
	Prefix string
}

// ErrBadDest is returned for destinations that are not s3:// URIs.
var ErrBadDest = errors.New("archive destination must be an s3://bucket[/prefix] URI")

// ParseDest parses an s3://bucket/prefix destination.
func ParseDest(dest string) (Dest, error) {
	const scheme = "s3://"
	if !strings.HasPrefix(dest, scheme) {
		return Dest{}, ErrBadDest
	}
	rest := strings.TrimPrefix(dest, scheme)
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Dest{}, ErrBadDest
	}
	return Dest{Bucket: bucket, Prefix: strings.Trim(prefix, "/")}, nil
}

// ArchiveError wraps an upload failure with its location.
type ArchiveError struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *ArchiveError) Error() string {
	msg := "archive " + e.Op + " s3://" + e.Bucket
	if e.Key != "" {
		msg += "/" + e.Key
	}
	return msg + ": " + e.Err.Error()
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// s3API is the slice of the S3 client the uploader uses; tests inject
// a fake.
type s3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader archives job artifacts. Safe for concurrent use.
type Uploader struct {
	api s3API
}

// New creates an uploader from the AWS SDK default credential chain
// plus any explicit overrides in cfg.
func New(ctx context.Context, cfg Config) (*Uploader, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Uploader{api: client}, nil
}

func newWithAPI(api s3API) *Uploader { return &Uploader{api: api} }

// Archive uploads the job's artifacts under dest.
//
// Keys are <prefix>/<job>/<filename>; existing keys are left untouched
// so repeated cycles over an already archived job are no-ops. The
// first hard failure aborts the remaining files.
func (u *Uploader) Archive(ctx context.Context, job workspace.Job, dest string) error {
	d, err := ParseDest(dest)
	if err != nil {
		return err
	}

	for _, local := range artifactPaths(job) {
		if _, err := os.Stat(local); err != nil {
			continue
		}
		key := path.Join(d.Prefix, job.Name, filepath.Base(local))

		exists, err := u.exists(ctx, d.Bucket, key)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := u.put(ctx, d.Bucket, key, local); err != nil {
			return err
		}
	}
	return nil
}

// artifactPaths lists the files worth keeping from a completed job.
// Missing entries are skipped by the caller.
func artifactPaths(job workspace.Job) []string {
	return []string{
		job.InputPath(),
		job.StructurePath(),
		job.OutputPath(),
		filepath.Join(job.Dir, "scr", "optim.xyz"),
	}
}

func (u *Uploader) exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := u.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, &ArchiveError{Op: "head", Bucket: bucket, Key: key, Err: err}
}

func (u *Uploader) put(ctx context.Context, bucket, key, local string) error {
	f, err := os.Open(local)
	if err != nil {
		return &ArchiveError{Op: "put", Bucket: bucket, Key: key, Err: err}
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return &ArchiveError{Op: "put", Bucket: bucket, Key: key, Err: err}
	}
	size := st.Size()

	_, err = u.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: &size,
	})
	if err != nil {
		return &ArchiveError{Op: "put", Bucket: bucket, Key: key, Err: err}
	}
	return nil
}

// isNotFound matches the S3 error shapes for a missing object.
func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
