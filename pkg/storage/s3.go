// Package storage implements the avatar content store on S3-compatible
// object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/tendant/simple-idm-profile/pkg/platform"
)

var _ platform.ContentStore = (*S3Store)(nil)

// MaxPresignExpiry is the longest lifetime SigV4 allows for a presigned URL.
const MaxPresignExpiry = 7 * 24 * time.Hour

// ErrDisabled is returned by Disabled for every call.
var ErrDisabled = errors.New("content store is not configured")

// Config holds S3 settings.
type Config struct {
	Bucket       string
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	// PublicBaseURL, when set, is used to build plain object URLs instead
	// of presigned ones.
	PublicBaseURL string
	PresignExpiry time.Duration
}

// Enabled reports whether a bucket is configured.
func (c Config) Enabled() bool {
	return c.Bucket != ""
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type getPresigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

var loadDefaultAWSConfig = config.LoadDefaultConfig

// S3Store stores files in a single bucket.
type S3Store struct {
	cfg     Config
	objects objectPutter
	presign getPresigner
}

// NewS3Store builds S3 clients from cfg.
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newS3Store(cfg, client, s3.NewPresignClient(client)), nil
}

func newS3Store(cfg Config, objects objectPutter, presign getPresigner) *S3Store {
	if cfg.PresignExpiry <= 0 || cfg.PresignExpiry > MaxPresignExpiry {
		cfg.PresignExpiry = MaxPresignExpiry
	}
	return &S3Store{cfg: cfg, objects: objects, presign: presign}
}

// UploadFile writes data at key, replacing any existing object.
func (s *S3Store) UploadFile(ctx context.Context, key string, data []byte, contentType string) (platform.StorageRef, error) {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	if _, err := s.objects.PutObject(ctx, in); err != nil {
		return platform.StorageRef{}, fmt.Errorf("put object %s: %w", key, err)
	}
	return platform.StorageRef{Bucket: s.cfg.Bucket, Key: key}, nil
}

// ResolveDownloadURL returns a URL the browser can fetch the object from.
func (s *S3Store) ResolveDownloadURL(ctx context.Context, ref platform.StorageRef) (string, error) {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimSuffix(s.cfg.PublicBaseURL, "/") + "/" + ref.Key, nil
	}

	bucket := ref.Bucket
	if bucket == "" {
		bucket = s.cfg.Bucket
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(ref.Key),
	}, s3.WithPresignExpires(s.cfg.PresignExpiry))
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", ref.Key, err)
	}
	return req.URL, nil
}

// Disabled is a content store that rejects every call. It lets the service
// run without object storage; avatar uploads then surface as warnings.
type Disabled struct{}

func (Disabled) UploadFile(ctx context.Context, key string, data []byte, contentType string) (platform.StorageRef, error) {
	return platform.StorageRef{}, ErrDisabled
}

func (Disabled) ResolveDownloadURL(ctx context.Context, ref platform.StorageRef) (string, error) {
	return "", ErrDisabled
}
