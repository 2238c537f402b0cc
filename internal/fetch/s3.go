package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/kamkard/gltfview/internal/classify"
	"github.com/kamkard/gltfview/internal/logging"
	"github.com/kamkard/gltfview/internal/metrics"
)

// S3Config holds S3 connection settings. An empty Endpoint uses AWS.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// S3Source reads s3://bucket/key addresses.
type S3Source struct {
	client *s3.Client
}

// NewS3Source creates an S3 source. Static credentials are used when given,
// otherwise the default AWS credential chain.
func NewS3Source(ctx context.Context, cfg S3Config) (*S3Source, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	logging.Info("s3 source configured",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("region", cfg.Region))
	return &S3Source{client: client}, nil
}

// ParseS3URL splits s3://bucket/key into its parts.
func ParseS3URL(u *url.URL) (bucket, key string, err error) {
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3 address: %s", u)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 address needs bucket and key: %s", u)
	}
	return bucket, key, nil
}

// Open retrieves the object at u. Transport and lookup failures are tagged
// as network errors.
func (s *S3Source) Open(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	bucket, key, err := ParseS3URL(u)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		metrics.RecordS3Operation("get_object", time.Since(start), false)
		return nil, classify.Tag(classify.NetworkUnavailable, fmt.Errorf("get object %s/%s: %w", bucket, key, err))
	}
	metrics.RecordS3Operation("get_object", time.Since(start), true)

	size := int64(0)
	if result.ContentLength != nil {
		size = *result.ContentLength
	}
	logging.Debug("S3 get object",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int64("size", size))
	return result.Body, nil
}
