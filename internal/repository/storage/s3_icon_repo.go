package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	cfg "github.com/dafibh/fortuna/fortuna-budget/internal/config"
)

const (
	iconContentType  = "image/png"
	iconCacheControl = "private, max-age=86400"
)

// IconRepository stores rendered budget icons, one key space per workspace.
// Every method refuses keys of other workspaces with ErrIconNotOwned.
type IconRepository interface {
	Put(ctx context.Context, workspaceID int32, icon []byte) (key string, err error)
	Remove(ctx context.Context, workspaceID int32, key string) error
	SignedURL(ctx context.Context, workspaceID int32, key string, expiry time.Duration) (string, error)
}

var _ IconRepository = (*S3IconRepository)(nil)

// S3IconRepository keeps icons in a private S3 (or S3-compatible) bucket
type S3IconRepository struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
}

// NewS3IconRepository connects to the bucket, creating it when missing
func NewS3IconRepository(ctx context.Context, s3cfg cfg.S3Config) (*S3IconRepository, error) {
	client, err := newS3Client(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	repo := &S3IconRepository{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    s3cfg.Bucket,
	}
	if err := repo.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func newS3Client(ctx context.Context, s3cfg cfg.S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(s3cfg.Region)}
	if s3cfg.AccessKeyID != "" && s3cfg.SecretAccessKey != "" {
		static := credentials.NewStaticCredentialsProvider(s3cfg.AccessKeyID, s3cfg.SecretAccessKey, "")
		opts = append(opts, config.WithCredentialsProvider(static))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s3cfg.Endpoint == "" {
			return
		}
		// MinIO and LocalStack need path-style addressing
		o.BaseEndpoint = aws.String(s3cfg.Endpoint)
		o.UsePathStyle = true
	}), nil
}

func (r *S3IconRepository) ensureBucket(ctx context.Context) error {
	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(r.bucket)})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("check icon bucket %s: %w", r.bucket, err)
	}
	if _, err := r.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(r.bucket)}); err != nil {
		return fmt.Errorf("create icon bucket %s: %w", r.bucket, err)
	}
	return nil
}

// Put stores a rendered PNG icon under a fresh key of the workspace
func (r *S3IconRepository) Put(ctx context.Context, workspaceID int32, icon []byte) (string, error) {
	key := NewIconKey(workspaceID)
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(icon),
		ContentType:   aws.String(iconContentType),
		ContentLength: aws.Int64(int64(len(icon))),
		CacheControl:  aws.String(iconCacheControl),
		Metadata:      map[string]string{"workspace-id": strconv.FormatInt(int64(workspaceID), 10)},
	})
	if err != nil {
		return "", fmt.Errorf("put icon %s: %w", key, err)
	}
	return key, nil
}

// Remove deletes an icon of the workspace. Deleting a missing key succeeds.
func (r *S3IconRepository) Remove(ctx context.Context, workspaceID int32, key string) error {
	if !OwnsIconKey(workspaceID, key) {
		return ErrIconNotOwned
	}
	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete icon %s: %w", key, err)
	}
	return nil
}

// SignedURL returns a temporary GET URL for an icon of the workspace
func (r *S3IconRepository) SignedURL(ctx context.Context, workspaceID int32, key string, expiry time.Duration) (string, error) {
	if !OwnsIconKey(workspaceID, key) {
		return "", ErrIconNotOwned
	}
	req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("sign icon %s: %w", key, err)
	}
	return req.URL, nil
}
