package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	appconfig "plantcare/internal/config"
	"plantcare/internal/domain"
)

// S3API is the subset of the S3 client used for staging.
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type s3Repository struct {
	client S3API
	cfg    *appconfig.S3Config
	log    *zap.Logger
}

func NewS3Repository(ctx context.Context, cfg *appconfig.S3Config, log *zap.Logger) (StagingRepository, error) {
	endpoint := endpointURL(cfg.Endpoint, cfg.UseSSL)

	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if endpoint != "" {
			return aws.Endpoint{
				URL:               endpoint,
				HostnameImmutable: true,
				Source:            aws.EndpointSourceCustom,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithEndpointResolverWithOptions(customResolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	repo := newS3Repository(client, cfg, log)

	if err := repo.ensureBucketExists(ctx); err != nil {
		log.Warn("Failed to ensure bucket exists", zap.Error(err))
	}

	return repo, nil
}

func newS3Repository(client S3API, cfg *appconfig.S3Config, log *zap.Logger) *s3Repository {
	return &s3Repository{client: client, cfg: cfg, log: log}
}

// endpointURL adds a scheme to bare host:port endpoints.
func endpointURL(endpoint string, useSSL bool) string {
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

func (r *s3Repository) objectKey(key string) string {
	return r.cfg.Prefix + key
}

func (r *s3Repository) ensureBucketExists(ctx context.Context) error {
	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(r.cfg.BucketName),
	})
	if err == nil {
		r.log.Info("Bucket already exists", zap.String("bucket", r.cfg.BucketName))
		return nil
	}

	r.log.Info("Creating bucket", zap.String("bucket", r.cfg.BucketName))

	input := &s3.CreateBucketInput{Bucket: aws.String(r.cfg.BucketName)}
	// us-east-1 rejects an explicit location constraint.
	if r.cfg.Region != "" && r.cfg.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(r.cfg.Region),
		}
	}

	if _, err := r.client.CreateBucket(ctx, input); err != nil {
		return err
	}

	r.log.Info("Bucket created successfully", zap.String("bucket", r.cfg.BucketName))
	return nil
}

func (r *s3Repository) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	objKey := r.objectKey(key)
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.cfg.BucketName),
		Key:           aws.String(objKey),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		r.log.Error("Failed to upload file to S3",
			zap.String("key", objKey),
			zap.Error(err))
		return "", fmt.Errorf("put %s: %w", objKey, err)
	}

	r.log.Info("Image staged in S3",
		zap.String("key", objKey),
		zap.Int("size", len(body)))

	return "s3://" + r.cfg.BucketName + "/" + objKey, nil
}

func (r *s3Repository) Get(ctx context.Context, key string) ([]byte, error) {
	objKey := r.objectKey(key)
	output, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.cfg.BucketName),
		Key:    aws.String(objKey),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("get %s: %w", objKey, domain.ErrNotFound)
		}
		r.log.Error("Failed to download file from S3",
			zap.String("key", objKey),
			zap.Error(err))
		return nil, fmt.Errorf("get %s: %w", objKey, err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", objKey, err)
	}
	return data, nil
}

func (r *s3Repository) List(ctx context.Context) ([]string, error) {
	var keys []string
	var token *string
	for {
		output, err := r.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(r.cfg.BucketName),
			Prefix:            aws.String(r.cfg.Prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", r.cfg.Prefix, err)
		}

		for _, obj := range output.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), r.cfg.Prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			keys = append(keys, name)
		}

		if !aws.ToBool(output.IsTruncated) {
			return keys, nil
		}
		token = output.NextContinuationToken
	}
}

// Delete checks existence first since S3 deletes of missing keys succeed.
func (r *s3Repository) Delete(ctx context.Context, key string) error {
	objKey := r.objectKey(key)
	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.cfg.BucketName),
		Key:    aws.String(objKey),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return fmt.Errorf("delete %s: %w", objKey, domain.ErrNotFound)
		}
		return fmt.Errorf("head %s: %w", objKey, err)
	}

	if _, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.cfg.BucketName),
		Key:    aws.String(objKey),
	}); err != nil {
		r.log.Error("Failed to delete file in S3",
			zap.String("key", objKey),
			zap.Error(err))
		return fmt.Errorf("delete %s: %w", objKey, err)
	}

	r.log.Info("Staged image removed from S3", zap.String("key", objKey))
	return nil
}
