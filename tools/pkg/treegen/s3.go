package treegen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/malbeclabs/tipdist/utils/pkg/retry"
)

// ObjectPutter is the subset of the S3 client the uploader needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3UploaderConfig struct {
	Logger *slog.Logger
	Client ObjectPutter
	Bucket string
	Prefix string
	Retry  retry.Config
}

func (cfg *S3UploaderConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("s3 client is required")
	}
	if cfg.Bucket == "" {
		return errors.New("bucket is required")
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

type S3Uploader struct {
	log *slog.Logger
	cfg S3UploaderConfig
}

func NewS3Uploader(cfg S3UploaderConfig) (*S3Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &S3Uploader{log: cfg.Logger, cfg: cfg}, nil
}

// NewS3Client builds a client from the default AWS credential chain. A
// non-empty endpoint selects an S3-compatible store with path-style
// addressing.
func NewS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// ObjectKey is where the collection of an epoch is stored.
func (u *S3Uploader) ObjectKey(epoch uint64) string {
	return path.Join(u.cfg.Prefix, fmt.Sprintf("%d", epoch), "merkle-trees.json")
}

// Upload stores the collection under its epoch key and returns the key.
func (u *S3Uploader) Upload(ctx context.Context, coll *GeneratedMerkleTreeCollection) (string, error) {
	var buf bytes.Buffer
	if err := EncodeJSON(&buf, coll); err != nil {
		return "", err
	}
	key := u.ObjectKey(coll.Epoch)
	body := buf.Bytes()
	err := retry.Do(ctx, u.cfg.Retry, func() error {
		_, err := u.cfg.Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(u.cfg.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	u.log.Info("treegen: uploaded merkle trees", "bucket", u.cfg.Bucket, "key", key, "trees", len(coll.GeneratedMerkleTrees))
	return key, nil
}
