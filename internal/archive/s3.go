package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"lightingmap.app/internal/obs"
)

// ObjectPutter is the subset of the S3 client used by S3.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds a client from the default credential chain. A non-empty
// endpoint selects path-style addressing for S3-compatible stores.
func NewS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3 writes each export as one JSON object.
type S3 struct {
	client ObjectPutter
	bucket string
	prefix string
}

func NewS3(client ObjectPutter, bucket, prefix string) *S3 {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

// Key returns the object key for e: <prefix><town-slug>/<timestamp>-<kind>.json.
func (s *S3) Key(e Export) string {
	kind := e.Kind
	if kind == "" {
		kind = "export"
	}
	return fmt.Sprintf("%s%s/%s-%s.json", s.prefix, Slug(e.Town), e.At.UTC().Format("20060102T150405Z"), kind)
}

func (s *S3) Archive(ctx context.Context, e Export) (string, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode export: %w", err)
	}
	key := s.Key(e)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		obs.Logger().WithFields(logrus.Fields{"operation": "archive.S3", "bucket": s.bucket, "key": key}).WithError(err).Error("put export")
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}
