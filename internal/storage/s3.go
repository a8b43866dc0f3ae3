package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	appErr "github.com/cloudconsole/engine/pkg/errors"
	"github.com/cloudconsole/engine/pkg/logger"
)

// deleteBatchSize is the DeleteObjects per-request limit.
const deleteBatchSize = 1000

// authErrorCodes are S3 error codes that retrying cannot fix.
var authErrorCodes = map[string]bool{
	"AccessDenied":          true,
	"AllAccessDisabled":     true,
	"ExpiredToken":          true,
	"InvalidAccessKeyId":    true,
	"InvalidToken":          true,
	"SignatureDoesNotMatch": true,
	"NoSuchBucket":          true,
}

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Options configures NewS3FromConfig.
type S3Options struct {
	Bucket string
	Region string
	// Endpoint overrides the service endpoint (MinIO, LocalStack) and
	// switches to path-style addressing.
	Endpoint string
}

// S3Store implements Store on a single S3 bucket.
type S3Store struct {
	client S3API
	bucket string
}

var _ Store = (*S3Store)(nil)

// NewS3 wraps an existing client.
func NewS3(client S3API, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

// NewS3FromConfig builds a client from the default AWS credential chain.
func NewS3FromConfig(ctx context.Context, opts S3Options) (*S3Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3(client, opts.Bucket), nil
}

// Bucket returns the bucket name.
func (s *S3Store) Bucket() string { return s.bucket }

func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, classify("list", err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, Metadata, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, classify("get", err)
	}
	meta := Metadata{}
	for k, v := range out.Metadata {
		meta[strings.ToLower(k)] = v
	}
	return out.Body, meta, nil
}

// Put stores meta as x-amz-meta-* headers.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, meta Metadata) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if len(meta) > 0 {
		in.Metadata = map[string]string(meta)
	}
	_, err := s.client.PutObject(ctx, in)
	if err != nil {
		return classify("put", err)
	}
	return nil
}

func (s *S3Store) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(copySource(s.bucket, srcKey)),
		Key:        aws.String(dstKey),
	})
	if err != nil {
		return classify("copy", err)
	}
	return nil
}

func (s *S3Store) DeleteBatch(ctx context.Context, keys []string) (DeleteResult, error) {
	res := DeleteResult{Failed: map[string]string{}}
	var firstErr error

	for i := 0; i < len(keys); i += deleteBatchSize {
		batch := keys[i:min(i+deleteBatchSize, len(keys))]
		ids := make([]types.ObjectIdentifier, 0, len(batch))
		for _, k := range batch {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			for _, k := range batch {
				res.Failed[k] = err.Error()
			}
			continue
		}

		failed := map[string]bool{}
		for _, e := range out.Errors {
			if e.Key == nil {
				continue
			}
			failed[*e.Key] = true
			res.Failed[*e.Key] = aws.ToString(e.Message)
			logger.L().Warn("s3 object not deleted",
				zap.String("key", *e.Key),
				zap.String("code", aws.ToString(e.Code)),
				zap.String("reason", aws.ToString(e.Message)),
			)
		}
		for _, k := range batch {
			if !failed[k] {
				res.Deleted = append(res.Deleted, k)
			}
		}
	}

	if res.Clean() {
		return res, nil
	}
	if firstErr != nil {
		return res, classify("delete", firstErr)
	}
	return res, appErr.Newf(appErr.CodeUnavailable, "s3 delete left %d of %d objects", len(res.Failed), len(keys))
}

// copySource renders the URL-encoded "bucket/key" form CopyObject expects.
// Working prefixes contain spaces and parentheses.
func copySource(bucket, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return bucket + "/" + strings.Join(parts, "/")
}

func classify(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && authErrorCodes[apiErr.ErrorCode()] {
		return appErr.Wrap(err, appErr.CodeUnauthorized, "s3 "+op+" denied")
	}
	return appErr.Wrap(err, appErr.CodeUnavailable, "s3 "+op+" failed")
}
