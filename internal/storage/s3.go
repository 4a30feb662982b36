package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
)

// S3Backend stores objects in an S3-compatible bucket, scoped to
// prefix. Adapted from haasonsaas-nexus's S3Store, generalized from a
// single artifacts/ concern to the full storage.Backend contract
// (JSON/JSONL round-tripping, directory-style prefix search, bucket
// lifecycle).
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 constructs an S3-backed Backend from cfg.
func NewS3(ctx context.Context, cfg Config, prefix string) (*S3Backend, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, faults.Validationf("s3 bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, faults.Internalf(err, "load aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &S3Backend{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (b *S3Backend) objectKey(key string) string {
	if b.prefix == "" {
		return key
	}
	return path.Join(b.prefix, key)
}

func (b *S3Backend) Path(key string) string {
	return "s3://" + b.bucket + "/" + b.objectKey(key)
}

func (b *S3Backend) Put(ctx context.Context, key string, value any) error {
	var data []byte
	var err error
	switch {
	case isJSONL(key):
		data, err = marshalJSONLSlice(value)
	case isJSON(key):
		data, err = json.Marshal(value)
	default:
		data, err = toBytes(value)
	}
	if err != nil {
		return err
	}
	objKey := b.objectKey(key)
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &b.bucket,
		Key:    &objKey,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return faults.Internalf(err, "s3 put %s", key)
	}
	return nil
}

func (b *S3Backend) Get(ctx context.Context, key string, out any) error {
	objKey := b.objectKey(key)
	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &b.bucket, Key: &objKey})
	if err != nil {
		if isNotFound(err) {
			return faults.NotFoundf("key %q not found", key)
		}
		return faults.Internalf(err, "s3 get %s", key)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return faults.Internalf(err, "s3 read body %s", key)
	}
	switch {
	case isJSONL(key):
		lines, err := decodeJSONL(data)
		if err != nil {
			return err
		}
		return assignJSONL(lines, out)
	case isJSON(key):
		if err := json.Unmarshal(data, out); err != nil {
			return faults.Internalf(err, "unmarshal %s", key)
		}
		return nil
	default:
		return assignBytes(data, out)
	}
}

func (b *S3Backend) Delete(ctx context.Context, key string) error {
	objKey := b.objectKey(key)
	if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &b.bucket, Key: &objKey}); err != nil {
		return faults.Internalf(err, "s3 delete %s", key)
	}
	return nil
}

func (b *S3Backend) Exists(ctx context.Context, key string) (bool, error) {
	objKey := b.objectKey(key)
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &b.bucket, Key: &objKey})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, faults.Internalf(err, "s3 head %s", key)
}

// Append reads the current object (if any), appends one more line,
// and writes it back. S3 has no native append primitive.
func (b *S3Backend) Append(ctx context.Context, key string, value any) error {
	var existing []byte
	objKey := b.objectKey(key)
	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &b.bucket, Key: &objKey})
	switch {
	case err == nil:
		defer resp.Body.Close()
		existing, err = io.ReadAll(resp.Body)
		if err != nil {
			return faults.Internalf(err, "s3 read body %s", key)
		}
	case isNotFound(err):
		existing = nil
	default:
		return faults.Internalf(err, "s3 get %s", key)
	}
	line, err := encodeJSONLLine(value)
	if err != nil {
		return err
	}
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &b.bucket,
		Key:    &objKey,
		Body:   bytes.NewReader(append(existing, line...)),
	})
	if err != nil {
		return faults.Internalf(err, "s3 put %s", key)
	}
	return nil
}

func (b *S3Backend) GetMany(ctx context.Context, keys []string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		var raw json.RawMessage
		if err := b.Get(ctx, k, &raw); err != nil {
			if faults.KindOf(err) == faults.NotFound {
				continue
			}
			return nil, err
		}
		out[k] = raw
	}
	return out, nil
}

func (b *S3Backend) List(ctx context.Context) ([]string, error) {
	var keys []string
	var continuation *string
	for {
		resp, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &b.bucket,
			Prefix:            aws.String(b.prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, faults.Internalf(err, "s3 list")
		}
		for _, obj := range resp.Contents {
			keys = append(keys, b.stripPrefix(aws.ToString(obj.Key)))
		}
		if resp.IsTruncated == nil || !*resp.IsTruncated {
			break
		}
		continuation = resp.NextContinuationToken
	}
	return keys, nil
}

func (b *S3Backend) stripPrefix(objKey string) string {
	if b.prefix == "" {
		return objKey
	}
	return strings.TrimPrefix(strings.TrimPrefix(objKey, b.prefix), "/")
}

func (b *S3Backend) FindByPrefix(ctx context.Context, prefix, delim string) ([]string, error) {
	all, err := b.List(ctx)
	if err != nil {
		return nil, err
	}
	if delim == "" {
		var out []string
		for _, k := range all {
			if strings.HasPrefix(k, prefix) {
				out = append(out, k)
			}
		}
		return out, nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, k := range all {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		if idx := strings.Index(rest, delim); idx >= 0 {
			next := prefix + rest[:idx+len(delim)]
			if !seen[next] {
				seen[next] = true
				out = append(out, next)
			}
		}
	}
	return out, nil
}

func (b *S3Backend) FindByExtension(ctx context.Context, ext string) ([]string, error) {
	all, err := b.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, k := range all {
		if strings.HasSuffix(k, ext) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (b *S3Backend) EnsureBucket(ctx context.Context) error {
	_, err := b.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &b.bucket})
	if err == nil {
		return nil
	}
	var alreadyOwned *types.BucketAlreadyOwnedByYou
	var alreadyExists *types.BucketAlreadyExists
	if errors.As(err, &alreadyOwned) || errors.As(err, &alreadyExists) {
		return nil
	}
	return faults.Internalf(err, "ensure bucket")
}

func (b *S3Backend) BucketExists(ctx context.Context) (bool, error) {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &b.bucket})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, faults.Internalf(err, "head bucket")
}

func (b *S3Backend) IsHealthy(ctx context.Context) error {
	ok, err := b.BucketExists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return faults.Internalf(nil, "bucket %s does not exist", b.bucket)
	}
	return nil
}

// isNotFound maps S3-style 404s and name-not-found errors to a single
// check callers can use to treat absence as non-fatal.
func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch strings.ToLower(apiErr.ErrorCode()) {
		case "notfound", "nosuchkey", "nosuchbucket":
			return true
		}
	}
	return false
}
