package writer

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/time/rate"

	appconfig "marketdb/config"
	"marketdb/logger"
)

// ObjectStore is the subset of the S3 API used for publishing.
type ObjectStore interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// TableFiles is the committed file set of one table.
type TableFiles struct {
	Name        string
	Partitioned bool
	Files       []FileInfo
}

// RemotePrefix is the key prefix, relative to the publisher prefix, that
// holds every object of the table.
func (t TableFiles) RemotePrefix() string {
	if t.Partitioned {
		return t.Name + "/"
	}
	return t.Name + ".parquet"
}

// S3Publisher mirrors committed tables to a bucket.
type S3Publisher struct {
	client  ObjectStore
	bucket  string
	prefix  string
	version string
	limiter *rate.Limiter
	log     *logger.Log
}

// NewS3Publisher builds an S3 client from cfg the same way for every
// deployment: static credentials when given, otherwise the default chain.
func NewS3Publisher(ctx context.Context, cfg appconfig.S3Config, version string) (*S3Publisher, error) {
	log := logger.GetLogger()

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("s3_publisher").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	log.WithComponent("s3_publisher").WithFields(logger.Fields{
		"bucket":     cfg.Bucket,
		"region":     cfg.Region,
		"endpoint":   cfg.Endpoint,
		"path_style": cfg.PathStyle,
		"prefix":     cfg.Prefix,
	}).Info("s3 publisher initialized")

	return NewS3PublisherWithClient(client, cfg.Bucket, cfg.Prefix, cfg.UploadsPerSecond, version), nil
}

func NewS3PublisherWithClient(client ObjectStore, bucket, prefix string, uploadsPerSecond float64, version string) *S3Publisher {
	limit := rate.Inf
	if uploadsPerSecond > 0 {
		limit = rate.Limit(uploadsPerSecond)
	}
	return &S3Publisher{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		version: version,
		limiter: rate.NewLimiter(limit, 1),
		log:     logger.GetLogger(),
	}
}

func (p *S3Publisher) key(rel string) string {
	if p.prefix == "" {
		return rel
	}
	key := path.Join(p.prefix, rel)
	if strings.HasSuffix(rel, "/") {
		key += "/"
	}
	return key
}

// PublishTable uploads every file of table from root and then deletes remote
// objects of the table that are not part of the new file set.
func (p *S3Publisher) PublishTable(ctx context.Context, root string, table TableFiles) error {
	log := p.log.WithComponent("s3_publisher").WithFields(logger.Fields{
		"table":  table.Name,
		"bucket": p.bucket,
	})

	keep := make(map[string]struct{}, len(table.Files))
	for _, f := range table.Files {
		key := p.key(f.Path)
		if err := p.upload(ctx, filepath.Join(root, filepath.FromSlash(f.Path)), key); err != nil {
			return err
		}
		keep[key] = struct{}{}
		logger.RecordS3Upload()
	}

	stale, err := p.listStale(ctx, p.key(table.RemotePrefix()), keep)
	if err != nil {
		return err
	}
	if len(stale) > 0 {
		if err := p.delete(ctx, stale); err != nil {
			return err
		}
	}

	log.WithFields(logger.Fields{
		"uploaded": len(table.Files),
		"deleted":  len(stale),
	}).Info("published table to S3")
	return nil
}

func (p *S3Publisher) upload(ctx context.Context, local, key string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("failed to open %s for upload: %w", local, err)
	}
	defer f.Close()

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":     "parquet",
			"marketdb-version": p.version,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", p.bucket, err)
	}
	return nil
}

func (p *S3Publisher) listStale(ctx context.Context, prefix string, keep map[string]struct{}) ([]string, error) {
	var stale []string
	var token *string
	for {
		out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(p.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", p.bucket, prefix, err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if _, ok := keep[key]; !ok {
				stale = append(stale, key)
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			return stale, nil
		}
		token = out.NextContinuationToken
	}
}

// delete removes keys in batches of the S3 limit of 1000.
func (p *S3Publisher) delete(ctx context.Context, keys []string) error {
	const batch = 1000
	for start := 0; start < len(keys); start += batch {
		end := start + batch
		if end > len(keys) {
			end = len(keys)
		}
		ids := make([]s3types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, s3types.ObjectIdentifier{Key: aws.String(k)})
		}
		if _, err := p.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(p.bucket),
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		}); err != nil {
			return fmt.Errorf("failed to delete stale objects: %w", err)
		}
	}
	return nil
}
