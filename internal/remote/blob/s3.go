// Package blob uploads media and bag files to S3-compatible object storage.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/socialsync/internal/common"
	"github.com/dmitrijs2005/socialsync/internal/netx"
	"github.com/dmitrijs2005/socialsync/internal/remote"
)

// PresignTTL bounds presigned GET links.
const PresignTTL = 15 * time.Minute

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}

	download = netx.Download

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// Options configures the S3 client.
type Options struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	// PublicBaseURL prefixes public object URLs; the endpoint is used when
	// empty.
	PublicBaseURL string
}

// Store is a remote.BlobStore backed by S3.
type Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	baseURL string
}

func New(ctx context.Context, o Options) (*Store, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(o.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(so *s3.Options) {
		if o.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.Endpoint)
			so.UsePathStyle = true
		}
	})

	base := o.PublicBaseURL
	if base == "" {
		base = o.Endpoint
	}
	return &Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		baseURL: strings.TrimRight(base, "/"),
	}, nil
}

func (s *Store) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(path),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := putObject(s.client, ctx, in); err != nil {
		return fmt.Errorf("upload %s/%s: %w: %w", bucket, path, common.ErrUnavailable, err)
	}
	return nil
}

// PublicURL is <base>/<bucket>/<path> with each path segment escaped.
func (s *Store) PublicURL(bucket, path string) string {
	segs := strings.Split(path, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/" + url.PathEscape(bucket) + "/" + strings.Join(segs, "/")
}

// PresignGet returns a time-limited download link for private buckets.
func (s *Store) PresignGet(ctx context.Context, bucket, path string) (string, error) {
	req, err := presignGetObject(s.presign, ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(PresignTTL))
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, path, err)
	}
	return req.URL, nil
}

// Fetch downloads an object through a presigned GET link.
func (s *Store) Fetch(ctx context.Context, bucket, path string) ([]byte, error) {
	u, err := s.PresignGet(ctx, bucket, path)
	if err != nil {
		return nil, err
	}
	data, err := download(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", bucket, path, err)
	}
	return data, nil
}

// ObjectKey builds a unique key under owner for a file with name. The
// extension of name is kept.
func ObjectKey(owner, name string, now time.Time) string {
	ext := ""
	if i := strings.LastIndexByte(name, '.'); i >= 0 && i < len(name)-1 {
		ext = strings.ToLower(name[i:])
	}
	return fmt.Sprintf("%s/%d/%02d/%s%s", owner, now.Year(), now.Month(), uuid.NewString(), ext)
}

var (
	_ remote.BlobStore   = (*Store)(nil)
	_ remote.BlobFetcher = (*Store)(nil)
)
