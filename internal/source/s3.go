package source

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options configures the S3 source.
type S3Options struct {
	Bucket string
	// Prefix restricts the load to keys under this prefix.
	Prefix string
	Region string
	// Client overrides the lazily built default client. For tests.
	Client S3API
}

// S3API is the slice of the S3 client the source uses.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 loads the documentation set from an S3 bucket, the usual target of a
// CI step that uploads docs on merge.
type S3 struct {
	opts S3Options

	clientOnce    sync.Once
	client        S3API
	clientInitErr error
}

// NewS3 returns an S3 source for the given bucket.
func NewS3(opts S3Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("source: s3 backend requires a bucket")
	}
	return &S3{opts: opts, client: opts.Client}, nil
}

func (s *S3) Name() string { return "s3" }

func (s *S3) api(ctx context.Context) (S3API, error) {
	if s.client != nil {
		return s.client, nil
	}
	s.clientOnce.Do(func() {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if s.opts.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(s.opts.Region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			s.clientInitErr = fmt.Errorf("load aws config: %w", err)
			return
		}
		s.client = s3.NewFromConfig(cfg)
	})
	return s.client, s.clientInitErr
}

func (s *S3) Load(ctx context.Context) (*Snapshot, error) {
	client, err := s.api(ctx)
	if err != nil {
		return nil, err
	}

	prefix := s.opts.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	snap := &Snapshot{}
	in := &s3.ListObjectsV2Input{Bucket: aws.String(s.opts.Bucket)}
	if prefix != "" {
		in.Prefix = aws.String(prefix)
	}
	for {
		page, err := client.ListObjectsV2(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("source: list s3://%s/%s: %w", s.opts.Bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			rel := strings.TrimPrefix(key, prefix)
			if rel == "" || strings.HasSuffix(rel, "/") {
				continue
			}
			if !IsMarkdown(rel) {
				snap.Assets = append(snap.Assets, rel)
				continue
			}
			data, err := s.get(ctx, client, key)
			if err != nil {
				return nil, fmt.Errorf("source: get s3://%s/%s: %w", s.opts.Bucket, key, err)
			}
			snap.Docs = append(snap.Docs, File{Name: rel, Data: data})
		}
		if !aws.ToBool(page.IsTruncated) {
			break
		}
		in.ContinuationToken = page.NextContinuationToken
	}
	snap.normalize()
	return snap, nil
}

func (s *S3) get(ctx context.Context, client S3API, key string) ([]byte, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
