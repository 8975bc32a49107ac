package source

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSOptions configures the Google Cloud Storage source.
type GCSOptions struct {
	Bucket string
	Prefix string
	// Anonymous skips credential lookup for public buckets.
	Anonymous bool
}

// GCS loads the documentation set from a GCS bucket.
type GCS struct {
	opts GCSOptions

	clientOnce    sync.Once
	client        *storage.Client
	clientInitErr error
}

// NewGCS returns a GCS source for the given bucket.
func NewGCS(opts GCSOptions) (*GCS, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("source: gcs backend requires a bucket")
	}
	return &GCS{opts: opts}, nil
}

func (g *GCS) Name() string { return "gcs" }

func (g *GCS) api(ctx context.Context) (*storage.Client, error) {
	g.clientOnce.Do(func() {
		var clientOpts []option.ClientOption
		if g.opts.Anonymous {
			clientOpts = append(clientOpts, option.WithoutAuthentication())
		}
		client, err := storage.NewClient(ctx, clientOpts...)
		if err != nil {
			g.clientInitErr = fmt.Errorf("create gcs client: %w", err)
			return
		}
		g.client = client
	})
	return g.client, g.clientInitErr
}

func (g *GCS) Load(ctx context.Context) (*Snapshot, error) {
	client, err := g.api(ctx)
	if err != nil {
		return nil, err
	}

	prefix := g.opts.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	bucket := client.Bucket(g.opts.Bucket)
	it := bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	snap := &Snapshot{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("source: list gs://%s/%s: %w", g.opts.Bucket, prefix, err)
		}
		rel := strings.TrimPrefix(attrs.Name, prefix)
		if rel == "" || strings.HasSuffix(rel, "/") {
			continue
		}
		if !IsMarkdown(rel) {
			snap.Assets = append(snap.Assets, rel)
			continue
		}
		data, err := g.read(ctx, bucket, attrs.Name)
		if err != nil {
			return nil, fmt.Errorf("source: read gs://%s/%s: %w", g.opts.Bucket, attrs.Name, err)
		}
		snap.Docs = append(snap.Docs, File{Name: rel, Data: data})
	}
	snap.normalize()
	return snap, nil
}

func (g *GCS) read(ctx context.Context, bucket *storage.BucketHandle, name string) ([]byte, error) {
	r, err := bucket.Object(name).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Close releases the GCS client if one was built.
func (g *GCS) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
