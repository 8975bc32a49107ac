package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"
)

const maxHTTPDoc = 8 << 20 // 8 MiB

// HTTP loads a single published document over HTTP. Conditional requests
// with If-None-Match keep repeated refreshes cheap for servers that send
// an ETag.
type HTTP struct {
	url     *url.URL
	docName string
	client  *http.Client

	mu     sync.Mutex
	etag   string
	cached []byte
}

// NewHTTP returns an HTTP source fetching one document from rawURL. docName
// overrides the document name derived from the URL path.
func NewHTTP(rawURL, docName string) (*HTTP, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("source: http backend requires a url")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("source: parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("source: http backend requires an http(s) url, got %q", u.Scheme)
	}
	if docName == "" {
		docName = path.Base(u.Path)
		if !IsMarkdown(docName) {
			docName = "index.md"
		}
	}
	return &HTTP{
		url:     u,
		docName: docName,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (h *HTTP) Name() string { return "http" }

func (h *HTTP) Load(ctx context.Context) (*Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/markdown, text/plain, */*")
	if h.etag != "" {
		req.Header.Set("If-None-Match", h.etag)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: fetch %s: %w", h.url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && h.cached != nil:
		return h.snapshot(h.cached), nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("source: fetch %s: unexpected status %d", h.url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPDoc+1))
	if err != nil {
		return nil, fmt.Errorf("source: read %s: %w", h.url, err)
	}
	if len(data) > maxHTTPDoc {
		return nil, fmt.Errorf("source: %s exceeds %d bytes", h.url, maxHTTPDoc)
	}

	h.etag = resp.Header.Get("ETag")
	h.cached = data
	return h.snapshot(data), nil
}

func (h *HTTP) snapshot(data []byte) *Snapshot {
	doc := make([]byte, len(data))
	copy(doc, data)
	return &Snapshot{Docs: []File{{Name: h.docName, Data: doc}}}
}
