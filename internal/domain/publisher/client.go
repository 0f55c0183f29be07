package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/smartsched/slotfinder/internal/platform/fetch"
	"github.com/smartsched/slotfinder/internal/platform/fhir"
)

// Fetcher retrieves a publisher's manifest and data files.
type Fetcher interface {
	FetchManifest(ctx context.Context, baseURL string) (*Manifest, error)
	FetchNDJSON(ctx context.Context, fileURL string, fn func(line int, raw json.RawMessage) error) error
}

// Manifest is a parsed $bulk-publish document with file URLs made absolute.
type Manifest struct {
	URL    string
	Output []fhir.ManifestOutput
}

// ManifestURL returns the $bulk-publish URL of a publisher base URL.
func ManifestURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/$bulk-publish"
}

// HTTPFetcher implements Fetcher over HTTP.
type HTTPFetcher struct {
	client *fetch.Client
}

func NewHTTPFetcher(client *fetch.Client) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) FetchManifest(ctx context.Context, baseURL string) (*Manifest, error) {
	manifestURL := ManifestURL(baseURL)
	var doc struct {
		Output []fhir.ManifestOutput `json:"output"`
	}
	if err := f.client.GetJSON(ctx, manifestURL, "application/json", &doc); err != nil {
		return nil, err
	}

	base, err := url.Parse(manifestURL)
	if err != nil {
		return nil, fmt.Errorf("parse manifest url: %w", err)
	}
	for i, out := range doc.Output {
		if out.URL == "" {
			continue
		}
		ref, err := url.Parse(out.URL)
		if err != nil {
			doc.Output[i].URL = ""
			continue
		}
		doc.Output[i].URL = base.ResolveReference(ref).String()
	}
	return &Manifest{URL: manifestURL, Output: doc.Output}, nil
}

func (f *HTTPFetcher) FetchNDJSON(ctx context.Context, fileURL string, fn func(line int, raw json.RawMessage) error) error {
	return f.client.Get(ctx, fileURL, fhir.NDJSONContentType, func(body io.Reader) error {
		return fhir.ReadNDJSON(body, fn)
	})
}
