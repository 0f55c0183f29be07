package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/smartsched/slotfinder/internal/platform/fetch"
	"github.com/smartsched/slotfinder/internal/platform/fhir"
)

// DefaultPageSize bounds how many directory entries one run looks at.
const DefaultPageSize = 200

// Entry is one Practitioner read from a directory, with its original JSON.
type Entry struct {
	Practitioner fhir.Practitioner
	Raw          json.RawMessage
}

// Directory is a source of practitioner entries.
type Directory interface {
	FetchPractitioners(ctx context.Context, pageSize int) ([]Entry, error)
}

// DirectoryClient reads a FHIR practitioner directory search endpoint.
type DirectoryClient struct {
	client  *fetch.Client
	baseURL string
}

func NewDirectoryClient(client *fetch.Client, baseURL string) *DirectoryClient {
	return &DirectoryClient{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// FetchPractitioners returns the first page of Practitioner entries. Entries
// of other resource types are ignored.
func (d *DirectoryClient) FetchPractitioners(ctx context.Context, pageSize int) ([]Entry, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	q := url.Values{}
	q.Set("_count", strconv.Itoa(pageSize))
	searchURL := d.baseURL + "/Practitioner?" + q.Encode()

	var bundle fhir.Bundle
	if err := d.client.GetJSON(ctx, searchURL, "application/fhir+json", &bundle); err != nil {
		return nil, fmt.Errorf("fetch practitioner directory: %w", err)
	}

	entries := make([]Entry, 0, len(bundle.Entry))
	for _, be := range bundle.Entry {
		if len(be.Resource) == 0 {
			continue
		}
		var p fhir.Practitioner
		if err := json.Unmarshal(be.Resource, &p); err != nil {
			continue
		}
		if p.ResourceType != "" && p.ResourceType != fhir.ResourcePractitioner {
			continue
		}
		entries = append(entries, Entry{Practitioner: p, Raw: be.Resource})
		if len(entries) == pageSize {
			break
		}
	}
	return entries, nil
}
