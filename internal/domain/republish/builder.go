// Package republish serves the aggregated store back out as a bulk
// publication: a $bulk-publish manifest plus one clean NDJSON file per
// resource type.
package republish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/smartsched/slotfinder/internal/domain/directory"
	"github.com/smartsched/slotfinder/internal/platform/fhir"
)

// ErrUnknownType is returned by Export for a type that is not published.
var ErrUnknownType = errors.New("unknown resource type")

// DefaultDataPath is where the NDJSON files are mounted.
const DefaultDataPath = "/fhir/data"

// ManifestRequest carries what the manifest echoes and links against.
type ManifestRequest struct {
	Method string
	Path   string
	// BaseURL is the scheme and host the client used, e.g. https://host.
	BaseURL string
}

type Builder struct {
	store    *directory.Store
	dataPath string
	now      func() time.Time
}

// NewBuilder publishes store with data files under dataPath.
func NewBuilder(store *directory.Store, dataPath string) *Builder {
	if dataPath == "" {
		dataPath = DefaultDataPath
	}
	return &Builder{store: store, dataPath: "/" + strings.Trim(dataPath, "/"), now: time.Now}
}

// FileURL is the absolute URL of one resource type's NDJSON file.
func (b *Builder) FileURL(baseURL, resourceType string) string {
	return strings.TrimRight(baseURL, "/") + b.dataPath + "/" + resourceType + ".ndjson"
}

func (b *Builder) Manifest(ctx context.Context, req ManifestRequest) (*fhir.Manifest, error) {
	counts, err := b.store.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count resources: %w", err)
	}
	states, err := b.states(ctx)
	if err != nil {
		return nil, err
	}

	m := &fhir.Manifest{
		TransactionTime:     b.now().UTC(),
		Request:             strings.TrimSpace(req.Method + " " + req.Path),
		RequiresAccessToken: false,
		Output:              make([]fhir.ManifestOutput, 0, 4),
		Error:               []fhir.ManifestOutput{},
	}
	for _, typ := range directory.SupportedTypes() {
		n := counts.ByType(typ)
		out := fhir.ManifestOutput{Type: typ, URL: b.FileURL(req.BaseURL, typ), Count: &n}
		if typ == fhir.ResourceSlot && len(states) > 0 {
			out.Extension = &fhir.ManifestOutputExtension{State: states}
		}
		m.Output = append(m.Output, out)
	}
	return m, nil
}

// states returns the sorted distinct states of all stored Locations.
func (b *Builder) states(ctx context.Context) ([]string, error) {
	locations, err := b.store.Locations.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	seen := map[string]bool{}
	var states []string
	for _, l := range locations {
		if s := l.State(); s != "" && !seen[s] {
			seen[s] = true
			states = append(states, s)
		}
	}
	sort.Strings(states)
	return states, nil
}

// Export writes every stored resource of resourceType to w, one FHIR JSON
// object per line, without internal fields. Nothing is written when the
// store read fails.
func (b *Builder) Export(ctx context.Context, resourceType string, w io.Writer) (int, error) {
	if !directory.IsSupportedType(resourceType) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownType, resourceType)
	}
	resources, err := b.store.ListByType(ctx, resourceType)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", resourceType, err)
	}
	nw := fhir.NewNDJSONWriter(w)
	for _, r := range resources {
		if err := nw.WriteResource(r.ToFHIR()); err != nil {
			return nw.Count(), fmt.Errorf("write %s/%s: %w", resourceType, r.ResourceID(), err)
		}
	}
	if err := nw.Flush(); err != nil {
		return nw.Count(), err
	}
	return nw.Count(), nil
}
