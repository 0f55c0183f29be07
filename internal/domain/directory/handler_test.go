package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo) {
	t.Helper()
	store := NewMemoryStore()
	ctx := context.Background()
	store.Locations.BulkUpsert(ctx, []*Location{testLocation("loc-1", "MA"), testLocation("loc-2", "NY"), testLocation("loc-3", "NY")})
	store.PractitionerRoles.BulkUpsert(ctx, []*PractitionerRole{testRole("pr-1", "Dr. Jane Smith")})
	return NewHandler(store), echo.New()
}

func TestHandler_ListLocations_Paged(t *testing.T) {
	h, e := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/?_count=2&_offset=1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListLocations(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data    []Location `json:"data"`
		Total   int        `json:"total"`
		HasMore bool       `json:"hasMore"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 3 || len(resp.Data) != 2 || resp.Data[0].ID != "loc-2" {
		t.Errorf("unexpected page: total=%d len=%d", resp.Total, len(resp.Data))
	}
	if resp.HasMore {
		t.Error("expected last page")
	}
}

func TestHandler_GetPractitionerRole_NotFound(t *testing.T) {
	h, e := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("missing")

	err := h.GetPractitionerRole(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_Stats(t *testing.T) {
	h, e := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Stats(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var counts Counts
	json.Unmarshal(rec.Body.Bytes(), &counts)
	if counts.Locations != 3 || counts.PractitionerRoles != 1 {
		t.Errorf("unexpected counts %+v", counts)
	}
}
