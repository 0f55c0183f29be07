package directory

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/smartsched/slotfinder/internal/platform/fhir"
)

// Slot statuses defined by FHIR R4.
const (
	SlotStatusFree            = "free"
	SlotStatusBusy            = "busy"
	SlotStatusBusyUnavailable = "busy-unavailable"
	SlotStatusBusyTentative   = "busy-tentative"
	SlotStatusEnteredInError  = "entered-in-error"
)

// Extra holds the members of a published resource that have no struct
// field, keyed by member name. They are stored as received and merged back
// into the FHIR form on export.
type Extra = map[string]json.RawMessage

// Resource is implemented by the four aggregated resource kinds.
type Resource interface {
	ResourceID() string
	ResourceType() string
	ToFHIR() map[string]interface{}
}

// Location is a place where care is delivered.
type Location struct {
	ID           string              `json:"id"`
	Identifier   []fhir.Identifier   `json:"identifier,omitempty"`
	Name         string              `json:"name,omitempty"`
	Telecom      []fhir.ContactPoint `json:"telecom,omitempty"`
	Address      *fhir.Address       `json:"address,omitempty"`
	Position     *fhir.Position      `json:"position,omitempty"`
	Description  string              `json:"description,omitempty"`
	Extra        Extra               `json:"extra,omitempty"`
	PublisherURL string              `json:"publisherUrl,omitempty"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

func (l *Location) ResourceID() string   { return l.ID }
func (l *Location) ResourceType() string { return fhir.ResourceLocation }

// State returns the upper-cased state code of the address, if any.
func (l *Location) State() string {
	if l.Address == nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(l.Address.State))
}

func (l *Location) ToFHIR() map[string]interface{} {
	result := fhirObject(fhir.ResourceLocation, l.ID, l.Extra)
	if len(l.Identifier) > 0 {
		result["identifier"] = l.Identifier
	}
	if l.Name != "" {
		result["name"] = l.Name
	}
	if len(l.Telecom) > 0 {
		result["telecom"] = l.Telecom
	}
	if l.Address != nil {
		result["address"] = l.Address
	}
	if l.Position != nil {
		result["position"] = l.Position
	}
	if l.Description != "" {
		result["description"] = l.Description
	}
	return result
}

// Qualification is an education or certification entry taken from a
// practitioner directory.
type Qualification struct {
	Name   string `json:"name"`
	Issuer string `json:"issuer,omitempty"`
}

// Enrichment is the overlay merged onto a PractitionerRole from a third-party
// practitioner directory.
type Enrichment struct {
	NPI                  string          `json:"npi"`
	InsuranceAccepted    []string        `json:"insuranceAccepted,omitempty"`
	LanguagesSpoken      []string        `json:"languagesSpoken,omitempty"`
	Education            []Qualification `json:"education,omitempty"`
	BoardCertifications  []Qualification `json:"boardCertifications,omitempty"`
	HospitalAffiliations []string        `json:"hospitalAffiliations,omitempty"`
	Raw                  json.RawMessage `json:"raw,omitempty"`
	Source               string          `json:"source,omitempty"`
	EnrichedAt           time.Time       `json:"enrichedAt"`
}

// PractitionerRole is one practitioner's role at one or more locations.
type PractitionerRole struct {
	ID           string                 `json:"id"`
	Identifier   []fhir.Identifier      `json:"identifier,omitempty"`
	Active       *bool                  `json:"active,omitempty"`
	Practitioner *fhir.Reference        `json:"practitioner,omitempty"`
	Specialty    []fhir.CodeableConcept `json:"specialty,omitempty"`
	Location     []fhir.Reference       `json:"location,omitempty"`
	Telecom      []fhir.ContactPoint    `json:"telecom,omitempty"`
	Enrichment   *Enrichment            `json:"enrichment,omitempty"`
	Extra        Extra                  `json:"extra,omitempty"`
	PublisherURL string                 `json:"publisherUrl,omitempty"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

func (r *PractitionerRole) ResourceID() string   { return r.ID }
func (r *PractitionerRole) ResourceType() string { return fhir.ResourcePractitionerRole }

// DisplayName is the practitioner display carried on the role.
func (r *PractitionerRole) DisplayName() string {
	if r.Practitioner == nil {
		return ""
	}
	return r.Practitioner.Display
}

// NPI returns the enrichment identifier, or "" when the role is not enriched.
func (r *PractitionerRole) NPI() string {
	if r.Enrichment == nil {
		return ""
	}
	return r.Enrichment.NPI
}

// LocationIDs returns the ids of the Location references on the role.
func (r *PractitionerRole) LocationIDs() []string {
	var ids []string
	for _, ref := range r.Location {
		if id, ok := fhir.ReferenceID(ref.Reference, fhir.ResourceLocation); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *PractitionerRole) ToFHIR() map[string]interface{} {
	result := fhirObject(fhir.ResourcePractitionerRole, r.ID, r.Extra)
	if len(r.Identifier) > 0 {
		result["identifier"] = r.Identifier
	}
	if r.Active != nil {
		result["active"] = *r.Active
	}
	if r.Practitioner != nil {
		result["practitioner"] = r.Practitioner
	}
	if len(r.Specialty) > 0 {
		result["specialty"] = r.Specialty
	}
	if len(r.Location) > 0 {
		result["location"] = r.Location
	}
	if len(r.Telecom) > 0 {
		result["telecom"] = r.Telecom
	}
	return result
}

// Schedule links actors (a PractitionerRole and usually its Location) to
// their Slots.
type Schedule struct {
	ID              string                 `json:"id"`
	Identifier      []fhir.Identifier      `json:"identifier,omitempty"`
	Active          *bool                  `json:"active,omitempty"`
	ServiceType     []fhir.CodeableConcept `json:"serviceType,omitempty"`
	Actor           []fhir.Reference       `json:"actor,omitempty"`
	PlanningHorizon *fhir.Period           `json:"planningHorizon,omitempty"`
	Extension       []fhir.Extension       `json:"extension,omitempty"`
	Extra           Extra                  `json:"extra,omitempty"`
	PublisherURL    string                 `json:"publisherUrl,omitempty"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

func (s *Schedule) ResourceID() string   { return s.ID }
func (s *Schedule) ResourceType() string { return fhir.ResourceSchedule }

// ActorIDs returns the ids of the actors of the given resource type.
func (s *Schedule) ActorIDs(resourceType string) []string {
	var ids []string
	for _, ref := range s.Actor {
		if id, ok := fhir.ReferenceID(ref.Reference, resourceType); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Schedule) ToFHIR() map[string]interface{} {
	result := fhirObject(fhir.ResourceSchedule, s.ID, s.Extra)
	if len(s.Identifier) > 0 {
		result["identifier"] = s.Identifier
	}
	if s.Active != nil {
		result["active"] = *s.Active
	}
	if len(s.ServiceType) > 0 {
		result["serviceType"] = s.ServiceType
	}
	if len(s.Actor) > 0 {
		result["actor"] = s.Actor
	}
	if s.PlanningHorizon != nil {
		result["planningHorizon"] = s.PlanningHorizon
	}
	if len(s.Extension) > 0 {
		result["extension"] = s.Extension
	}
	return result
}

// Slot is a bookable unit of time on a Schedule. AppointmentType and
// IsVirtual are derived from Extension at ingestion.
type Slot struct {
	ID              string                 `json:"id"`
	Identifier      []fhir.Identifier      `json:"identifier,omitempty"`
	Schedule        fhir.Reference         `json:"schedule"`
	Status          string                 `json:"status"`
	Start           time.Time              `json:"start"`
	End             time.Time              `json:"end"`
	ServiceType     []fhir.CodeableConcept `json:"serviceType,omitempty"`
	Comment         string                 `json:"comment,omitempty"`
	Extension       []fhir.Extension       `json:"extension,omitempty"`
	AppointmentType *string                `json:"appointmentType"`
	IsVirtual       bool                   `json:"isVirtual"`
	Extra           Extra                  `json:"extra,omitempty"`
	PublisherURL    string                 `json:"publisherUrl,omitempty"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

func (s *Slot) ResourceID() string   { return s.ID }
func (s *Slot) ResourceType() string { return fhir.ResourceSlot }

// ScheduleID returns the id of the owning Schedule, or "" for a dangling or
// malformed reference.
func (s *Slot) ScheduleID() string {
	id, _ := fhir.ReferenceID(s.Schedule.Reference, fhir.ResourceSchedule)
	return id
}

func (s *Slot) ToFHIR() map[string]interface{} {
	result := fhirObject(fhir.ResourceSlot, s.ID, s.Extra)
	result["schedule"] = s.Schedule
	if s.Status != "" {
		result["status"] = s.Status
	}
	if !s.Start.IsZero() {
		result["start"] = s.Start.UTC().Format(time.RFC3339)
	}
	if !s.End.IsZero() {
		result["end"] = s.End.UTC().Format(time.RFC3339)
	}
	if len(s.Identifier) > 0 {
		result["identifier"] = s.Identifier
	}
	if len(s.ServiceType) > 0 {
		result["serviceType"] = s.ServiceType
	}
	if s.Comment != "" {
		result["comment"] = s.Comment
	}
	if len(s.Extension) > 0 {
		result["extension"] = s.Extension
	}
	return result
}

// fhirObject starts the export form of a resource from its unmodelled
// members. Modelled fields are set over it by the caller.
func fhirObject(resourceType, id string, extra Extra) map[string]interface{} {
	result := make(map[string]interface{}, len(extra)+8)
	for k, v := range extra {
		result[k] = v
	}
	result["resourceType"] = resourceType
	result["id"] = id
	return result
}
