package directory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/smartsched/slotfinder/internal/platform/fhir"
)

// ErrUnsupportedType is returned for resource types outside the four
// aggregated kinds.
var ErrUnsupportedType = errors.New("unsupported resource type")

// IsSupportedType reports whether resourceType is one of the aggregated kinds.
func IsSupportedType(resourceType string) bool {
	switch resourceType {
	case fhir.ResourceLocation, fhir.ResourcePractitionerRole, fhir.ResourceSchedule, fhir.ResourceSlot:
		return true
	}
	return false
}

// SupportedTypes lists the aggregated kinds in manifest order.
func SupportedTypes() []string {
	return []string{fhir.ResourceLocation, fhir.ResourcePractitionerRole, fhir.ResourceSchedule, fhir.ResourceSlot}
}

// Provenance is stamped onto every decoded resource.
type Provenance struct {
	PublisherURL string
	FetchedAt    time.Time
}

// Members each type maps onto struct fields. Anything else a publisher sends
// is kept verbatim in Extra and re-emitted on export.
var modelledMembers = map[string]map[string]bool{
	fhir.ResourceLocation: {
		"id": true, "identifier": true, "name": true, "telecom": true,
		"address": true, "position": true, "description": true,
	},
	fhir.ResourcePractitionerRole: {
		"id": true, "identifier": true, "active": true, "practitioner": true,
		"specialty": true, "location": true, "telecom": true,
	},
	fhir.ResourceSchedule: {
		"id": true, "identifier": true, "active": true, "serviceType": true,
		"actor": true, "planningHorizon": true, "extension": true,
	},
	fhir.ResourceSlot: {
		"id": true, "identifier": true, "schedule": true, "status": true, "start": true,
		"end": true, "serviceType": true, "comment": true, "extension": true,
	},
}

// Internal-only members. They are never accepted from a publisher.
var internalMembers = map[string]bool{
	"publisherUrl": true,
	"updatedAt":    true,
	"enrichment":   true,
	"isVirtual":    true,
	"extra":        true,
}

// Decode maps one FHIR JSON object onto the internal representation of
// resourceType. Internal-only fields present in the input are discarded and
// replaced with prov; Slot derived fields are computed here. Only a missing
// id is rejected; status and times are taken as published.
func Decode(resourceType string, raw []byte, prov Provenance) (Resource, error) {
	if !IsSupportedType(resourceType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, resourceType)
	}
	wire, extra, err := splitMembers(resourceType, raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", resourceType, err)
	}

	var r Resource
	switch resourceType {
	case fhir.ResourceLocation:
		r = &Location{Extra: extra, PublisherURL: prov.PublisherURL, UpdatedAt: prov.FetchedAt}
	case fhir.ResourcePractitionerRole:
		r = &PractitionerRole{Extra: extra, PublisherURL: prov.PublisherURL, UpdatedAt: prov.FetchedAt}
	case fhir.ResourceSchedule:
		r = &Schedule{Extra: extra, PublisherURL: prov.PublisherURL, UpdatedAt: prov.FetchedAt}
	case fhir.ResourceSlot:
		r = &Slot{Extra: extra, PublisherURL: prov.PublisherURL, UpdatedAt: prov.FetchedAt}
	}
	if err := json.Unmarshal(wire, r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", resourceType, err)
	}
	if s, ok := r.(*Slot); ok {
		s.AppointmentType, s.IsVirtual = DeriveSlotFields(s.Extension)
	}
	if r.ResourceID() == "" {
		return nil, fmt.Errorf("decode %s: id is required", resourceType)
	}
	return r, nil
}

// splitMembers separates the members decoded into struct fields from the
// unmodelled ones. Slot.appointmentType is a FHIR CodeableConcept and is kept
// as an unmodelled member; any other shape is a stale cached value and is
// dropped, as it is on the other types.
func splitMembers(resourceType string, raw []byte) ([]byte, map[string]json.RawMessage, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, nil, err
	}
	if rt, ok := members["resourceType"]; ok {
		var got string
		if err := json.Unmarshal(rt, &got); err != nil {
			return nil, nil, fmt.Errorf("resourceType: %w", err)
		}
		if got != "" && got != resourceType {
			return nil, nil, fmt.Errorf("unexpected resourceType %q", got)
		}
	}

	modelled := modelledMembers[resourceType]
	wire := make(map[string]json.RawMessage, len(modelled))
	var extra map[string]json.RawMessage
	for k, v := range members {
		switch {
		case k == "resourceType" || internalMembers[k]:
		case k == "appointmentType" && !(resourceType == fhir.ResourceSlot && isObject(v)):
		case modelled[k]:
			wire[k] = v
		default:
			if extra == nil {
				extra = make(map[string]json.RawMessage)
			}
			extra[k] = v
		}
	}
	b, err := json.Marshal(wire)
	return b, extra, err
}

func isObject(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == '{'
}
