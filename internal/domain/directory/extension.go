package directory

import (
	"strings"

	"github.com/smartsched/slotfinder/internal/platform/fhir"
)

// Extension URLs understood on Slot and Schedule resources.
const (
	ExtURLBookingDeepLink = "http://fhir-registry.smarthealthit.org/StructureDefinition/booking-deep-link"
	ExtURLBookingPhone    = "http://fhir-registry.smarthealthit.org/StructureDefinition/booking-phone"
	ExtURLSlotCapacity    = "http://fhir-registry.smarthealthit.org/StructureDefinition/slot-capacity"
	ExtURLAppointmentType = "http://fhir-registry.smarthealthit.org/StructureDefinition/appointment-type"
	ExtURLVirtualService  = "http://fhir-registry.smarthealthit.org/StructureDefinition/virtual-service"
)

// ExtensionKind tags a decoded extension.
type ExtensionKind int

const (
	ExtUnknown ExtensionKind = iota
	ExtBookingDeepLink
	ExtBookingPhone
	ExtSlotCapacity
	ExtAppointmentType
	ExtVirtualService
)

func (k ExtensionKind) String() string {
	switch k {
	case ExtBookingDeepLink:
		return "booking-deep-link"
	case ExtBookingPhone:
		return "booking-phone"
	case ExtSlotCapacity:
		return "slot-capacity"
	case ExtAppointmentType:
		return "appointment-type"
	case ExtVirtualService:
		return "virtual-service"
	default:
		return "unknown"
	}
}

var extensionKinds = map[string]ExtensionKind{
	ExtURLBookingDeepLink: ExtBookingDeepLink,
	ExtURLBookingPhone:    ExtBookingPhone,
	ExtURLSlotCapacity:    ExtSlotCapacity,
	ExtURLAppointmentType: ExtAppointmentType,
	"http://hl7.org/fhir/StructureDefinition/appointment-type": ExtAppointmentType,
}

// Any URL containing one of these marks the slot as virtual.
var virtualServiceMarkers = []string{
	ExtURLVirtualService,
	"http://hl7.org/fhir/StructureDefinition/virtual-service",
	"http://hl7.org/fhir/StructureDefinition/virtualServiceDetail",
}

// DecodedExtension is the typed form of a known extension. Only the field
// matching Kind is set.
type DecodedExtension struct {
	Kind     ExtensionKind
	URL      string
	Text     string
	Capacity int
}

// ClassifyExtension maps an extension URL to its kind.
func ClassifyExtension(url string) ExtensionKind {
	if k, ok := extensionKinds[url]; ok {
		return k
	}
	for _, marker := range virtualServiceMarkers {
		if strings.Contains(url, marker) {
			return ExtVirtualService
		}
	}
	return ExtUnknown
}

// DecodeExtension decodes one extension. Unrecognized URLs yield ExtUnknown.
func DecodeExtension(ext fhir.Extension) DecodedExtension {
	d := DecodedExtension{Kind: ClassifyExtension(ext.URL), URL: ext.URL}
	switch d.Kind {
	case ExtBookingDeepLink:
		d.Text = firstNonEmpty(ext.ValueURL, ext.ValueURI, ext.ValueString)
	case ExtBookingPhone:
		d.Text = strings.TrimSpace(ext.ValueString)
	case ExtSlotCapacity:
		if ext.ValueInteger != nil {
			d.Capacity = *ext.ValueInteger
		}
	case ExtAppointmentType:
		d.Text = appointmentTypeValue(ext)
	}
	return d
}

// DecodeExtensions decodes every extension in list, unknown ones included.
func DecodeExtensions(list []fhir.Extension) []DecodedExtension {
	out := make([]DecodedExtension, 0, len(list))
	for _, ext := range list {
		out = append(out, DecodeExtension(ext))
	}
	return out
}

func appointmentTypeValue(ext fhir.Extension) string {
	if ext.ValueString != "" {
		return ext.ValueString
	}
	if cc := ext.ValueCodeableConcept; cc != nil {
		if cc.Text != "" {
			return cc.Text
		}
		if len(cc.Coding) > 0 {
			return cc.Coding[0].Display
		}
	}
	return ""
}

// DeriveSlotFields computes the cached appointment type and virtual flag of
// a Slot. The first appointment-type extension with a value wins.
func DeriveSlotFields(list []fhir.Extension) (appointmentType *string, isVirtual bool) {
	for _, d := range DecodeExtensions(list) {
		switch d.Kind {
		case ExtAppointmentType:
			if appointmentType == nil && d.Text != "" {
				v := d.Text
				appointmentType = &v
			}
		case ExtVirtualService:
			isVirtual = true
		}
	}
	return appointmentType, isVirtual
}

// BookingInfo returns the first deep link and phone found in list.
func BookingInfo(list []fhir.Extension) (link, phone string) {
	for _, d := range DecodeExtensions(list) {
		switch d.Kind {
		case ExtBookingDeepLink:
			if link == "" {
				link = d.Text
			}
		case ExtBookingPhone:
			if phone == "" {
				phone = d.Text
			}
		}
	}
	return link, phone
}

// Capacity returns the slot-capacity extension value, or 0 when absent.
func Capacity(list []fhir.Extension) int {
	for _, d := range DecodeExtensions(list) {
		if d.Kind == ExtSlotCapacity {
			return d.Capacity
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
