package enrichment

import (
	"encoding/json"
	"strings"

	"github.com/smartsched/slotfinder/internal/domain/directory"
	"github.com/smartsched/slotfinder/internal/platform/fhir"
)

// NPISystem is the identifier system of the US National Provider Identifier.
const NPISystem = "http://hl7.org/fhir/sid/us-npi"

// FallbackInsurance is used when a directory entry lists no payers. It is a
// placeholder, not a signal about the practitioner.
var FallbackInsurance = []string{"Aetna", "Blue Cross Blue Shield", "Cigna", "Medicare", "UnitedHealthcare"}

// DefaultLanguages applies when an entry has no communication list.
var DefaultLanguages = []string{"English"}

var (
	certificationKeywords = []string{"board", "certif"}
	educationKeywords     = []string{"degree", "university", "school", "college", "residency", "fellowship", "medical", "medicine", "doctor of"}
	degreeTokens          = map[string]bool{"md": true, "do": true, "phd": true, "mbbs": true, "dds": true, "dmd": true, "np": true, "pa": true}
)

// Candidate is what a directory entry contributes to a PractitionerRole.
type Candidate struct {
	NPI            string
	FullName       string
	Insurance      []string
	Languages      []string
	Education      []directory.Qualification
	Certifications []directory.Qualification
	Affiliations   []string
	Raw            json.RawMessage
}

// Enrichment converts the candidate into the overlay stored on a role.
func (c Candidate) Enrichment(source string) *directory.Enrichment {
	return &directory.Enrichment{
		NPI:                  c.NPI,
		InsuranceAccepted:    c.Insurance,
		LanguagesSpoken:      c.Languages,
		Education:            c.Education,
		BoardCertifications:  c.Certifications,
		HospitalAffiliations: c.Affiliations,
		Raw:                  c.Raw,
		Source:               source,
	}
}

// Extract reads a directory entry. ok is false when the entry carries no NPI,
// since it cannot then be used with confidence.
func Extract(e Entry) (Candidate, bool) {
	p := e.Practitioner
	npi := findNPI(p.Identifier)
	if npi == "" {
		return Candidate{}, false
	}

	c := Candidate{
		NPI:          npi,
		FullName:     FormatName(p.Name),
		Insurance:    extensionValues(p.Extension, "insurance"),
		Affiliations: extensionValues(p.Extension, "affiliation"),
		Raw:          e.Raw,
	}
	if len(c.Insurance) == 0 {
		c.Insurance = append([]string(nil), FallbackInsurance...)
	}
	for _, cc := range p.Communication {
		if l := cc.Label(); l != "" {
			c.Languages = appendUnique(c.Languages, l)
		}
	}
	if len(c.Languages) == 0 {
		c.Languages = append([]string(nil), DefaultLanguages...)
	}

	for _, q := range p.Qualification {
		name := q.Code.Label()
		if name == "" {
			continue
		}
		qual := directory.Qualification{Name: name}
		if q.Issuer != nil {
			qual.Issuer = q.Issuer.Display
		}
		switch classifyQualification(name) {
		case qualCertification:
			c.Certifications = append(c.Certifications, qual)
		case qualEducation:
			c.Education = append(c.Education, qual)
		}
	}
	return c, true
}

func findNPI(ids []fhir.Identifier) string {
	for _, id := range ids {
		if id.System == NPISystem && id.Value != "" {
			return id.Value
		}
	}
	for _, id := range ids {
		if id.Value == "" || id.Type == nil {
			continue
		}
		if strings.EqualFold(id.Type.Text, "NPI") {
			return id.Value
		}
		for _, c := range id.Type.Coding {
			if strings.EqualFold(c.Code, "NPI") {
				return id.Value
			}
		}
	}
	return ""
}

// FormatName renders the official name, or the first one, as display text.
func FormatName(names []fhir.HumanName) string {
	if len(names) == 0 {
		return ""
	}
	n := names[0]
	for _, candidate := range names {
		if candidate.Use == "official" {
			n = candidate
			break
		}
	}
	if n.Text != "" {
		return n.Text
	}
	var parts []string
	parts = append(parts, n.Prefix...)
	parts = append(parts, n.Given...)
	if n.Family != "" {
		parts = append(parts, n.Family)
	}
	parts = append(parts, n.Suffix...)
	return strings.Join(parts, " ")
}

type qualKind int

const (
	qualOther qualKind = iota
	qualEducation
	qualCertification
)

func classifyQualification(name string) qualKind {
	lower := strings.ToLower(name)
	for _, kw := range certificationKeywords {
		if strings.Contains(lower, kw) {
			return qualCertification
		}
	}
	for _, kw := range educationKeywords {
		if strings.Contains(lower, kw) {
			return qualEducation
		}
	}
	for _, tok := range strings.FieldsFunc(lower, isSeparator) {
		if degreeTokens[tok] {
			return qualEducation
		}
	}
	return qualOther
}

// extensionValues collects the display values of extensions whose URL
// mentions marker, including nested ones.
func extensionValues(exts []fhir.Extension, marker string) []string {
	var out []string
	for _, ext := range exts {
		if !strings.Contains(strings.ToLower(ext.URL), marker) {
			continue
		}
		if v := extensionText(ext); v != "" {
			out = appendUnique(out, v)
		}
		for _, nested := range ext.Extension {
			if v := extensionText(nested); v != "" {
				out = appendUnique(out, v)
			}
		}
	}
	return out
}

func extensionText(ext fhir.Extension) string {
	switch {
	case ext.ValueString != "":
		return ext.ValueString
	case ext.ValueCodeableConcept != nil:
		return ext.ValueCodeableConcept.Label()
	case ext.ValueCoding != nil:
		if ext.ValueCoding.Display != "" {
			return ext.ValueCoding.Display
		}
		return ext.ValueCoding.Code
	case ext.ValueReference != nil:
		return ext.ValueReference.Display
	}
	return ""
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if strings.EqualFold(existing, v) {
			return list
		}
	}
	return append(list, v)
}
