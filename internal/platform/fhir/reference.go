package fhir

import "strings"

// FormatReference builds a relative literal reference such as "Schedule/abc".
func FormatReference(resourceType, id string) string {
	return resourceType + "/" + id
}

// ParseReference splits a literal reference into its type and id. Relative
// ("Slot/1"), absolute ("https://host/fhir/Slot/1") and versioned
// ("Slot/1/_history/2") forms are accepted. Contained ("#x") and empty
// references are rejected.
func ParseReference(ref string) (resourceType, id string, ok bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", "", false
	}
	if i := strings.Index(ref, "/_history/"); i >= 0 {
		ref = ref[:i]
	}
	ref = strings.TrimRight(ref, "/")

	parts := strings.Split(ref, "/")
	if len(parts) < 2 {
		return "", "", false
	}
	resourceType = parts[len(parts)-2]
	id = parts[len(parts)-1]
	if resourceType == "" || id == "" {
		return "", "", false
	}
	return resourceType, id, true
}

// ReferenceID returns the id of ref when it points at wantType.
func ReferenceID(ref, wantType string) (string, bool) {
	rt, id, ok := ParseReference(ref)
	if !ok || rt != wantType {
		return "", false
	}
	return id, true
}
