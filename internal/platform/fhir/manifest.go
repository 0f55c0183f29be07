package fhir

import "time"

// Manifest is the bulk publication manifest served at $bulk-publish.
type Manifest struct {
	TransactionTime     time.Time        `json:"transactionTime"`
	Request             string           `json:"request"`
	RequiresAccessToken bool             `json:"requiresAccessToken"`
	Output              []ManifestOutput `json:"output"`
	Error               []ManifestOutput `json:"error"`
}

type ManifestOutput struct {
	Type      string                  `json:"type"`
	URL       string                  `json:"url"`
	Count     *int                    `json:"count,omitempty"`
	Extension *ManifestOutputExtension `json:"extension,omitempty"`
}

// ManifestOutputExtension holds per-file hints. State lists the US states a
// Slot file covers.
type ManifestOutputExtension struct {
	State []string `json:"state,omitempty"`
}
