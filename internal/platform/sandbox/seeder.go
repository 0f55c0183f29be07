// Package sandbox is a synthetic scheduling publisher for demos and local
// development. It generates reproducible Locations, PractitionerRoles,
// Schedules and Slots, serves them over the same $bulk-publish contract as a
// real publisher, and offers a matching practitioner directory for
// enrichment.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/smartsched/slotfinder/internal/domain/directory"
	"github.com/smartsched/slotfinder/internal/domain/republish"
	"github.com/smartsched/slotfinder/internal/platform/fhir"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls the volume and shape of generated data.
type SeedConfig struct {
	LocationCount            int `json:"locationCount"`
	PractitionersPerLocation int `json:"practitionersPerLocation"`
	Days                     int `json:"days"`
	SlotsPerDay              int `json:"slotsPerDay"`
	// DirectoryMissRate is the percentage of directory entries generated
	// without an NPI.
	DirectoryMissRate int       `json:"directoryMissRate"`
	Seed              uint64    `json:"seed"`
	Start             time.Time `json:"start"`
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		LocationCount:            4,
		PractitionersPerLocation: 3,
		Days:                     14,
		SlotsPerDay:              6,
		DirectoryMissRate:        20,
		Seed:                     42,
	}
}

func (c *SeedConfig) applyDefaults() {
	d := DefaultSeedConfig()
	if c.LocationCount <= 0 {
		c.LocationCount = d.LocationCount
	}
	if c.PractitionersPerLocation <= 0 {
		c.PractitionersPerLocation = d.PractitionersPerLocation
	}
	if c.Days <= 0 {
		c.Days = d.Days
	}
	if c.SlotsPerDay <= 0 {
		c.SlotsPerDay = d.SlotsPerDay
	}
	if c.SlotsPerDay > 16 {
		c.SlotsPerDay = 16
	}
	if c.Start.IsZero() {
		c.Start = time.Now().UTC()
	}
}

// SeedResult summarizes one generation.
type SeedResult struct {
	Locations         int           `json:"locations"`
	PractitionerRoles int           `json:"practitionerRoles"`
	Schedules         int           `json:"schedules"`
	Slots             int           `json:"slots"`
	Practitioners     int           `json:"practitioners"`
	TotalResources    int           `json:"totalResources"`
	Duration          time.Duration `json:"duration"`
}

// ---------------------------------------------------------------------------
// Code pools
// ---------------------------------------------------------------------------

type codeEntry struct {
	Code    string
	Display string
}

var (
	specialties = []codeEntry{
		{"207N00000X", "Dermatology"},
		{"207RC0000X", "Cardiovascular Disease"},
		{"207Q00000X", "Family Medicine"},
		{"207X00000X", "Orthopaedic Surgery"},
		{"207RE0101X", "Endocrinology, Diabetes & Metabolism"},
		{"2084N0400X", "Neurology"},
		{"208000000X", "Pediatrics"},
		{"2084P0800X", "Psychiatry"},
	}
	appointmentTypes = []string{"New Patient", "Follow-up", "Annual Physical", "Consultation"}
	payers           = []string{"Aetna", "Blue Cross Blue Shield", "Cigna", "Humana", "Kaiser Permanente", "Medicare", "Medicaid", "UnitedHealthcare"}
	languages        = []codeEntry{{"en", "English"}, {"es", "Spanish"}, {"zh", "Chinese"}, {"vi", "Vietnamese"}, {"fr", "French"}, {"ar", "Arabic"}}
	schools          = []string{"Harvard Medical School", "Johns Hopkins School of Medicine", "Stanford University School of Medicine", "University of Michigan Medical School", "Yale School of Medicine"}
	hospitals        = []string{"Massachusetts General Hospital", "Mount Sinai Hospital", "Cleveland Clinic", "Mayo Clinic Hospital", "Northwestern Memorial Hospital"}
)

const (
	extInsurance   = "http://sandbox.slotfinder.dev/StructureDefinition/insurance-accepted"
	extAffiliation = "http://sandbox.slotfinder.dev/StructureDefinition/hospital-affiliation"
)

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

// DataGenerator produces deterministic synthetic scheduling resources.
type DataGenerator struct {
	faker   *gofakeit.Faker
	counter uint64
}

// NewDataGenerator returns a generator seeded for reproducibility. A zero
// seed picks a random one.
func NewDataGenerator(seed uint64) *DataGenerator {
	return &DataGenerator{faker: gofakeit.New(seed)}
}

func (g *DataGenerator) nextID(prefix string) string {
	g.counter++
	return fmt.Sprintf("%s-%04d", prefix, g.counter)
}

func (g *DataGenerator) percent(p int) bool {
	return g.faker.Number(1, 100) <= p
}

func (g *DataGenerator) pickCode(pool []codeEntry) codeEntry {
	return pool[g.faker.Number(0, len(pool)-1)]
}

func (g *DataGenerator) pickN(pool []string, n int) []string {
	idx := g.faker.Number(0, len(pool)-1)
	out := make([]string, 0, n)
	for i := 0; i < n && i < len(pool); i++ {
		out = append(out, pool[(idx+i)%len(pool)])
	}
	return out
}

// GenerateLocation produces a clinic with a US address.
func (g *DataGenerator) GenerateLocation() *directory.Location {
	lat, _ := g.faker.LatitudeInRange(25, 48)
	lng, _ := g.faker.LongitudeInRange(-123, -70)
	return &directory.Location{
		ID:   g.nextID("loc"),
		Name: g.faker.LastName() + " " + g.faker.RandomString([]string{"Health Center", "Medical Group", "Family Clinic", "Specialty Care"}),
		Telecom: []fhir.ContactPoint{
			{System: "phone", Value: g.faker.Phone(), Use: "work"},
		},
		Address: &fhir.Address{
			Use:        "work",
			Line:       []string{g.faker.Street()},
			City:       g.faker.City(),
			State:      g.faker.StateAbr(),
			PostalCode: g.faker.Zip(),
			Country:    "US",
		},
		Position: &fhir.Position{Latitude: lat, Longitude: lng},
	}
}

// GeneratePractitionerRole produces a role at locationID together with the
// directory entry describing the same person.
func (g *DataGenerator) GeneratePractitionerRole(locationID string, missRate int) (*directory.PractitionerRole, *fhir.Practitioner) {
	first, last := g.faker.FirstName(), g.faker.LastName()
	spec := g.pickCode(specialties)
	active := true

	role := &directory.PractitionerRole{
		ID:           g.nextID("role"),
		Active:       &active,
		Practitioner: &fhir.Reference{Display: "Dr. " + first + " " + last},
		Specialty: []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{System: "http://nucc.org/provider-taxonomy", Code: spec.Code, Display: spec.Display}},
		}},
		Location: []fhir.Reference{{Reference: fhir.FormatReference(fhir.ResourceLocation, locationID)}},
		Telecom:  []fhir.ContactPoint{{System: "phone", Value: g.faker.Phone(), Use: "work"}},
	}

	prac := &fhir.Practitioner{
		ResourceType: fhir.ResourcePractitioner,
		ID:           g.nextID("prac"),
		Name:         []fhir.HumanName{{Use: "official", Prefix: []string{"Dr."}, Given: []string{first}, Family: last, Suffix: []string{"MD"}}},
		Qualification: []fhir.PractitionerQualification{
			{Code: fhir.CodeableConcept{Text: "MD"}, Issuer: &fhir.Reference{Display: g.faker.RandomString(schools)}},
			{Code: fhir.CodeableConcept{Text: "Board Certified in " + spec.Display}},
		},
	}
	if !g.percent(missRate) {
		prac.Identifier = []fhir.Identifier{{System: "http://hl7.org/fhir/sid/us-npi", Value: g.faker.Numerify("1#########")}}
	}
	for _, lang := range []codeEntry{{"en", "English"}, g.pickCode(languages)} {
		prac.Communication = appendLanguage(prac.Communication, lang)
	}
	for _, p := range g.pickN(payers, g.faker.Number(2, 4)) {
		prac.Extension = append(prac.Extension, fhir.Extension{URL: extInsurance, ValueString: p})
	}
	prac.Extension = append(prac.Extension, fhir.Extension{
		URL:            extAffiliation,
		ValueReference: &fhir.Reference{Display: g.faker.RandomString(hospitals)},
	})
	return role, prac
}

func appendLanguage(list []fhir.CodeableConcept, lang codeEntry) []fhir.CodeableConcept {
	for _, cc := range list {
		if len(cc.Coding) > 0 && cc.Coding[0].Code == lang.Code {
			return list
		}
	}
	return append(list, fhir.CodeableConcept{
		Coding: []fhir.Coding{{System: "urn:ietf:bcp:47", Code: lang.Code, Display: lang.Display}},
	})
}

// GenerateSchedule produces a schedule for a role at a location.
func (g *DataGenerator) GenerateSchedule(roleID, locationID string, horizon fhir.Period) *directory.Schedule {
	active := true
	return &directory.Schedule{
		ID:     g.nextID("sch"),
		Active: &active,
		Actor: []fhir.Reference{
			{Reference: fhir.FormatReference(fhir.ResourcePractitionerRole, roleID)},
			{Reference: fhir.FormatReference(fhir.ResourceLocation, locationID)},
		},
		PlanningHorizon: &horizon,
	}
}

// GenerateSlot produces a 30 minute slot starting at start. Booking details
// and appointment metadata are carried as extensions.
func (g *DataGenerator) GenerateSlot(scheduleID string, start time.Time, bookingPhone string) *directory.Slot {
	id := g.nextID("slot")
	status := directory.SlotStatusFree
	if g.percent(25) {
		status = directory.SlotStatusBusy
	}

	var exts []fhir.Extension
	if g.percent(70) {
		exts = append(exts, fhir.Extension{
			URL:      directory.ExtURLBookingDeepLink,
			ValueURL: "https://book.sandbox.slotfinder.dev/slots/" + id,
		})
	}
	exts = append(exts, fhir.Extension{URL: directory.ExtURLBookingPhone, ValueString: bookingPhone})
	exts = append(exts, fhir.Extension{URL: directory.ExtURLAppointmentType, ValueString: g.faker.RandomString(appointmentTypes)})
	if g.percent(30) {
		virtual := true
		exts = append(exts, fhir.Extension{URL: directory.ExtURLVirtualService, ValueBoolean: &virtual})
	}
	if g.percent(10) {
		capacity := g.faker.Number(2, 4)
		exts = append(exts, fhir.Extension{URL: directory.ExtURLSlotCapacity, ValueInteger: &capacity})
	}

	slot := &directory.Slot{
		ID:        id,
		Schedule:  fhir.Reference{Reference: fhir.FormatReference(fhir.ResourceSchedule, scheduleID)},
		Status:    status,
		Start:     start,
		End:       start.Add(30 * time.Minute),
		Extension: exts,
	}
	slot.AppointmentType, slot.IsVirtual = directory.DeriveSlotFields(exts)
	return slot
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Seeder generates one complete publication into its own store.
type Seeder struct {
	config        SeedConfig
	generator     *DataGenerator
	store         *directory.Store
	practitioners []*fhir.Practitioner
}

// NewSeeder creates a seeder with an empty store.
func NewSeeder(config SeedConfig) *Seeder {
	config.applyDefaults()
	return &Seeder{
		config:    config,
		generator: NewDataGenerator(config.Seed),
		store:     directory.NewMemoryStore(),
	}
}

// Store returns the generated publication.
func (s *Seeder) Store() *directory.Store { return s.store }

// Practitioners returns the generated directory entries.
func (s *Seeder) Practitioners() []*fhir.Practitioner { return s.practitioners }

// Generate creates all resources according to the config.
func (s *Seeder) Generate(ctx context.Context) (*SeedResult, error) {
	began := time.Now()
	g := s.generator
	cfg := s.config
	day0 := cfg.Start.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	horizonEnd := day0.Add(time.Duration(cfg.Days) * 24 * time.Hour)
	horizon := fhir.Period{Start: &day0, End: &horizonEnd}

	batch := &directory.Batch{}
	result := &SeedResult{}
	for i := 0; i < cfg.LocationCount; i++ {
		loc := g.GenerateLocation()
		batch.Add(loc)
		result.Locations++
		phone := loc.Telecom[0].Value

		for j := 0; j < cfg.PractitionersPerLocation; j++ {
			role, prac := g.GeneratePractitionerRole(loc.ID, cfg.DirectoryMissRate)
			batch.Add(role)
			s.practitioners = append(s.practitioners, prac)
			result.PractitionerRoles++
			result.Practitioners++

			sch := g.GenerateSchedule(role.ID, loc.ID, horizon)
			batch.Add(sch)
			result.Schedules++

			for d := 0; d < cfg.Days; d++ {
				day := day0.Add(time.Duration(d) * 24 * time.Hour)
				if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
					continue
				}
				// clinic hours 09:00-17:00 in half hour steps
				first := g.faker.Number(0, 16-cfg.SlotsPerDay)
				for k := 0; k < cfg.SlotsPerDay; k++ {
					start := day.Add(9*time.Hour + time.Duration(first+k)*30*time.Minute)
					batch.Add(g.GenerateSlot(sch.ID, start, phone))
					result.Slots++
				}
			}
		}
	}

	if err := s.store.Upsert(ctx, batch); err != nil {
		return nil, fmt.Errorf("store generated resources: %w", err)
	}
	result.TotalResources = result.Locations + result.PractitionerRoles + result.Schedules + result.Slots
	result.Duration = time.Since(began)
	return result, nil
}

// DirectoryBundle returns the first count directory entries as a searchset.
func (s *Seeder) DirectoryBundle(count int) (*fhir.Bundle, error) {
	entries := s.practitioners
	if count > 0 && count < len(entries) {
		entries = entries[:count]
	}
	total := len(s.practitioners)
	bundle := &fhir.Bundle{ResourceType: "Bundle", Type: "searchset", Total: &total, Entry: make([]fhir.BundleEntry, 0, len(entries))}
	for _, p := range entries {
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode practitioner %s: %w", p.ID, err)
		}
		bundle.Entry = append(bundle.Entry, fhir.BundleEntry{FullURL: "Practitioner/" + p.ID, Resource: raw})
	}
	return bundle, nil
}

// ---------------------------------------------------------------------------
// SeedHandler
// ---------------------------------------------------------------------------

type generation struct {
	seeder  *Seeder
	publish *republish.Handler
}

// SeedHandler serves the current generation as a publisher and directory.
type SeedHandler struct {
	prefix string
	logger zerolog.Logger

	mu      sync.RWMutex
	current *generation
}

// NewSeedHandler generates an initial publication. prefix is the path the
// routes are mounted under, e.g. "/sandbox".
func NewSeedHandler(ctx context.Context, prefix string, cfg SeedConfig, logger zerolog.Logger) (*SeedHandler, error) {
	h := &SeedHandler{prefix: prefix, logger: logger.With().Str("component", "sandbox").Logger()}
	if _, err := h.reseed(ctx, cfg); err != nil {
		return nil, err
	}
	return h, nil
}

// RegisterRoutes registers the sandbox routes on g, whose prefix must match
// the one given to NewSeedHandler.
func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/$bulk-publish", h.handleManifest)
	g.GET("/data/:file", h.handleData)
	g.GET("/Practitioner", h.handleDirectory)
	g.POST("/seed", h.handleSeed)
}

func (h *SeedHandler) reseed(ctx context.Context, cfg SeedConfig) (*SeedResult, error) {
	seeder := NewSeeder(cfg)
	result, err := seeder.Generate(ctx)
	if err != nil {
		return nil, err
	}
	gen := &generation{
		seeder:  seeder,
		publish: republish.NewHandler(republish.NewBuilder(seeder.Store(), h.prefix+"/data"), h.logger),
	}
	h.mu.Lock()
	h.current = gen
	h.mu.Unlock()

	h.logger.Info().
		Int("locations", result.Locations).
		Int("practitioner_roles", result.PractitionerRoles).
		Int("slots", result.Slots).
		Uint64("seed", seeder.config.Seed).
		Msg("sandbox publication generated")
	return result, nil
}

func (h *SeedHandler) active() *generation {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

func (h *SeedHandler) handleManifest(c echo.Context) error {
	return h.active().publish.Manifest(c)
}

func (h *SeedHandler) handleData(c echo.Context) error {
	return h.active().publish.Data(c)
}

func (h *SeedHandler) handleDirectory(c echo.Context) error {
	count := 0
	if v := c.QueryParam("_count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, fhir.NewOperationOutcome("error", "invalid", "invalid _count"))
		}
		count = n
	}
	bundle, err := h.active().seeder.DirectoryBundle(count)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, bundle)
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	cfg := DefaultSeedConfig()
	if err := c.Bind(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	result, err := h.reseed(c.Request().Context(), cfg)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}
