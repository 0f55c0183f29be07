package enrichment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/smartsched/slotfinder/internal/domain/directory"
	"github.com/smartsched/slotfinder/internal/domain/publisher"
)

type Config struct {
	PageSize int
	// Source names the directory on stored enrichments.
	Source string
	// DemoMode seeds one role with a fixed payload when a run matches nothing.
	DemoMode bool
}

// Report summarizes one enrichment run.
type Report struct {
	Fetched int    `json:"fetched"`
	Skipped int    `json:"skipped"`
	Matched int    `json:"matched"`
	Seeded  bool   `json:"seeded,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Service matches directory entries onto un-enriched PractitionerRoles. A
// role that already has an NPI is never changed.
type Service struct {
	roles     directory.PractitionerRoleRepository
	directory Directory
	matcher   Matcher
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService builds the service. dir may be nil, in which case runs only do
// the demo seeding (when enabled).
func NewService(roles directory.PractitionerRoleRepository, dir Directory, matcher Matcher, cfg Config, logger zerolog.Logger) *Service {
	if matcher == nil {
		matcher = NewTokenMatcher()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	return &Service{
		roles:     roles,
		directory: dir,
		matcher:   matcher,
		cfg:       cfg,
		logger:    logger.With().Str("component", "enrichment").Logger(),
		now:       time.Now,
	}
}

func (s *Service) Name() string { return "enrichment" }

// AfterSync runs enrichment at the end of a sync cycle.
func (s *Service) AfterSync(ctx context.Context, _ *publisher.SyncResult) interface{} {
	return s.Run(ctx)
}

var _ publisher.Hook = (*Service)(nil)

func (s *Service) Run(ctx context.Context) Report {
	var rep Report

	roles, err := s.roles.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("list practitioner roles")
		rep.Error = err.Error()
		return rep
	}
	pending := make([]*directory.PractitionerRole, 0, len(roles))
	for _, r := range roles {
		if r.NPI() == "" {
			pending = append(pending, r)
		}
	}

	if s.directory != nil && len(pending) > 0 {
		entries, err := s.directory.FetchPractitioners(ctx, s.cfg.PageSize)
		if err != nil {
			s.logger.Warn().Err(err).Msg("practitioner directory unavailable")
			rep.Error = err.Error()
		}
		rep.Fetched = len(entries)

		for _, e := range entries {
			if len(pending) == 0 {
				break
			}
			cand, ok := Extract(e)
			if !ok {
				rep.Skipped++
				continue
			}
			idx := s.matcher.Match(cand.FullName, pending)
			if idx < 0 {
				continue
			}
			role := pending[idx]
			enr := cand.Enrichment(s.cfg.Source)
			enr.EnrichedAt = s.now().UTC()
			applied, err := s.roles.ApplyEnrichment(ctx, role.ID, enr)
			if err != nil {
				s.logger.Warn().Err(err).Str("role_id", role.ID).Msg("apply enrichment")
				continue
			}
			pending = append(pending[:idx], pending[idx+1:]...)
			if applied {
				rep.Matched++
				s.logger.Debug().Str("role_id", role.ID).Str("npi", cand.NPI).Str("name", cand.FullName).Msg("role enriched")
			}
		}
	}

	if rep.Matched == 0 && s.cfg.DemoMode && len(pending) > 0 {
		enr := demoEnrichment()
		enr.EnrichedAt = s.now().UTC()
		applied, err := s.roles.ApplyEnrichment(ctx, pending[0].ID, enr)
		if err != nil {
			s.logger.Warn().Err(err).Str("role_id", pending[0].ID).Msg("seed demo enrichment")
		}
		rep.Seeded = applied
	}

	s.logger.Info().
		Int("fetched", rep.Fetched).
		Int("skipped", rep.Skipped).
		Int("matched", rep.Matched).
		Bool("seeded", rep.Seeded).
		Msg("enrichment finished")
	return rep
}

// demoEnrichment gives a demo without directory access something to show.
func demoEnrichment() *directory.Enrichment {
	raw, _ := json.Marshal(map[string]interface{}{"demo": true})
	return &directory.Enrichment{
		NPI:                  "1234567893",
		InsuranceAccepted:    []string{"Aetna", "Blue Cross Blue Shield", "Medicare"},
		LanguagesSpoken:      []string{"English", "Spanish"},
		Education:            []directory.Qualification{{Name: "MD", Issuer: "Harvard Medical School"}},
		BoardCertifications:  []directory.Qualification{{Name: "Board Certified in Dermatology", Issuer: "American Board of Dermatology"}},
		HospitalAffiliations: []string{"Massachusetts General Hospital"},
		Raw:                  raw,
		Source:               "demo",
	}
}
