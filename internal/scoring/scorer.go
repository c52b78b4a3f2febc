// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

// Package scoring computes the two editorial scores for an event. Plantao
// ranks what the shift desk should look at right now and decays with age;
// Oceano Azul ranks under-covered, evidence-backed material and does not
// decay. Contributions that moved a score carry a stable reason code.
package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/vigiadados/radar/internal/config"
	"github.com/vigiadados/radar/internal/database"
	"github.com/vigiadados/radar/internal/kv"
	"github.com/vigiadados/radar/internal/logging"
	"github.com/vigiadados/radar/internal/metrics"
	"github.com/vigiadados/radar/internal/models"
)

// oceanoCap bounds the Oceano Azul score.
const oceanoCap = 100.0

// NormalizeOceano maps a capped Oceano Azul score onto [0,1] for clients
// that render it as a gauge.
func NormalizeOceano(score float64) float64 {
	if score <= 0 {
		return 0
	}
	if score >= oceanoCap {
		return 1
	}
	return score / oceanoCap
}

// Assessment is the full scoring outcome for one event.
type Assessment struct {
	Score *models.EventScore
	// QuarantineRecommended is the weak-cluster heuristic: low plantao
	// despite corroboration suggests noise that clustered by accident.
	QuarantineRecommended bool
	// Viral marks extreme velocity without strong evidence or an official
	// Tier-1 presence.
	Viral bool
	// Hot is true when plantao crossed the configured threshold.
	Hot bool
}

// Scorer computes event scores. Safe for concurrent use.
type Scorer struct {
	cfg   *config.Config
	db    *database.DB
	store *kv.Store

	now func() time.Time
}

// New creates a scorer.
func New(cfg *config.Config, db *database.DB, store *kv.Store) *Scorer {
	return &Scorer{cfg: cfg, db: db, store: store, now: time.Now}
}

// Compute scores one event and persists the result.
func (s *Scorer) Compute(ctx context.Context, eventID string) (*Assessment, error) {
	event, err := s.db.ResolveCanonical(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("score %s: %w", eventID, err)
	}

	docs, sources, err := s.db.EventDocCounts(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	minTier, official, err := s.db.EventSourceTiers(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	evidence, err := s.db.EvidenceForEvent(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	velocity, err := s.store.Velocity(event.ID, now, s.cfg.Scoring.VelocityWindow)
	if err != nil {
		logging.Warn().Err(err).Str("event_id", event.ID).Msg("Velocity read failed")
	}

	in := inputs{
		Docs:      docs,
		Sources:   sources,
		MinTier:   minTier,
		Official:  official,
		Evidence:  evidence,
		Velocity:  float64(velocity),
		AgeHours:  now.Sub(event.FirstSeenAt).Hours(),
		HalfLifeH: s.cfg.Scoring.DecayHalfLife.Hours(),
	}

	plantao, plantaoReasons := plantaoScore(in)
	oceano, oceanoReasons := oceanoScore(in)

	score := &models.EventScore{
		EventID:         event.ID,
		ScorePlantao:    plantao,
		ScoreOceanoAzul: oceano,
		Reasons:         append(plantaoReasons, oceanoReasons...),
		ComputedAt:      now,
	}
	if err := s.db.UpsertEventScore(ctx, score); err != nil {
		return nil, err
	}

	metrics.EventScoresObserved.WithLabelValues("plantao").Observe(plantao)
	metrics.EventScoresObserved.WithLabelValues("oceano_azul").Observe(oceano)

	assessment := &Assessment{
		Score:                 score,
		QuarantineRecommended: plantao < 20 && sources >= 2,
		Viral:                 s.isViral(in),
		Hot:                   plantao >= s.cfg.Scoring.HotThreshold,
	}
	if assessment.Viral {
		metrics.UnverifiedViralTotal.Inc()
	}
	return assessment, nil
}

type inputs struct {
	Docs      int
	Sources   int
	MinTier   int
	Official  bool
	Evidence  *models.EvidenceFeatures
	Velocity  float64
	AgeHours  float64
	HalfLifeH float64
}

// plantaoScore is the shift-desk ranking: recency-decayed urgency built
// from tier weight, velocity and source diversity. Reasons are emitted only
// for the contributions that actually moved the ranking.
func plantaoScore(in inputs) (float64, []models.ReasonContribution) {
	var reasons []models.ReasonContribution
	add := func(code string, w float64) {
		reasons = append(reasons, models.ReasonContribution{Code: code, Weight: round2(w)})
	}

	tierWeight := float64(4-clampTier(in.MinTier)) * 2.0
	velocityBoost := math.Log1p(in.Velocity) * 5.0
	diversity := math.Sqrt(float64(in.Sources)) * 3.0
	raw := 10.0 + tierWeight + velocityBoost + diversity

	decay := 1.0
	if in.HalfLifeH > 0 && in.AgeHours > 0 {
		decay = math.Exp(-in.AgeHours / in.HalfLifeH)
	}

	if in.Velocity > 5 {
		add(ReasonPlantaoVelocitySpike, velocityBoost)
	}
	if clampTier(in.MinTier) == 1 {
		add(ReasonPlantaoTierWeight, tierWeight)
	}
	if in.Sources > 2 {
		add(ReasonPlantaoDiversity, diversity)
	}
	if decay < 0.8 {
		add(ReasonPlantaoDecay, decay)
	}

	score := raw * decay
	if score < 0 {
		score = 0
	}
	return round2(score), reasons
}

// oceanoScore is the under-covered opportunity ranking: official material
// with documents behind it that the big outlets have not touched. No time
// decay; an exclusive stays an exclusive.
func oceanoScore(in inputs) (float64, []models.ReasonContribution) {
	var reasons []models.ReasonContribution
	add := func(code string, w float64) {
		reasons = append(reasons, models.ReasonContribution{Code: code, Weight: round2(w)})
	}

	base := 5.0
	official := 0.0
	if in.Official || in.Evidence.HasOfficialDomain {
		official = 5.0
		add(ReasonOceanoOfficialSource, official)
	}

	// Coverage lag: how long Tier-1 outlets have left the material alone.
	// Once a Tier-1 source is on the event the window is closed.
	hasTier1 := in.MinTier == 1
	lag := 0.0
	if !hasTier1 {
		lag = math.Min(20.0, math.Max(0, in.AgeHours*60)/6.0)
		add(ReasonOceanoCoverageLag, lag)
	}

	pdf := 0.0
	if in.Evidence.HasPDF {
		pdf = 4.0
		add(ReasonOceanoEvidencePDF, pdf)
	}

	multiplier := 1.0 + in.Evidence.EvidenceScore/5.0
	if in.Evidence.EvidenceScore > 3.0 {
		add(ReasonOceanoEvidenceStrong, multiplier)
	}

	// Strong documentary evidence softens the trust penalty: the paper
	// trail vouches for the material even when the source cannot.
	penaltyFactor := 0.6
	strongEvidence := in.Evidence.EvidenceScore >= 3.0
	if strongEvidence {
		penaltyFactor = 0.25
	}
	penalty := trustPenalty(in) * penaltyFactor
	if penalty > 0 && strongEvidence {
		add(ReasonOceanoTrustPenaltyReduced, -penalty)
	}

	score := (base+official+lag+pdf)*multiplier - penalty
	if score < 0 {
		score = 0
	}
	if score > oceanoCap {
		score = oceanoCap
	}
	return round2(score), reasons
}

// trustPenalty discounts low-tier, unofficial sourcing.
func trustPenalty(in inputs) float64 {
	if in.Official {
		return 0
	}
	if clampTier(in.MinTier) == 3 {
		return 2.0
	}
	return 0
}

// isViral applies the extreme-velocity flag rule. Strong evidence or an
// official Tier-1 presence disarms it.
func (s *Scorer) isViral(in inputs) bool {
	if in.Velocity <= s.cfg.Scoring.ViralVelocity {
		return false
	}
	if in.Sources < s.cfg.Scoring.ViralMinDiversity {
		return false
	}
	if in.Evidence.EvidenceScore >= 3.0 {
		return false
	}
	if in.Official && in.MinTier == 1 {
		return false
	}
	return true
}

// clampTier tolerates legacy source rows outside the 1..3 contract.
func clampTier(t int) int {
	if t < 1 {
		return 1
	}
	if t > 3 {
		return 3
	}
	return t
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
