// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigiadados/radar/internal/config"
	"github.com/vigiadados/radar/internal/database"
	"github.com/vigiadados/radar/internal/kv"
	"github.com/vigiadados/radar/internal/models"
)

func testScorer(t *testing.T) (*Scorer, *database.DB, *kv.Store) {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Path: "", MaxMemory: "512MB", Threads: 2, MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := kv.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{Scoring: config.ScoringConfig{
		HotThreshold:      55,
		DecayHalfLife:     6 * time.Hour,
		VelocityWindow:    time.Hour,
		ViralVelocity:     50,
		ViralMinDiversity: 3,
	}}
	return New(cfg, db, store), db, store
}

func seedScorableEvent(t *testing.T, db *database.DB, tier int, official bool, sources int) string {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	eventID := uuid.NewString()
	require.NoError(t, db.InsertEvent(ctx, &models.Event{
		ID: eventID, Status: models.StatusNew, OriginPool: models.FastPool,
		Summary: "seed", FirstSeenAt: now, LastSeenAt: now, UpdatedAt: now,
	}))

	for i := 0; i < sources; i++ {
		sourceID := uuid.NewString()
		require.NoError(t, db.UpsertSource(ctx, &models.Source{
			ID: sourceID, Domain: sourceID + ".example.br", Tier: tier,
			IsOfficial: official, Lang: "pt-BR", Enabled: true, CreatedAt: now,
		}))
		doc := &models.Document{
			ID: uuid.NewString(), SourceID: sourceID,
			URL: "https://" + sourceID + ".example.br/x", Version: 1,
			ContentHash: uuid.NewString(), CleanText: "corpo da materia", CreatedAt: now,
		}
		require.NoError(t, db.InsertDocument(ctx, doc))
		require.NoError(t, db.LinkDoc(ctx, &models.EventDoc{
			EventID: eventID, DocID: doc.ID, SourceID: sourceID, SeenAt: now, IsPrimary: i == 0,
		}))
	}
	return eventID
}

func TestComputePersistsScore(t *testing.T) {
	s, db, _ := testScorer(t)
	ctx := context.Background()

	eventID := seedScorableEvent(t, db, 1, true, 2)

	got, err := s.Compute(ctx, eventID)
	require.NoError(t, err)
	assert.Positive(t, got.Score.ScorePlantao)
	assert.Positive(t, got.Score.ScoreOceanoAzul)
	assert.False(t, got.Viral)
	assert.False(t, got.QuarantineRecommended)

	stored, err := db.GetEventScore(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, got.Score.ScorePlantao, stored.ScorePlantao)

	// The mirror on the event row feeds the ranked feed.
	event, err := db.GetEvent(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, got.Score.ScorePlantao, event.ScorePlantao)
}

func TestComputeQuarantineRecommendation(t *testing.T) {
	s, db, _ := testScorer(t)
	ctx := context.Background()

	// Two low-tier unofficial sources, no evidence, no velocity: weak
	// cluster with corroboration.
	eventID := seedScorableEvent(t, db, 4, false, 2)

	got, err := s.Compute(ctx, eventID)
	require.NoError(t, err)
	assert.Less(t, got.Score.ScorePlantao, 20.0)
	assert.True(t, got.QuarantineRecommended)
}

func TestComputeViralFlag(t *testing.T) {
	s, db, store := testScorer(t)
	ctx := context.Background()

	eventID := seedScorableEvent(t, db, 3, false, 3)
	for i := 0; i < 60; i++ {
		require.NoError(t, store.BumpVelocity(eventID, time.Now().UTC(), time.Hour))
	}

	got, err := s.Compute(ctx, eventID)
	require.NoError(t, err)
	assert.True(t, got.Viral)
}

func TestViralDisarmedByEvidence(t *testing.T) {
	s, _, _ := testScorer(t)

	in := inputs{Velocity: 100, Sources: 5, MinTier: 3, Evidence: &models.EvidenceFeatures{EvidenceScore: 4.0}}
	assert.False(t, s.isViral(in))

	in.Evidence = &models.EvidenceFeatures{}
	assert.True(t, s.isViral(in))

	// Official Tier-1 presence also disarms.
	in.Official = true
	in.MinTier = 1
	assert.False(t, s.isViral(in))
}

func TestPlantaoMonotoneInSources(t *testing.T) {
	base := inputs{Sources: 1, MinTier: 2, Evidence: &models.EvidenceFeatures{}}
	more := base
	more.Sources = 4

	lo, _ := plantaoScore(base)
	hi, _ := plantaoScore(more)
	assert.Greater(t, hi, lo)
}

func TestPlantaoMonotoneInVelocity(t *testing.T) {
	base := inputs{Sources: 1, MinTier: 2, Evidence: &models.EvidenceFeatures{}}
	fast := base
	fast.Velocity = 30

	lo, _ := plantaoScore(base)
	hi, _ := plantaoScore(fast)
	assert.Greater(t, hi, lo)
}

func TestPlantaoDecay(t *testing.T) {
	fresh := inputs{Sources: 2, MinTier: 1, Evidence: &models.EvidenceFeatures{}, HalfLifeH: 6}
	stale := fresh
	stale.AgeHours = 24

	f, _ := plantaoScore(fresh)
	st, _ := plantaoScore(stale)
	assert.Greater(t, f, st)
	assert.Positive(t, st)
}

func TestPlantaoTierBoost(t *testing.T) {
	t1 := inputs{Sources: 1, MinTier: 1, Evidence: &models.EvidenceFeatures{}}
	t3 := t1
	t3.MinTier = 3

	hi, _ := plantaoScore(t1)
	lo, _ := plantaoScore(t3)
	assert.Greater(t, hi, lo)
}

func TestPlantaoReasonsFollowThresholds(t *testing.T) {
	quiet := inputs{Sources: 1, MinTier: 2, Evidence: &models.EvidenceFeatures{}}
	_, reasons := plantaoScore(quiet)
	assert.Empty(t, reasons, "nothing crossed a reason threshold")

	loud := inputs{Sources: 4, MinTier: 1, Velocity: 12,
		Evidence: &models.EvidenceFeatures{}, AgeHours: 12, HalfLifeH: 6}
	_, reasons = plantaoScore(loud)
	codes := reasonCodes(reasons)
	assert.Contains(t, codes, ReasonPlantaoVelocitySpike)
	assert.Contains(t, codes, ReasonPlantaoTierWeight)
	assert.Contains(t, codes, ReasonPlantaoDiversity)
	assert.Contains(t, codes, ReasonPlantaoDecay)
}

func TestOceanoRewardsExclusives(t *testing.T) {
	// Two hours without a Tier-1 pickup is the opportunity; the same event
	// already covered by a Tier-1 outlet is not.
	exclusive := inputs{Sources: 2, MinTier: 2, Official: true, AgeHours: 2,
		Evidence: &models.EvidenceFeatures{EvidenceScore: 4, HasPDF: true}}
	covered := exclusive
	covered.MinTier = 1

	hi, reasons := oceanoScore(exclusive)
	lo, coveredReasons := oceanoScore(covered)
	assert.Greater(t, hi, lo)

	codes := reasonCodes(reasons)
	assert.Contains(t, codes, ReasonOceanoOfficialSource)
	assert.Contains(t, codes, ReasonOceanoCoverageLag)
	assert.Contains(t, codes, ReasonOceanoEvidencePDF)
	assert.NotContains(t, reasonCodes(coveredReasons), ReasonOceanoCoverageLag)
}

func TestOceanoCoverageLagBounded(t *testing.T) {
	in := inputs{Sources: 1, MinTier: 2, AgeHours: 48, Evidence: &models.EvidenceFeatures{}}
	_, reasons := oceanoScore(in)
	for _, r := range reasons {
		if r.Code == ReasonOceanoCoverageLag {
			assert.Equal(t, 20.0, r.Weight, "lag boost saturates")
			return
		}
	}
	t.Fatal("coverage lag reason missing")
}

func TestOceanoPenaltyDampedByEvidence(t *testing.T) {
	weak := inputs{Sources: 1, MinTier: 3, Evidence: &models.EvidenceFeatures{EvidenceScore: 1}}
	documented := weak
	documented.Evidence = &models.EvidenceFeatures{EvidenceScore: 3}

	_, weakReasons := oceanoScore(weak)
	_, docReasons := oceanoScore(documented)
	assert.NotContains(t, reasonCodes(weakReasons), ReasonOceanoTrustPenaltyReduced)

	var reduced float64
	for _, r := range docReasons {
		if r.Code == ReasonOceanoTrustPenaltyReduced {
			reduced = -r.Weight
		}
	}
	assert.InDelta(t, 0.5, reduced, 0.001, "penalty cut to a quarter by the paper trail")
}

func reasonCodes(reasons []models.ReasonContribution) []string {
	codes := make([]string, 0, len(reasons))
	for _, r := range reasons {
		codes = append(codes, r.Code)
	}
	return codes
}

func TestOceanoCap(t *testing.T) {
	in := inputs{Sources: 1, MinTier: 2, Official: true, AgeHours: 72,
		Evidence: &models.EvidenceFeatures{EvidenceScore: 15, HasPDF: true, HasOfficialDomain: true}}
	score, _ := oceanoScore(in)
	assert.Equal(t, oceanoCap, score)
}

func TestPlantaoNeverNegative(t *testing.T) {
	in := inputs{Sources: 0, MinTier: 4, Evidence: &models.EvidenceFeatures{}, AgeHours: 200, HalfLifeH: 6}
	score, _ := plantaoScore(in)
	assert.GreaterOrEqual(t, score, 0.0)
}

// Downstream consumers key on reason codes, so the registry is append-only.
// If this test fails, a code was renamed, removed or reordered.
func TestReasonRegistryStable(t *testing.T) {
	want := []string{
		"PLANTAO_VELOCITY_SPIKE",
		"PLANTAO_TIER_WEIGHT",
		"PLANTAO_DIVERSITY",
		"PLANTAO_DECAY",
		"OCEANO_EVIDENCE_STRONG",
		"OCEANO_COVERAGE_LAG",
		"OCEANO_EVIDENCE_PDF",
		"OCEANO_TRUST_PENALTY_REDUCED",
		"OCEANO_OFFICIAL_SOURCE",
	}
	require.GreaterOrEqual(t, len(ReasonRegistry), len(want))
	assert.Equal(t, want, ReasonRegistry[:len(want)])
}
