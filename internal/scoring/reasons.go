// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package scoring

// Reason codes are a stable, append-only vocabulary. Downstream consumers
// key on them; renaming or removing a code is a breaking change. New codes
// go at the end of the list.
const (
	ReasonPlantaoVelocitySpike = "PLANTAO_VELOCITY_SPIKE"
	ReasonPlantaoTierWeight    = "PLANTAO_TIER_WEIGHT"
	ReasonPlantaoDiversity     = "PLANTAO_DIVERSITY"
	ReasonPlantaoDecay         = "PLANTAO_DECAY"

	ReasonOceanoEvidenceStrong      = "OCEANO_EVIDENCE_STRONG"
	ReasonOceanoCoverageLag         = "OCEANO_COVERAGE_LAG"
	ReasonOceanoEvidencePDF         = "OCEANO_EVIDENCE_PDF"
	ReasonOceanoTrustPenaltyReduced = "OCEANO_TRUST_PENALTY_REDUCED"
	ReasonOceanoOfficialSource      = "OCEANO_OFFICIAL_SOURCE"
)

// ReasonRegistry lists every reason code ever emitted, in order of
// introduction.
var ReasonRegistry = []string{
	ReasonPlantaoVelocitySpike,
	ReasonPlantaoTierWeight,
	ReasonPlantaoDiversity,
	ReasonPlantaoDecay,
	ReasonOceanoEvidenceStrong,
	ReasonOceanoCoverageLag,
	ReasonOceanoEvidencePDF,
	ReasonOceanoTrustPenaltyReduced,
	ReasonOceanoOfficialSource,
}
