// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package anchors

import (
	"strings"

	"github.com/vigiadados/radar/internal/models"
)

// evidenceWeights assigns each anchor type its contribution to the evidence
// score. All weights are positive, so the score is monotone: adding an
// anchor never lowers it.
var evidenceWeights = map[models.AnchorType]float64{
	models.AnchorCNJ:     2.0,
	models.AnchorTCU:     2.0,
	models.AnchorCNPJ:    1.5,
	models.AnchorPL:      1.5,
	models.AnchorSEI:     1.2,
	models.AnchorCPF:     1.2,
	models.AnchorPDFLink: 1.2,
	models.AnchorACT:     1.0,
	models.AnchorGovLink: 0.8,
	models.AnchorMoney:   0.5,
	models.AnchorDate:    0.2,
	models.AnchorTime:    0.2,
}

// evidenceCap bounds the score so one anchor-stuffed gazette page does not
// dominate ranking.
const evidenceCap = 15.0

// EvidenceScore sums per-unique-value weights, capped at evidenceCap.
func EvidenceScore(matches []Match) float64 {
	score := 0.0
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		key := string(m.Type) + "\x00" + m.Value
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if w, ok := evidenceWeights[m.Type]; ok {
			score += w
		} else {
			score += 0.1
		}
	}
	if score > evidenceCap {
		return evidenceCap
	}
	return score
}

// Features summarises a document's deterministic evidence.
func Features(docID string, matches []Match, cleanText string, officialSource bool) models.EvidenceFeatures {
	moneyCount := 0
	hasPDF := false
	hasGov := officialSource
	for _, m := range matches {
		switch m.Type {
		case models.AnchorMoney:
			moneyCount++
		case models.AnchorPDFLink:
			hasPDF = true
		case models.AnchorGovLink:
			hasGov = true
		}
	}
	return models.EvidenceFeatures{
		DocID:             docID,
		EvidenceScore:     EvidenceScore(matches),
		HasPDF:            hasPDF,
		HasOfficialDomain: hasGov,
		AnchorCount:       len(matches),
		MoneyCount:        moneyCount,
		HasTableLike:      looksTabular(cleanText),
	}
}

// looksTabular is a layout heuristic: three or more lines with repeated
// column separators suggest a table (gazette annexes, budget tables).
func looksTabular(text string) bool {
	rows := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.Count(line, "|") >= 2 || strings.Count(line, "\t") >= 2 {
			rows++
			if rows >= 3 {
				return true
			}
		}
	}
	return false
}
