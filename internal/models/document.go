// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package models

import "time"

// AnchorType classifies a deterministic extraction from document text.
type AnchorType string

const (
	AnchorCNPJ    AnchorType = "CNPJ"
	AnchorCPF     AnchorType = "CPF"
	AnchorCNJ     AnchorType = "CNJ"
	AnchorSEI     AnchorType = "SEI"
	AnchorTCU     AnchorType = "TCU"
	AnchorPL      AnchorType = "PL"
	AnchorACT     AnchorType = "ACT"
	AnchorMoney   AnchorType = "MONEY"
	AnchorDate    AnchorType = "DATE"
	AnchorTime    AnchorType = "TIME"
	AnchorGovLink AnchorType = "GOV_LINK"
	AnchorPDFLink AnchorType = "PDF_LINK"
)

// StrongAnchorTypes are the anchor types that justify hard merges and
// deferred canonicalisation. Matching is always on the (type, value) pair.
var StrongAnchorTypes = []AnchorType{AnchorCNPJ, AnchorCNJ, AnchorPL, AnchorSEI, AnchorTCU}

// IsStrong reports whether t participates in hard-merge decisions.
func (t AnchorType) IsStrong() bool {
	for _, s := range StrongAnchorTypes {
		if t == s {
			return true
		}
	}
	return false
}

// Document is the canonical extracted content for a URL, versioned by
// (url, version). A new version exists only when the per-item content hash
// changed against the latest stored version.
type Document struct {
	ID           string     `json:"id"`
	SourceID     string     `json:"source_id"`
	URL          string     `json:"url"`
	Version      int        `json:"version"`
	ContentHash  string     `json:"content_hash"`
	Title        string     `json:"title,omitempty"`
	CleanText    string     `json:"clean_text"`
	Lang         string     `json:"lang,omitempty"`
	CanonicalURL string     `json:"canonical_url,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	ModifiedAt   *time.Time `json:"modified_at,omitempty"`
	SnapshotHash string     `json:"snapshot_hash,omitempty"`
	SimHash      uint64     `json:"simhash"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Anchor is a deterministic fact extracted from a Document.
type Anchor struct {
	ID         string     `json:"id"`
	DocID      string     `json:"doc_id"`
	Type       AnchorType `json:"type"`
	Value      string     `json:"value"`
	Span       string     `json:"span,omitempty"`
	Confidence float64    `json:"confidence"`
}

// EvidenceFeatures summarises the deterministic evidence of one Document.
// EvidenceScore is monotone in strong-anchor count.
type EvidenceFeatures struct {
	DocID             string  `json:"doc_id"`
	EvidenceScore     float64 `json:"evidence_score"`
	HasPDF            bool    `json:"has_pdf"`
	HasOfficialDomain bool    `json:"has_official_domain"`
	AnchorCount       int     `json:"anchor_count"`
	MoneyCount        int     `json:"money_count"`
	HasTableLike      bool    `json:"has_table_like"`
}

// EntityMention records one named-entity occurrence in a Document.
type EntityMention struct {
	DocID string `json:"doc_id"`
	Key   string `json:"key"`
	Label string `json:"label"`
	Span  string `json:"span,omitempty"`
}
