// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

// Package anchors implements the deterministic extraction pack: typed,
// normalised facts (tax ids, judicial ids, administrative acts, monetary
// values, dates, official links) pulled from clean document text with plain
// regular expressions. No model calls, no heuristics beyond the pack.
package anchors

import (
	"regexp"
	"unicode/utf8"

	"github.com/vigiadados/radar/internal/models"
)

// Match is one extracted anchor before persistence.
type Match struct {
	Type       models.AnchorType
	Value      string
	Span       string
	Confidence float64
}

// structural patterns, applied in a fixed order so output is deterministic.
var structuralPatterns = []struct {
	typ models.AnchorType
	re  *regexp.Regexp
	// masked lowers ambiguity: digits-only tax ids collide with phone numbers
	// and protocol counters, so they carry lower confidence.
	confidence func(raw string) float64
}{
	{models.AnchorCNPJ, regexp.MustCompile(`\b(?:\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}|\d{14})\b`), maskedConfidence},
	{models.AnchorCPF, regexp.MustCompile(`\b(?:\d{3}\.\d{3}\.\d{3}-\d{2}|\d{11})\b`), maskedConfidence},
	{models.AnchorCNJ, regexp.MustCompile(`\b\d{7}-\d{2}\.\d{4}\.\d\.\d{2}\.\d{4}\b`), fullConfidence},
	{models.AnchorSEI, regexp.MustCompile(`\b\d{5}\.\d{6}/\d{4}-\d{2}\b`), fullConfidence},
	{models.AnchorTCU, regexp.MustCompile(`(?i)Acórdão\s+\d+/\d+`), fullConfidence},
	{models.AnchorPL, regexp.MustCompile(`(?i)\b(?:PL|PEC|PLP|PLR)\s+\d+(?:/\d+)?\b`), fullConfidence},
	{models.AnchorACT, regexp.MustCompile(`(?i)\b(?:Portaria|Decreto|Resolução|Instrução Normativa)\s+(?:n[ºo°]?\s*)?\d{1,4}(?:\.\d{3})*/\d{2,4}\b`), fullConfidence},
	{models.AnchorMoney, regexp.MustCompile(`R\$\s*[\d.]+(?:,\d{2})?\b`), fullConfidence},
	{models.AnchorDate, regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`), dateConfidence},
	{models.AnchorTime, regexp.MustCompile(`\b(?:[01]?\d|2[0-3]):[0-5]\d\b`), dateConfidence},
}

var urlRe = regexp.MustCompile(`(?i)https?://[^\s"'<>]+`)

func fullConfidence(string) float64 { return 1.0 }

func dateConfidence(string) float64 { return 0.7 }

func maskedConfidence(raw string) float64 {
	for _, r := range raw {
		if r == '.' || r == '/' || r == '-' {
			return 1.0
		}
	}
	return 0.8
}

const spanContext = 30

// Extract applies the full pack to text and returns normalised matches,
// deduplicated on (type, value, offset).
func Extract(text string) []Match {
	var out []Match
	seen := make(map[string]struct{})

	add := func(typ models.AnchorType, value string, start, end int, conf float64) {
		if value == "" {
			return
		}
		key := string(typ) + "\x00" + value + "\x00" + itoa(start)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, Match{
			Type:       typ,
			Value:      value,
			Span:       spanAround(text, start, end),
			Confidence: conf,
		})
	}

	for _, p := range structuralPatterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			raw := text[loc[0]:loc[1]]
			add(p.typ, Normalize(p.typ, raw), loc[0], loc[1], p.confidence(raw))
		}
	}

	// Link anchors: .gov / legislative / judiciary domains and PDFs. One URL
	// may yield both a GOV_LINK and a PDF_LINK.
	for _, loc := range urlRe.FindAllStringIndex(text, -1) {
		raw := text[loc[0]:loc[1]]
		normalized := Normalize(models.AnchorGovLink, raw)
		if isOfficialLink(normalized) {
			add(models.AnchorGovLink, normalized, loc[0], loc[1], 0.9)
		}
		if isPDFLink(normalized) {
			add(models.AnchorPDFLink, normalized, loc[0], loc[1], 0.9)
		}
	}

	return out
}

// spanAround returns the text surrounding [start,end), clamped to rune
// boundaries so multi-byte characters are never split.
func spanAround(text string, start, end int) string {
	lo := start - spanContext
	if lo < 0 {
		lo = 0
	}
	hi := end + spanContext
	if hi > len(text) {
		hi = len(text)
	}
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return text[lo:hi]
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
