// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package anchors

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/vigiadados/radar/internal/models"
)

var (
	nonDigitRe   = regexp.MustCompile(`\D+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	ordinalRe    = regexp.MustCompile(`(?i)\bn[ºo°]?\s*`)
	dmyRe        = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2,4})$`)
)

// Normalize canonicalises a raw match for its anchor type. Hard-merge
// decisions compare normalised values, so this function must be stable
// across releases.
func Normalize(typ models.AnchorType, raw string) string {
	value := strings.TrimSpace(raw)
	switch typ {
	case models.AnchorCNPJ, models.AnchorCPF:
		return nonDigitRe.ReplaceAllString(value, "")

	case models.AnchorMoney:
		cleaned := strings.TrimSpace(strings.Replace(strings.ToUpper(value), "R$", "", 1))
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return value
		}
		return fmt.Sprintf("BRL:%.2f", f)

	case models.AnchorDate:
		m := dmyRe.FindStringSubmatch(value)
		if m == nil {
			return value
		}
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if year < 100 {
			year += 2000
		}
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		// time.Date silently rolls invalid dates over; reject those.
		if t.Day() != day || int(t.Month()) != month || t.Year() != year {
			return value
		}
		return t.Format("2006-01-02")

	case models.AnchorPL, models.AnchorTCU:
		return whitespaceRe.ReplaceAllString(strings.ToUpper(value), " ")

	case models.AnchorACT:
		// "Decreto nº 11.555/2025" -> "Decreto 11.555/2025"
		value = ordinalRe.ReplaceAllString(value, "")
		return whitespaceRe.ReplaceAllString(value, " ")

	case models.AnchorGovLink, models.AnchorPDFLink:
		return strings.ToLower(strings.TrimRight(value, ".,;)]}>"))
	}
	return value
}

// isOfficialLink reports whether a normalised URL points at a government,
// legislative or judiciary domain.
func isOfficialLink(url string) bool {
	return strings.Contains(url, ".gov.") ||
		strings.HasSuffix(hostOf(url), ".gov.br") ||
		strings.Contains(url, ".leg.br") ||
		strings.Contains(url, ".jus.br")
}

// isPDFLink reports whether a normalised URL references a PDF artefact.
func isPDFLink(url string) bool {
	return strings.Contains(url, ".pdf")
}

func hostOf(url string) string {
	rest := url
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}
	if idx := strings.IndexAny(rest, "/?#"); idx >= 0 {
		rest = rest[:idx]
	}
	return rest
}
