// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package anchors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigiadados/radar/internal/models"
)

func valuesOf(matches []Match, typ models.AnchorType) []string {
	var out []string
	for _, m := range matches {
		if m.Type == typ {
			out = append(out, m.Value)
		}
	}
	return out
}

func TestExtractCNJ(t *testing.T) {
	text := "O processo 0001234-56.2025.1.00.0000 tramita no STF."
	matches := Extract(text)
	assert.Equal(t, []string{"0001234-56.2025.1.00.0000"}, valuesOf(matches, models.AnchorCNJ))
}

func TestExtractCNPJMaskedAndBare(t *testing.T) {
	text := "Contratada: 12.345.678/0001-95. Registro antigo 12345678000195."
	matches := Extract(text)
	vals := valuesOf(matches, models.AnchorCNPJ)
	require.Len(t, vals, 2)
	assert.Equal(t, "12345678000195", vals[0], "masked form normalises to digits")
	assert.Equal(t, "12345678000195", vals[1])

	var maskedConf, bareConf float64
	for _, m := range matches {
		if m.Type != models.AnchorCNPJ {
			continue
		}
		if maskedConf == 0 {
			maskedConf = m.Confidence
		} else {
			bareConf = m.Confidence
		}
	}
	assert.Equal(t, 1.0, maskedConf)
	assert.Equal(t, 0.8, bareConf, "bare digits are ambiguous")
}

func TestExtractActWithThousandsSeparator(t *testing.T) {
	text := "Publicado o Decreto nº 11.555/2025 com vigência imediata."
	matches := Extract(text)
	assert.Equal(t, []string{"Decreto 11.555/2025"}, valuesOf(matches, models.AnchorACT))
}

func TestExtractMoneyNormalisation(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"R$ 4.500.000.000,00", "BRL:4500000000.00"},
		{"R$ 1.234,56", "BRL:1234.56"},
		{"R$ 500", "BRL:500.00"},
	}
	for _, tt := range tests {
		matches := Extract("Valor estimado: " + tt.raw + " no contrato.")
		assert.Equal(t, []string{tt.want}, valuesOf(matches, models.AnchorMoney), "raw %q", tt.raw)
	}
}

func TestExtractDateNormalisation(t *testing.T) {
	matches := Extract("Sessão marcada para 05/03/2025 e retomada em 7/3/25.")
	assert.Equal(t, []string{"2025-03-05", "2025-03-07"}, valuesOf(matches, models.AnchorDate))
}

func TestExtractDateInvalidKeptRaw(t *testing.T) {
	matches := Extract("Data registrada: 31/02/2025 no ofício.")
	assert.Equal(t, []string{"31/02/2025"}, valuesOf(matches, models.AnchorDate))
}

func TestExtractBillIdentifiers(t *testing.T) {
	matches := Extract("A PEC 45/2019 e o pl 1234/2025 avançaram na pauta.")
	assert.ElementsMatch(t, []string{"PEC 45/2019", "PL 1234/2025"}, valuesOf(matches, models.AnchorPL))
}

func TestExtractLinks(t *testing.T) {
	text := "Íntegra em https://www.in.gov.br/web/dou/decreto-11555 e anexo https://planalto.gov.br/doc.PDF."
	matches := Extract(text)
	assert.Equal(t, []string{
		"https://www.in.gov.br/web/dou/decreto-11555",
		"https://planalto.gov.br/doc.pdf",
	}, valuesOf(matches, models.AnchorGovLink))
	assert.Equal(t, []string{"https://planalto.gov.br/doc.pdf"}, valuesOf(matches, models.AnchorPDFLink))
}

func TestSpanClampsRuneBoundaries(t *testing.T) {
	text := "ação órgão âmbito Acórdão 123/2025 providências imediatas órgãos"
	matches := Extract(text)
	require.NotEmpty(t, matches)
	for _, m := range matches {
		assert.True(t, len(m.Span) > 0)
		assert.True(t, validUTF8(m.Span), "span must not split runes: %q", m.Span)
	}
}

func validUTF8(s string) bool {
	for _, r := range s {
		if r == 0xFFFD {
			return false
		}
	}
	return true
}

func TestEvidenceScoreMonotone(t *testing.T) {
	base := Extract("Decreto nº 100/2025 publicado.")
	withStrong := Extract("Decreto nº 100/2025 publicado. Processo 0001234-56.2025.1.00.0000.")
	assert.Greater(t, EvidenceScore(withStrong), EvidenceScore(base),
		"adding a strong anchor must increase the score")
}

func TestEvidenceScoreDedupesValues(t *testing.T) {
	once := Extract("PL 10/2025 em pauta.")
	twice := Extract("PL 10/2025 em pauta. PL 10/2025 repetido.")
	assert.Equal(t, EvidenceScore(once), EvidenceScore(twice),
		"duplicate values do not inflate the score")
}

func TestEvidenceScoreCap(t *testing.T) {
	text := ""
	for i := 0; i < 30; i++ {
		text += "Acórdão " + string(rune('1'+i%9)) + "00" + itoa(i) + "/2025. "
	}
	assert.LessOrEqual(t, EvidenceScore(Extract(text)), 15.0)
}

func TestFeatures(t *testing.T) {
	text := "Decreto nº 9/2025 libera R$ 4.500.000.000,00.\ncol|col|col\na|b|c\nd|e|f\nAnexo: https://in.gov.br/anexo.pdf"
	matches := Extract(text)
	f := Features("doc-1", matches, text, false)

	assert.Equal(t, "doc-1", f.DocID)
	assert.True(t, f.HasPDF)
	assert.True(t, f.HasOfficialDomain)
	assert.True(t, f.HasTableLike)
	assert.Equal(t, 1, f.MoneyCount)
	assert.Equal(t, len(matches), f.AnchorCount)
	assert.Greater(t, f.EvidenceScore, 0.0)
}

func TestStrongAnchorTypes(t *testing.T) {
	for _, typ := range models.StrongAnchorTypes {
		assert.True(t, typ.IsStrong())
	}
	assert.False(t, models.AnchorMoney.IsStrong())
	assert.False(t, models.AnchorGovLink.IsStrong())
}
