// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

// Package textsim implements the deterministic text similarity primitives
// the organizer clusters with: accent-insensitive canonicalisation, SimHash64
// fingerprints over unigrams and 3-shingles, hamming distance, and token
// Jaccard similarity.
package textsim

import (
	"hash/fnv"
	"math/bits"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopwords are high-frequency Portuguese function words excluded from
// fingerprints and similarity tokens.
var stopwords = map[string]struct{}{
	"a": {}, "o": {}, "as": {}, "os": {}, "um": {}, "uma": {}, "uns": {}, "umas": {},
	"de": {}, "do": {}, "da": {}, "dos": {}, "das": {}, "em": {}, "no": {}, "na": {},
	"nos": {}, "nas": {}, "por": {}, "para": {}, "com": {}, "sem": {}, "sob": {},
	"sobre": {}, "entre": {}, "e": {}, "ou": {}, "mas": {}, "que": {}, "se": {},
	"ao": {}, "aos": {}, "à": {}, "às": {}, "é": {}, "ser": {}, "foi": {}, "são": {},
	"está": {}, "como": {}, "mais": {}, "já": {}, "também": {}, "sua": {}, "seu": {},
	"suas": {}, "seus": {}, "pela": {}, "pelo": {}, "pelas": {}, "pelos": {},
	"nesta": {}, "neste": {}, "esta": {}, "este": {}, "essa": {}, "esse": {},
}

var stripAccents = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Canonicalize lowercases, strips accents and collapses everything that is
// not a letter or digit into single spaces. Both fingerprints and token
// similarity start here so "Decreto" and "decreto" never diverge.
func Canonicalize(text string) string {
	stripped, _, err := transform.String(stripAccents, text)
	if err != nil {
		stripped = text
	}
	var b strings.Builder
	b.Grow(len(stripped))
	lastSpace := true
	for _, r := range strings.ToLower(stripped) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens returns the canonical tokens of text with stopwords removed.
func Tokens(text string) []string {
	fields := strings.Fields(Canonicalize(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		if len(f) < 2 {
			continue
		}
		out = append(out, f)
	}
	return out
}

// features returns unigrams plus 3-shingles. Shingles keep word order
// information so reordered copy does not collide with the original.
func features(tokens []string) []string {
	out := make([]string, 0, len(tokens)*2)
	out = append(out, tokens...)
	for i := 0; i+3 <= len(tokens); i++ {
		out = append(out, tokens[i]+" "+tokens[i+1]+" "+tokens[i+2])
	}
	return out
}

// SimHash64 computes a 64-bit SimHash over the text's unigrams and
// 3-shingles using FNV-64a per feature.
func SimHash64(text string) uint64 {
	tokens := Tokens(text)
	if len(tokens) == 0 {
		return 0
	}
	var weights [64]int
	for _, feat := range features(tokens) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(feat))
		sum := h.Sum64()
		for bit := 0; bit < 64; bit++ {
			if sum&(1<<uint(bit)) != 0 {
				weights[bit]++
			} else {
				weights[bit]--
			}
		}
	}
	var out uint64
	for bit := 0; bit < 64; bit++ {
		if weights[bit] > 0 {
			out |= 1 << uint(bit)
		}
	}
	return out
}

// Hamming returns the number of differing bits between two fingerprints.
func Hamming(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Jaccard returns the token-set similarity of two texts in [0,1].
func Jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokens(text) {
		set[tok] = struct{}{}
	}
	return set
}
