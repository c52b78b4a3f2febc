// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package extractor

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/vigiadados/radar/internal/profile"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

var tagRe = regexp.MustCompile(`<[^>]*>`)

// stripTags removes markup from feed summaries. Full HTML pages go through
// goquery instead.
func stripTags(s string) string {
	return whitespaceRe.ReplaceAllString(tagRe.ReplaceAllString(s, " "), " ")
}

// parseHTML extracts the main content of one page. The profile's content
// selector wins; otherwise article, then main, then body.
func parseHTML(body io.Reader, pageURL string, prof *profile.Profile) ([]item, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script, style, noscript, nav, header, footer, aside, iframe").Remove()

	title := strings.TrimSpace(doc.Find(`meta[property="og:title"]`).AttrOr("content", ""))
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	canonical := strings.TrimSpace(doc.Find(`link[rel="canonical"]`).AttrOr("href", ""))

	var published *time.Time
	for _, sel := range []string{
		`meta[property="article:published_time"]`,
		`meta[name="date"]`,
		`time[datetime]`,
	} {
		raw := doc.Find(sel).First().AttrOr("content", doc.Find(sel).First().AttrOr("datetime", ""))
		if raw == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			utc := t.UTC()
			published = &utc
			break
		}
	}

	content := ""
	selectors := []string{"article", "main", "body"}
	if prof != nil && prof.ContentSelector != "" {
		selectors = append([]string{prof.ContentSelector}, selectors...)
	}
	for _, sel := range selectors {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			content = node.Text()
			if strings.TrimSpace(content) != "" {
				break
			}
		}
	}
	content = strings.TrimSpace(whitespaceRe.ReplaceAllString(content, " "))

	return []item{{
		URL:          pageURL,
		Title:        title,
		Text:         content,
		CanonicalURL: canonical,
		PublishedAt:  published,
	}}, nil
}
