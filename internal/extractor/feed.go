// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package extractor

import (
	"fmt"
	"io"
	"strings"

	"github.com/mmcdole/gofeed"
)

// parseFeed maps RSS/Atom items onto candidate documents. Item order is
// preserved; the feed page itself is never a document.
func parseFeed(body io.Reader) ([]item, error) {
	feed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	out := make([]item, 0, len(feed.Items))
	for _, fi := range feed.Items {
		if fi.Link == "" {
			continue
		}
		text := fi.Title
		if summary := strings.TrimSpace(stripTags(fi.Description)); summary != "" {
			text += "\n" + summary
		}
		if content := strings.TrimSpace(stripTags(fi.Content)); content != "" {
			text += "\n" + content
		}
		it := item{
			URL:         fi.Link,
			Title:       fi.Title,
			Text:        text,
			PublishedAt: fi.PublishedParsed,
		}
		if it.PublishedAt == nil {
			it.PublishedAt = fi.UpdatedParsed
		}
		out = append(out, it)
	}
	return out, nil
}
