// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package extractor

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// parsePDF pulls the text layer out of a PDF snapshot. Image-only PDFs have
// no text layer; they yield an empty item that the versioning step discards,
// and the deep pool leaves OCR to a later pass.
func parsePDF(body io.Reader, pageURL string) ([]item, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read pdf body: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extract pdf text layer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(textReader); err != nil {
		return nil, fmt.Errorf("read pdf text layer: %w", err)
	}

	text := strings.TrimSpace(whitespaceRe.ReplaceAllString(buf.String(), " "))
	title := ""
	if text != "" {
		// First sentence-ish chunk stands in for a title.
		title = text
		if idx := strings.IndexAny(title, ".!?"); idx > 0 && idx < 160 {
			title = title[:idx]
		} else if len(title) > 160 {
			title = title[:160]
		}
	}

	return []item{{
		URL:   pageURL,
		Title: strings.TrimSpace(title),
		Text:  text,
	}}, nil
}
