// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package extractor

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/vigiadados/radar/internal/profile"
)

// parseAPI maps a JSON payload onto documents through the profile's API
// contract: items_path locates the item list, fields maps item keys onto
// url, title, text and published.
func parseAPI(body io.Reader, prof *profile.Profile) ([]item, error) {
	if prof == nil || prof.API == nil {
		return nil, fmt.Errorf("api strategy without contract")
	}

	var payload any
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode json payload: %w", err)
	}

	node, err := walkPath(payload, prof.API.ItemsPath)
	if err != nil {
		return nil, err
	}
	list, ok := node.([]any)
	if !ok {
		return nil, fmt.Errorf("items_path %q is not a list", prof.API.ItemsPath)
	}

	out := make([]item, 0, len(list))
	for _, raw := range list {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		it := item{
			URL:   fieldString(obj, prof.API.Fields["url"]),
			Title: fieldString(obj, prof.API.Fields["title"]),
		}
		it.Text = fieldString(obj, prof.API.Fields["text"])
		if it.Text == "" {
			it.Text = it.Title
		} else {
			it.Text = it.Title + "\n" + it.Text
		}
		if rawDate := fieldString(obj, prof.API.Fields["published"]); rawDate != "" {
			for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
				if t, err := time.Parse(layout, rawDate); err == nil {
					utc := t.UTC()
					it.PublishedAt = &utc
					break
				}
			}
		}
		if it.URL == "" {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

// walkPath follows a dot-separated path through nested JSON objects.
func walkPath(node any, path string) (any, error) {
	if path == "" || path == "." {
		return node, nil
	}
	for _, part := range strings.Split(path, ".") {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q: %q is not an object", path, part)
		}
		node, ok = obj[part]
		if !ok {
			return nil, fmt.Errorf("path %q: key %q missing", path, part)
		}
	}
	return node, nil
}

func fieldString(obj map[string]any, key string) string {
	if key == "" {
		return ""
	}
	val, ok := obj[key]
	if !ok {
		return ""
	}
	switch v := val.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")
	default:
		return ""
	}
}
