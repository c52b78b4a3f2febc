// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

// Package profile loads and validates source profiles: the declarative
// contracts that tell the scheduler and fetcher how each source is polled,
// fetched and extracted. Profiles are YAML files, one source per file,
// loaded once at startup and on explicit reload.
package profile

import (
	"fmt"
	"mime"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/vigiadados/radar/internal/models"
)

// Profile is one source contract.
type Profile struct {
	ID         string          `koanf:"id" validate:"required"`
	URL        string          `koanf:"url" validate:"required,url"`
	Domain     string          `koanf:"domain"`
	Strategy   models.Strategy `koanf:"strategy" validate:"required"`
	Pool       models.Pool     `koanf:"pool"`
	Tier       int             `koanf:"tier" validate:"min=1,max=3"`
	IsOfficial bool            `koanf:"is_official"`
	Lang       string          `koanf:"lang"`
	Enabled    bool            `koanf:"enabled"`

	// Cadence: either a fixed interval or a cron expression. Exactly one
	// must be set.
	Interval time.Duration `koanf:"interval"`
	Cron     string        `koanf:"cron"`

	// Per-source politeness and safety limits.
	Limits Limits `koanf:"limits"`

	// Per-source starvation-monitoring knobs.
	Observability Observability `koanf:"observability"`

	// API and SPA_API strategies declare where the item list lives in the
	// JSON payload and how item fields map onto documents.
	API *APIContract `koanf:"api"`

	// SPA_HEADLESS strategies declare which XHR responses the render worker
	// captures.
	Capture *CaptureFilter `koanf:"capture"`

	// HTML strategy hints.
	ContentSelector string `koanf:"content_selector"`
}

// Limits bounds what the fetcher may do to one source. Defaults are
// conservative; a profile raises them explicitly when the source can take it.
type Limits struct {
	RateLimitReqPerMin   int   `koanf:"rate_limit_req_per_min" validate:"min=1"`
	ConcurrencyPerDomain int   `koanf:"concurrency_per_domain" validate:"min=1"`
	TimeoutSeconds       int   `koanf:"timeout_seconds" validate:"min=1"`
	MaxBytes             int64 `koanf:"max_bytes" validate:"min=1024"`
}

// DefaultLimits returns the limits applied when a profile sets none.
// Gazette PDFs run tens of megabytes, so the body cap errs high.
func DefaultLimits() Limits {
	return Limits{
		RateLimitReqPerMin:   10,
		ConcurrencyPerDomain: 1,
		TimeoutSeconds:       30,
		MaxBytes:             64 << 20,
	}
}

// Timeout is the per-request deadline.
func (l Limits) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// Observability tunes the yield monitor for one source.
type Observability struct {
	StarvationWindowHours int      `koanf:"starvation_window_hours" validate:"min=1"`
	YieldKeys             []string `koanf:"yield_keys"`
	BaselineRolling       bool     `koanf:"baseline_rolling"`
	CalendarProfile       string   `koanf:"calendar_profile"`
}

// DefaultObservability returns the monitoring knobs applied when a profile
// sets none.
func DefaultObservability() Observability {
	return Observability{
		StarvationWindowHours: 24,
		BaselineRolling:       true,
	}
}

// StarvationWindow is the observation window for the yield monitor.
func (o Observability) StarvationWindow() time.Duration {
	return time.Duration(o.StarvationWindowHours) * time.Hour
}

// APIContract maps a JSON payload onto documents.
type APIContract struct {
	ItemsPath string            `koanf:"items_path" validate:"required"`
	Fields    map[string]string `koanf:"fields" validate:"required"`
}

// CaptureFilter selects network responses during headless rendering.
type CaptureFilter struct {
	URLPattern  string `koanf:"url_pattern"`
	ContentType string `koanf:"content_type"`
}

// Match checks one captured response against the filter. The URL pattern is
// a regular expression; the content type matches on the media type alone,
// ignoring parameters like charset.
func (c *CaptureFilter) Match(url, contentType string) error {
	if c.URLPattern != "" {
		re, err := regexp.Compile(c.URLPattern)
		if err != nil {
			return fmt.Errorf("capture url_pattern %q: %w", c.URLPattern, err)
		}
		if !re.MatchString(url) {
			return fmt.Errorf("captured url %s does not match %q", url, c.URLPattern)
		}
	}
	if c.ContentType != "" {
		media := contentType
		if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
			media = parsed
		}
		if !strings.EqualFold(media, c.ContentType) {
			return fmt.Errorf("captured content type %q, filter wants %q", media, c.ContentType)
		}
	}
	return nil
}

var validate = validator.New()

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks a profile beyond struct tags: cadence exclusivity, cron
// syntax, strategy-specific contracts, and pool compatibility. Unset limit
// and observability fields take their defaults first.
func (p *Profile) Validate() error {
	p.applyDefaults()
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("profile %s: %w", p.ID, err)
	}
	if !p.Strategy.Valid() {
		return fmt.Errorf("profile %s: unknown strategy %q", p.ID, p.Strategy)
	}
	if p.Pool != "" && !p.Pool.Valid() {
		return fmt.Errorf("profile %s: unknown pool %q", p.ID, p.Pool)
	}
	if (p.Interval > 0) == (p.Cron != "") {
		return fmt.Errorf("profile %s: exactly one of interval or cron must be set", p.ID)
	}
	if p.Cron != "" {
		if _, err := cronParser.Parse(p.Cron); err != nil {
			return fmt.Errorf("profile %s: invalid cron %q: %w", p.ID, p.Cron, err)
		}
	}
	if p.Interval > 0 && p.Interval < 10*time.Second {
		return fmt.Errorf("profile %s: interval below 10s hammers the source", p.ID)
	}
	switch p.Strategy {
	case models.StrategyAPI, models.StrategySPAAPI:
		if p.API == nil {
			return fmt.Errorf("profile %s: %s strategy requires an api contract", p.ID, p.Strategy)
		}
		if err := validate.Struct(p.API); err != nil {
			return fmt.Errorf("profile %s: api contract: %w", p.ID, err)
		}
	case models.StrategySPAHeadless:
		if p.Capture == nil {
			return fmt.Errorf("profile %s: SPA_HEADLESS requires a capture filter", p.ID)
		}
		if p.Capture.URLPattern != "" {
			if _, err := regexp.Compile(p.Capture.URLPattern); err != nil {
				return fmt.Errorf("profile %s: capture url_pattern: %w", p.ID, err)
			}
		}
	}
	switch p.Observability.CalendarProfile {
	case "", "business_hours", "24x7":
	default:
		return fmt.Errorf("profile %s: unknown calendar_profile %q", p.ID, p.Observability.CalendarProfile)
	}
	for _, key := range p.Observability.YieldKeys {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("profile %s: empty yield key", p.ID)
		}
	}
	return nil
}

// applyDefaults fills unset numeric limits so profiles built in code behave
// like loaded ones. BaselineRolling defaults at load time, where set and
// unset are still distinguishable.
func (p *Profile) applyDefaults() {
	dl := DefaultLimits()
	if p.Limits.RateLimitReqPerMin == 0 {
		p.Limits.RateLimitReqPerMin = dl.RateLimitReqPerMin
	}
	if p.Limits.ConcurrencyPerDomain == 0 {
		p.Limits.ConcurrencyPerDomain = dl.ConcurrencyPerDomain
	}
	if p.Limits.TimeoutSeconds == 0 {
		p.Limits.TimeoutSeconds = dl.TimeoutSeconds
	}
	if p.Limits.MaxBytes == 0 {
		p.Limits.MaxBytes = dl.MaxBytes
	}
	if p.Observability.StarvationWindowHours == 0 {
		p.Observability.StarvationWindowHours = DefaultObservability().StarvationWindowHours
	}
}

// EffectivePool returns the pool for this profile, deriving the default from
// the strategy when the profile does not pin one.
func (p *Profile) EffectivePool() models.Pool {
	if p.Pool != "" {
		return p.Pool
	}
	switch p.Strategy {
	case models.StrategySPAHeadless:
		return models.HeavyRenderPool
	case models.StrategyPDF:
		return models.DeepExtractPool
	default:
		return models.FastPool
	}
}

// NextDue computes when the source is next due after last. Cron cadences
// follow the expression; interval cadences add the interval.
func (p *Profile) NextDue(last time.Time) time.Time {
	if p.Cron != "" {
		sched, err := cronParser.Parse(p.Cron)
		if err != nil {
			// Rejected at load time; unreachable for registered profiles.
			return last.Add(time.Hour)
		}
		return sched.Next(last)
	}
	return last.Add(p.Interval)
}

// Source converts the profile into its database record.
func (p *Profile) Source(now time.Time) *models.Source {
	lang := p.Lang
	if lang == "" {
		lang = "pt-BR"
	}
	return &models.Source{
		ID:         p.ID,
		Domain:     p.Domain,
		Tier:       p.Tier,
		IsOfficial: p.IsOfficial,
		Lang:       lang,
		Enabled:    p.Enabled,
		CreatedAt:  now,
	}
}
