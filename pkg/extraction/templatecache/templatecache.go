// Package templatecache implements the Template Cache (C8): a
// (user_id, sender_domain, document_type, layout_fingerprint) -> extraction
// template store that lets the Extractor Router (C7) skip an LLM call when a
// sender's layout has already been learned. Grounded on
// pkg/enrichment/config/repository.go's keyed-row repository pattern
// (ConfigRepositoryImpl): Postgres-backed Get/Create with pgx.ErrNoRows ->
// nil,nil miss handling, and duplicate-key/check-constraint error
// classification by message substring.
package templatecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otherjamesbrown/mailgraph/pkg/logging"
)

// MaxIdleAge is how long a template may go unused before it is treated as
// expired (spec.md §4.8: "expires after N=90 days idle").
const MaxIdleAge = 90 * 24 * time.Hour

// MaxConsecutiveFailures invalidates a template after this many verification
// failures in a row (spec.md §4.8: "invalidated on repeated verification
// failure (3 in a row)").
const MaxConsecutiveFailures = 3

// FieldRule is one named field's extraction recipe within a Template: either
// a regex applied to the extracted text, or a spatial region on the page
// (populated when the source extraction carried layout coordinates).
type FieldRule struct {
	Regex  string  `json:"regex,omitempty"`
	Region *Region `json:"region,omitempty"`
}

// Region is a page-relative bounding box, in the 0..1 normalized coordinate
// space used by the vision OCR extractor.
type Region struct {
	Page   int     `json:"page"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Key identifies one cached template.
type Key struct {
	UserID            string
	SenderDomain      string
	DocumentType      string
	LayoutFingerprint string
}

// Template is a structured recipe mapping named fields (total_amount,
// invoice_number, issue_date, due_date, vendor_name, line-item columns) to
// extraction rules, derived from a previous LLM extraction.
type Template struct {
	ID                        string
	Key                       Key
	FieldMap                  map[string]FieldRule
	HitCount                  int
	ConsecutiveVerifyFailures int
	LastUsedAt                time.Time
	CreatedAt                 time.Time
}

// Expired reports whether t has gone idle past MaxIdleAge, as of now.
func (t *Template) Expired(now time.Time) bool {
	return now.Sub(t.LastUsedAt) > MaxIdleAge
}

// Repository is the Postgres-backed Template Cache.
type Repository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewRepository builds a template cache Repository.
func NewRepository(pool *pgxpool.Pool, logger logging.Logger) *Repository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Repository{pool: pool, logger: logger.With(logging.F("component", "templatecache"))}
}

// Lookup implements C8's Lookup(key) -> template | miss. A miss (including
// an expired or over-failed template) returns (nil, nil), matching the
// teacher's GetTenant idiom for "not found".
func (r *Repository) Lookup(ctx context.Context, key Key) (*Template, error) {
	const q = `
SELECT id, user_id, sender_domain, document_type, layout_fingerprint, field_map,
       hit_count, consecutive_verify_failures, last_used_at, created_at
FROM extraction_templates
WHERE user_id = $1 AND sender_domain = $2 AND document_type = $3 AND layout_fingerprint = $4`

	var t Template
	var fieldMapJSON []byte
	err := r.pool.QueryRow(ctx, q, key.UserID, key.SenderDomain, key.DocumentType, key.LayoutFingerprint).Scan(
		&t.ID, &t.Key.UserID, &t.Key.SenderDomain, &t.Key.DocumentType, &t.Key.LayoutFingerprint,
		&fieldMapJSON, &t.HitCount, &t.ConsecutiveVerifyFailures, &t.LastUsedAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up template: %w", err)
	}

	if err := json.Unmarshal(fieldMapJSON, &t.FieldMap); err != nil {
		return nil, fmt.Errorf("decoding template field map: %w", err)
	}

	if t.Expired(time.Now()) || t.ConsecutiveVerifyFailures >= MaxConsecutiveFailures {
		return nil, nil
	}
	return &t, nil
}

// Store implements C8's Store(key, template): insert a new template, or
// overwrite an existing row's field map and reset its failure streak when a
// fresh LLM extraction re-derives the same (key) template.
func (r *Repository) Store(ctx context.Context, key Key, fieldMap map[string]FieldRule) (*Template, error) {
	fieldMapJSON, err := json.Marshal(fieldMap)
	if err != nil {
		return nil, fmt.Errorf("encoding template field map: %w", err)
	}

	id := uuid.NewString()
	const q = `
INSERT INTO extraction_templates (id, user_id, sender_domain, document_type, layout_fingerprint, field_map)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id, sender_domain, document_type, layout_fingerprint)
DO UPDATE SET field_map = EXCLUDED.field_map, consecutive_verify_failures = 0, last_used_at = now()
RETURNING id, hit_count, consecutive_verify_failures, last_used_at, created_at`

	var t Template
	t.Key = key
	t.FieldMap = fieldMap
	err = r.pool.QueryRow(ctx, q, id, key.UserID, key.SenderDomain, key.DocumentType, key.LayoutFingerprint, fieldMapJSON).
		Scan(&t.ID, &t.HitCount, &t.ConsecutiveVerifyFailures, &t.LastUsedAt, &t.CreatedAt)
	if err != nil {
		if isPgCheckViolation(err) {
			return nil, fmt.Errorf("template violates a check constraint: %w", err)
		}
		return nil, fmt.Errorf("storing template: %w", err)
	}
	return &t, nil
}

// RecordHit bumps a template's hit_count and last_used_at after Apply
// successfully produced fields from it, keeping it from idling out.
func (r *Repository) RecordHit(ctx context.Context, id string) error {
	const q = `UPDATE extraction_templates SET hit_count = hit_count + 1, last_used_at = now() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("recording template hit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("template %s not found", id)
	}
	return nil
}

// RecordVerifyFailure increments the consecutive-failure streak; the caller
// is expected to Invalidate once this reaches MaxConsecutiveFailures, but
// Lookup already treats such a row as a miss in the meantime.
func (r *Repository) RecordVerifyFailure(ctx context.Context, id string) (streak int, err error) {
	const q = `
UPDATE extraction_templates SET consecutive_verify_failures = consecutive_verify_failures + 1
WHERE id = $1
RETURNING consecutive_verify_failures`
	if err := r.pool.QueryRow(ctx, q, id).Scan(&streak); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("template %s not found", id)
		}
		return 0, fmt.Errorf("recording template verify failure: %w", err)
	}
	return streak, nil
}

// Invalidate implements C8's Invalidate(key): called when a user correction
// disagrees with a template's output. Deletes the row outright rather than
// leaving a permanently-skipped cache entry, so a future Synthesize can
// relearn the layout from scratch.
func (r *Repository) Invalidate(ctx context.Context, key Key) error {
	const q = `
DELETE FROM extraction_templates
WHERE user_id = $1 AND sender_domain = $2 AND document_type = $3 AND layout_fingerprint = $4`
	_, err := r.pool.Exec(ctx, q, key.UserID, key.SenderDomain, key.DocumentType, key.LayoutFingerprint)
	if err != nil {
		return fmt.Errorf("invalidating template: %w", err)
	}
	return nil
}

// EvictIdle deletes templates that have gone unused past MaxIdleAge,
// returning the count removed. Intended to run as a periodic housekeeping
// job, mirroring the teacher's retry-queue sweep pattern of a bounded
// maintenance pass rather than a per-request check.
func (r *Repository) EvictIdle(ctx context.Context) (int, error) {
	const q = `DELETE FROM extraction_templates WHERE last_used_at < $1`
	tag, err := r.pool.Exec(ctx, q, time.Now().Add(-MaxIdleAge))
	if err != nil {
		return 0, fmt.Errorf("evicting idle templates: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func isPgCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return containsSubstr(s, "check constraint") || containsSubstr(s, "violates check")
}

func containsSubstr(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
