// Package store caches finished analysis results keyed by a fingerprint of
// the input series and persona. Two backends exist: JSON files on disk and a
// Postgres table. The cache sits outside the pipeline; a cache failure never
// fails a run.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"finstory/pkg/core/pipeline"
	"finstory/pkg/models"
)

// Entry is one cached result.
type Entry struct {
	Fingerprint string           `json:"fingerprint"`
	Persona     models.Persona   `json:"persona"`
	StoredAt    time.Time        `json:"stored_at"`
	Result      *pipeline.Result `json:"result"`
}

// Cache stores results by fingerprint. Get returns (nil, nil) on a miss.
type Cache interface {
	Get(ctx context.Context, fingerprint string) (*Entry, error)
	Put(ctx context.Context, entry *Entry) error
}

// Fingerprint identifies an analysis input: the resolved persona plus the
// canonical JSON of the series.
func Fingerprint(series models.PeriodSeries, persona models.Persona) (string, error) {
	resolved, _ := models.ParsePersona(string(persona))
	data, err := json.Marshal(struct {
		Persona models.Persona      `json:"persona"`
		Periods models.PeriodSeries `json:"periods"`
	}{resolved, series})
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// CachedRunner serves repeated inputs from a cache. Only clean results are
// stored: success without a degraded narrative.
type CachedRunner struct {
	next   pipeline.Runner
	cache  Cache
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewCachedRunner wraps next. ttl <= 0 keeps entries forever.
func NewCachedRunner(next pipeline.Runner, cache Cache, ttl time.Duration, logger zerolog.Logger) *CachedRunner {
	return &CachedRunner{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "cache").Logger(),
		now:    time.Now,
	}
}

func (r *CachedRunner) Run(ctx context.Context, series models.PeriodSeries, persona models.Persona) (*pipeline.Result, error) {
	fp, err := Fingerprint(series, persona)
	if err != nil {
		r.logger.Warn().Err(err).Msg("cannot fingerprint series, bypassing cache")
		return r.next.Run(ctx, series, persona)
	}
	log := r.logger.With().Str("fingerprint", fp[:12]).Logger()

	entry, err := r.cache.Get(ctx, fp)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("cache lookup failed")
	case entry != nil && entry.Result != nil && r.fresh(entry):
		log.Debug().Msg("cache hit")
		return entry.Result, nil
	}

	res, err := r.next.Run(ctx, series, persona)
	if err != nil || res == nil {
		return res, err
	}
	if res.Status == pipeline.StatusSuccess && !res.Degraded {
		resolved, _ := models.ParsePersona(string(persona))
		put := &Entry{Fingerprint: fp, Persona: resolved, StoredAt: r.now().UTC(), Result: res}
		if err := r.cache.Put(ctx, put); err != nil {
			log.Warn().Err(err).Msg("cache store failed")
		}
	}
	return res, nil
}

var _ pipeline.Runner = (*CachedRunner)(nil)

func (r *CachedRunner) fresh(e *Entry) bool {
	return r.ttl <= 0 || r.now().Sub(e.StoredAt) < r.ttl
}
