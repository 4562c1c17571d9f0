package insight

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"finstory/pkg/core/analysis"
	"finstory/pkg/core/llm"
	"finstory/pkg/core/risk"
	"finstory/pkg/models"
)

// Config bounds the external path.
type Config struct {
	Timeout     time.Duration
	MaxFailures int
	Cooldown    time.Duration
}

// DefaultConfig returns a 30s timeout and a 3-failure, 1-minute breaker.
func DefaultConfig() Config {
	return Config{Timeout: 30 * time.Second, MaxFailures: 3, Cooldown: time.Minute}
}

// Generator picks a strategy by runtime health and always returns a record.
// A Generator is safe for concurrent use; the health counters are its only
// shared state.
type Generator struct {
	external Strategy
	local    Strategy
	profiles map[models.Persona]models.PersonaProfile
	cfg      Config
	health   *Health
	logger   zerolog.Logger
	now      func() time.Time
}

// NewGenerator wires the strategies. external may be nil, in which case every
// run uses the local template.
func NewGenerator(external Strategy, local Strategy, profiles map[models.Persona]models.PersonaProfile, cfg Config, logger zerolog.Logger) *Generator {
	if profiles == nil {
		profiles = models.DefaultPersonaProfiles()
	}
	return &Generator{
		external: external,
		local:    local,
		profiles: profiles,
		cfg:      cfg,
		health:   NewHealth(cfg.MaxFailures, cfg.Cooldown),
		logger:   logger.With().Str("component", "insight").Logger(),
		now:      time.Now,
	}
}

// Health exposes the breaker for status reporting.
func (g *Generator) Health() *Health {
	return g.health
}

// Generate never returns an error and never panics outward.
func (g *Generator) Generate(ctx context.Context, bundle *analysis.Bundle, persona models.Persona) Outcome {
	req := Request{Bundle: bundle, Persona: persona, Profile: g.profiles[persona]}

	if g.external == nil {
		return g.degrade(req, "no external provider configured")
	}
	release, ok := g.health.Acquire(g.now())
	if !ok {
		return g.degrade(req, fmt.Sprintf("external provider paused after %d consecutive failures", g.health.Failures()))
	}

	rec, err := g.tryExternal(ctx, req)
	if err != nil {
		// the caller gave up or the local rate limiter refused; neither says
		// anything about the provider
		if ctx.Err() != nil || errors.Is(err, llm.ErrRateLimited) {
			release()
			g.logger.Info().Err(err).Str("persona", string(persona)).Msg("external insight generation not attempted, using template")
			return g.degrade(req, err.Error())
		}
		g.health.RecordFailure(g.now())
		g.logger.Warn().Err(err).Str("persona", string(persona)).Int("failures", g.health.Failures()).Msg("external insight generation failed, using template")
		return g.degrade(req, err.Error())
	}
	g.health.RecordSuccess()
	return Outcome{Record: rec, Source: g.external.Source()}
}

func (g *Generator) tryExternal(ctx context.Context, req Request) (rec Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("external strategy panicked: %v", r)
		}
	}()

	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	rec, err = g.external.Generate(ctx, req)
	if err != nil {
		return Record{}, err
	}
	rec = rec.Normalize()
	if rec.Summary == "" {
		return Record{}, fmt.Errorf("%w: summary missing", ErrUnparseable)
	}
	return rec, nil
}

func (g *Generator) degrade(req Request, reason string) (out Outcome) {
	out = Outcome{Source: SourceTemplate, Degraded: true, Reason: reason}
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error().Interface("panic", r).Msg("template strategy panicked")
			out.Record = fallbackRecord(req)
		}
	}()

	local := g.local
	if local == nil {
		local = &LocalTemplateStrategy{Thresholds: risk.DefaultThresholds()}
	}
	rec, err := local.Generate(context.Background(), req)
	rec = rec.Normalize()
	if err != nil || rec.Summary == "" {
		rec = fallbackRecord(req)
	}
	out.Record = rec
	return out
}

func fallbackRecord(req Request) Record {
	return Record{
		Summary: fmt.Sprintf("%s analysis generated without narrative support; see metrics and risks for detail.", req.Persona),
	}.Normalize()
}
