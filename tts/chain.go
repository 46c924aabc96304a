package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"amd-helper/models"
)

type attemptKind int

const (
	attemptOK attemptKind = iota
	attemptFallthrough
	attemptTerminal
)

// attempt is the tagged result of one tier.
type attempt struct {
	kind     attemptKind
	artifact *models.Artifact
	err      error
}

type TierError struct {
	Tier string
	Err  error
}

// ExhaustedError is returned when every tier failed.
type ExhaustedError struct {
	Failures []TierError
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Tier, f.Err))
	}
	return "all tts tiers failed: " + strings.Join(parts, "; ")
}

func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Chain tries its tiers in order until one produces audio.
type Chain struct {
	logger *slog.Logger
	dir    string
	tiers  []Tier
}

func NewChain(logger *slog.Logger, dir string, tiers ...Tier) *Chain {
	return &Chain{
		logger: logger.With("component", "tts"),
		dir:    dir,
		tiers:  tiers,
	}
}

func (c *Chain) Names() []string {
	names := make([]string, 0, len(c.tiers))
	for _, t := range c.tiers {
		names = append(names, t.Name())
	}
	return names
}

// Synthesize returns the first tier's non-empty output. Partial files of failed
// tiers are removed; cancellation stops the chain without trying further tiers.
func (c *Chain) Synthesize(ctx context.Context, text string, lang models.Lang) (*models.Artifact, error) {
	if len(c.tiers) == 0 {
		return nil, ErrNoTiers
	}
	lang = models.NormalizeLang(string(lang))
	var failures []TierError
	for i, tier := range c.tiers {
		res := c.try(ctx, tier, text, lang)
		switch res.kind {
		case attemptOK:
			if i > 0 {
				c.logger.Info("synthesized with fallback tier", "tier", tier.Name(), "rank", i+1)
			}
			return res.artifact, nil
		case attemptTerminal:
			c.logger.Info("synthesis cancelled", "tier", tier.Name())
			return nil, res.err
		}
		c.logger.Warn("tts tier failed, falling through", "tier", tier.Name(), "error", res.err)
		failures = append(failures, TierError{Tier: tier.Name(), Err: res.err})
	}
	err := &ExhaustedError{Failures: failures}
	c.logger.Error("synthesis failed", "tiers", c.Names(), "error", err)
	return nil, err
}

func (c *Chain) try(ctx context.Context, tier Tier, text string, lang models.Lang) (res attempt) {
	if err := ctx.Err(); err != nil {
		return attempt{kind: attemptTerminal, err: fmt.Errorf("%w: %w", ErrCancelled, err)}
	}
	f, err := os.CreateTemp(c.dir, models.TempPrefix+"tts-*"+tier.Ext())
	if err != nil {
		return attempt{kind: attemptFallthrough, err: fmt.Errorf("failed to create temp audio file: %w", err)}
	}
	path := f.Name()
	f.Close()
	defer func() {
		if r := recover(); r != nil {
			res = attempt{kind: attemptFallthrough, err: fmt.Errorf("tier panicked: %v", r)}
		}
		if res.kind != attemptOK {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				c.logger.Warn("failed to remove partial audio", "path", path, "error", err)
			}
		}
	}()
	c.logger.Debug("trying tts tier", "tier", tier.Name(), "lang", lang, "text-len", len(text))
	err = tier.Synthesize(ctx, text, lang, path)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return attempt{kind: attemptTerminal, err: fmt.Errorf("%w: %w", ErrCancelled, ctxErr)}
	}
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return attempt{kind: attemptTerminal, err: err}
		}
		return attempt{kind: attemptFallthrough, err: err}
	}
	a, err := models.NewArtifact(path, models.ArtifactAudio)
	if err != nil {
		return attempt{kind: attemptFallthrough, err: err}
	}
	if !a.Valid() {
		return attempt{kind: attemptFallthrough, err: ErrEmptyOutput}
	}
	a.Source = tier.Name()
	c.logger.Info("speech synthesized", "tier", tier.Name(), "path", a.Path, "size", a.Size)
	return attempt{kind: attemptOK, artifact: a}
}
