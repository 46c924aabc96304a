package tts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"amd-helper/config"
	"amd-helper/models"
)

// PiperTier runs the piper neural TTS binary with one .onnx voice per language.
type PiperTier struct {
	logger *slog.Logger
	binary string
	models map[string]string
}

func NewPiperTier(logger *slog.Logger, cfg *config.Config) *PiperTier {
	return &PiperTier{
		logger: logger.With("tier", "piper"),
		binary: cfg.PiperBinary,
		models: cfg.PiperModels,
	}
}

func (t *PiperTier) Name() string { return "piper" }
func (t *PiperTier) Ext() string  { return models.AFWAV.Ext() }

// ModelFor returns the model path for lang; unknown languages use "default", then "en".
func (t *PiperTier) ModelFor(lang models.Lang) (string, error) {
	for _, key := range []string{string(lang), string(models.LangDefault), string(models.LangEN)} {
		if p := t.models[key]; p != "" {
			if _, err := os.Stat(p); err != nil {
				return "", fmt.Errorf("%w: %s", ErrModelNotFound, p)
			}
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: no model configured for %q", ErrModelNotFound, lang)
}

func (t *PiperTier) Synthesize(ctx context.Context, text string, lang models.Lang, outPath string) error {
	model, err := t.ModelFor(lang)
	if err != nil {
		return err
	}
	bin, err := lookBinary(t.binary, "piper", "piper-tts")
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, bin, "--model", model, "--output_file", outPath)
	cmd.Stdin = strings.NewReader(cleanText(text))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	t.logger.Debug("running piper", "model", model, "out", outPath)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		return fmt.Errorf("piper failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
