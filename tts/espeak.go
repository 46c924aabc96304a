package tts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"amd-helper/config"
	"amd-helper/models"
)

const espeakWPM = 175

// EspeakTier is the last resort: robotic but always installed on a desktop.
type EspeakTier struct {
	logger *slog.Logger
	binary string
	speed  float32
}

func NewEspeakTier(logger *slog.Logger, cfg *config.Config) *EspeakTier {
	return &EspeakTier{
		logger: logger.With("tier", "espeak"),
		binary: cfg.EspeakBinary,
		speed:  cfg.TTS_SPEED,
	}
}

func (t *EspeakTier) Name() string { return "espeak" }
func (t *EspeakTier) Ext() string  { return models.AFWAV.Ext() }

func (t *EspeakTier) Synthesize(ctx context.Context, text string, lang models.Lang, outPath string) error {
	bin, err := lookBinary(t.binary, "espeak-ng", "espeak")
	if err != nil {
		return err
	}
	speed := t.speed
	if speed <= 0 {
		speed = 1
	}
	wpm := strconv.Itoa(int(float32(espeakWPM) * speed))
	cmd := exec.CommandContext(ctx, bin, "-v", espeakVoices.For(lang), "-s", wpm, "-w", outPath, "--stdin")
	cmd.Stdin = strings.NewReader(cleanText(text))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		return fmt.Errorf("espeak failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
