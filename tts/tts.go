package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"amd-helper/config"
	"amd-helper/models"
)

var (
	ErrCancelled      = errors.New("synthesis cancelled")
	ErrModelNotFound  = errors.New("model not found")
	ErrBinaryNotFound = errors.New("executable not found")
	ErrEmptyOutput    = errors.New("engine produced no audio")
	ErrNoTiers        = errors.New("no synthesis tiers configured")
)

// Synthesizer turns text into an audio artifact. The caller owns the returned file.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, lang models.Lang) (*models.Artifact, error)
}

// Tier is one ranked engine of the fallback chain. It writes audio to outPath.
type Tier interface {
	Name() string
	Ext() string
	Synthesize(ctx context.Context, text string, lang models.Lang, outPath string) error
}

// VoiceTable maps a language onto a voice or model; unknown languages use the default entry.
type VoiceTable map[models.Lang]string

func (v VoiceTable) For(lang models.Lang) string {
	if s, ok := v[lang]; ok && s != "" {
		return s
	}
	return v[models.LangDefault]
}

var (
	googleVoices = VoiceTable{
		models.LangZH:      "zh-CN",
		models.LangEN:      "en",
		models.LangDefault: "en",
	}
	kokoroVoices = VoiceTable{
		models.LangZH:      "zf_xiaoxiao",
		models.LangEN:      "af_bella",
		models.LangDefault: "af_bella",
	}
	kokoroLangCodes = VoiceTable{
		models.LangZH:      "z",
		models.LangEN:      "a",
		models.LangDefault: "a",
	}
	espeakVoices = VoiceTable{
		models.LangZH:      "cmn",
		models.LangEN:      "en-us",
		models.LangDefault: "en-us",
	}
)

// SelectSynthesizer builds the fallback chain from the configured primary engine.
// Anything but the online engine starts at the local tier so the helper keeps working offline.
func SelectSynthesizer(logger *slog.Logger, cfg *config.Config) *Chain {
	local := NewPiperTier(logger, cfg)
	minimal := NewEspeakTier(logger, cfg)
	switch strings.ToLower(strings.TrimSpace(cfg.TTS_ENGINE)) {
	case config.EngineOnline, "online", "edge", "google", "kokoro":
		logger.Info("tts engine selected", "engine", config.EngineOnline, "provider", cfg.TTS_ONLINE_PROVIDER)
		return NewChain(logger, cfg.TempDir(), NewOnlineTier(logger, cfg), local, minimal)
	case config.EngineLocal, "piper", "":
	default:
		logger.Warn("unknown tts engine, falling back to local", "engine", cfg.TTS_ENGINE)
	}
	logger.Info("tts engine selected", "engine", config.EngineLocal)
	return NewChain(logger, cfg.TempDir(), local, minimal)
}

// NewOnlineTier picks the networked tier implementation by provider.
func NewOnlineTier(logger *slog.Logger, cfg *config.Config) Tier {
	switch strings.ToLower(cfg.TTS_ONLINE_PROVIDER) {
	case config.ProviderKokoro:
		return NewKokoroTier(logger, cfg)
	case config.ProviderGoogle, "google-translate", "google_translate", "":
	default:
		logger.Warn("unknown online tts provider, using google", "provider", cfg.TTS_ONLINE_PROVIDER)
	}
	return NewGoogleTier(logger, cfg)
}

// lookBinary resolves the configured executable, or the first fallback found on PATH.
func lookBinary(configured string, fallbacks ...string) (string, error) {
	candidates := fallbacks
	if configured != "" {
		candidates = []string{configured}
	}
	for _, c := range candidates {
		if p, err := exec.LookPath(c); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrBinaryNotFound, strings.Join(candidates, ", "))
}
