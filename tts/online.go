package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"amd-helper/config"
	"amd-helper/models"

	google_translate_tts "github.com/GrailFinder/google-translate-tts"
	"github.com/GrailFinder/google-translate-tts/handlers"
)

var retryDelay = time.Second

// GoogleTier synthesizes through the Google Translate speech endpoint.
type GoogleTier struct {
	logger   *slog.Logger
	speed    float32
	retries  int
	folder   string
	generate func(lang, text string) (io.Reader, error)
}

func NewGoogleTier(logger *slog.Logger, cfg *config.Config) *GoogleTier {
	t := &GoogleTier{
		logger:  logger.With("tier", "google"),
		speed:   cfg.TTS_SPEED,
		retries: cfg.TTS_RETRIES,
		folder:  filepath.Join(cfg.TempDir(), models.TempPrefix+"google-cache"),
	}
	t.generate = t.generateSpeech
	return t
}

func (t *GoogleTier) Name() string { return "google" }
func (t *GoogleTier) Ext() string  { return models.AFMP3.Ext() }

func (t *GoogleTier) generateSpeech(lang, text string) (io.Reader, error) {
	speech := &google_translate_tts.Speech{
		Folder:   t.folder,
		Language: lang,
		Proxy:    "",
		Speed:    t.speed,
		Handler:  &handlers.Beep{},
	}
	reader, err := speech.GenerateSpeech(text)
	if err != nil {
		return nil, err
	}
	return reader, nil
}

func (t *GoogleTier) Synthesize(ctx context.Context, text string, lang models.Lang, outPath string) error {
	voice := googleVoices.For(lang)
	chunks := chunkText(cleanText(text), lang, maxChunkRunes)
	if len(chunks) == 0 {
		return ErrEmptyOutput
	}
	var audio bytes.Buffer
	for i, chunk := range chunks {
		err := withRetry(ctx, t.logger, t.retries, func() error {
			data, err := t.generateCtx(ctx, voice, chunk)
			if err != nil {
				return err
			}
			audio.Write(data)
			return nil
		})
		if err != nil {
			return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	if err := os.WriteFile(outPath, audio.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write audio: %w", err)
	}
	return nil
}

// generateCtx waits for the blocking library call but gives up as soon as ctx is done.
func (t *GoogleTier) generateCtx(ctx context.Context, lang, text string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		r, err := t.generate(lang, text)
		if err != nil {
			ch <- result{err: fmt.Errorf("generate speech failed: %w", err)}
			return
		}
		data, err := io.ReadAll(r)
		if err != nil {
			ch <- result{err: fmt.Errorf("failed to read speech: %w", err)}
			return
		}
		ch <- result{data: data}
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	case res := <-ch:
		return res.data, res.err
	}
}

// KokoroTier talks to a Kokoro-FastAPI server (https://github.com/remsky/Kokoro-FastAPI).
type KokoroTier struct {
	logger  *slog.Logger
	URL     string
	Format  models.AudioFormat
	Speed   float32
	retries int
	client  *http.Client
}

func NewKokoroTier(logger *slog.Logger, cfg *config.Config) *KokoroTier {
	return &KokoroTier{
		logger:  logger.With("tier", "kokoro"),
		URL:     cfg.TTS_URL,
		Format:  models.AFMP3,
		Speed:   cfg.TTS_SPEED,
		retries: cfg.TTS_RETRIES,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (t *KokoroTier) Name() string { return "kokoro" }
func (t *KokoroTier) Ext() string  { return t.Format.Ext() }

func (t *KokoroTier) requestSound(ctx context.Context, text string, lang models.Lang) (io.ReadCloser, error) {
	payload := map[string]interface{}{
		"input":           text,
		"voice":           kokoroVoices.For(lang),
		"response_format": t.Format,
		"download_format": t.Format,
		"stream":          false,
		"speed":           t.Speed,
		"lang_code":       kokoroLangCodes.For(lang),
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return resp.Body, nil
}

func (t *KokoroTier) Synthesize(ctx context.Context, text string, lang models.Lang, outPath string) error {
	text = cleanText(text)
	if text == "" {
		return ErrEmptyOutput
	}
	return withRetry(ctx, t.logger, t.retries, func() error {
		body, err := t.requestSound(ctx, text, lang)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
			}
			return err
		}
		defer body.Close()
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("failed to create audio file: %w", err)
		}
		defer f.Close()
		if _, err := io.Copy(f, body); err != nil {
			return fmt.Errorf("failed to write audio: %w", err)
		}
		return nil
	})
}
