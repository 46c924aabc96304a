// Package ocr recognizes the text of a captured screen region with Tesseract.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"amd-helper/config"
	"amd-helper/models"

	"github.com/disintegration/imaging"
)

// selections narrower than this are upscaled before recognition
const minWidth = 1000

var (
	cjkGapRE     = regexp.MustCompile(`(\p{Han}) +(\p{Han})`)
	strayMarkRE  = regexp.MustCompile(`[|_~` + "`" + `]{2,}`)
	hyphenWrapRE = regexp.MustCompile(`(\w)-\n(\w)`)
)

// engine runs tesseract over an encoded PNG.
type engine func(ctx context.Context, img []byte, languages string) (string, error)

type Recognizer struct {
	logger    *slog.Logger
	languages string
	run       engine
}

func NewRecognizer(logger *slog.Logger, cfg *config.Config) *Recognizer {
	return &Recognizer{
		logger:    logger.With("component", "ocr"),
		languages: cfg.OCRLanguages,
		run:       newEngine(cfg),
	}
}

// Recognize never fails for "no text found". A broken image or a tesseract failure is
// logged and yields an empty result, which the pipeline treats as a no-op.
func (r *Recognizer) Recognize(ctx context.Context, a *models.Artifact) (models.RecognitionResult, error) {
	if err := ctx.Err(); err != nil {
		return models.RecognitionResult{}, err
	}
	if !a.Valid() {
		r.logger.Warn("nothing to recognize", "artifact", a)
		return models.RecognitionResult{}, nil
	}
	img, err := imaging.Open(a.Path)
	if err != nil {
		r.logger.Warn("failed to open capture", "path", a.Path, "error", err)
		return models.RecognitionResult{}, nil
	}
	data, err := encode(preprocess(img))
	if err != nil {
		r.logger.Warn("failed to prepare capture", "path", a.Path, "error", err)
		return models.RecognitionResult{}, nil
	}
	raw, err := r.run(ctx, data, r.languages)
	if err != nil {
		if ctx.Err() != nil {
			return models.RecognitionResult{}, ctx.Err()
		}
		r.logger.Warn("ocr failed", "path", a.Path, "error", err)
		return models.RecognitionResult{}, nil
	}
	text := Normalize(raw)
	res := models.RecognitionResult{Text: text, Lang: DetectLanguage(text)}
	r.logger.Info("text recognized", "lang", res.Lang, "chars", len([]rune(text)))
	return res, nil
}

// preprocess makes small, low-contrast screen text easier for tesseract.
func preprocess(img image.Image) image.Image {
	out := imaging.Grayscale(img)
	if w := out.Bounds().Dx(); w > 0 && w < minWidth {
		out = imaging.Resize(out, w*2, 0, imaging.Lanczos)
	}
	out = imaging.AdjustContrast(out, 20)
	return imaging.Sharpen(out, 0.5)
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// DetectLanguage returns zh when any Han character is present, en otherwise.
func DetectLanguage(text string) models.Lang {
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			return models.LangZH
		}
	}
	return models.LangEN
}

// Normalize joins wrapped lines and drops tesseract noise.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\f", "")
	text = hyphenWrapRE.ReplaceAllString(text, "$1$2")
	text = strayMarkRE.ReplaceAllString(text, " ")
	var paragraphs []string
	for _, para := range strings.Split(text, "\n\n") {
		joined := strings.Join(strings.Fields(para), " ")
		// tesseract separates CJK glyphs with spaces
		for cjkGapRE.MatchString(joined) {
			joined = cjkGapRE.ReplaceAllString(joined, "$1$2")
		}
		if joined != "" {
			paragraphs = append(paragraphs, joined)
		}
	}
	return strings.Join(paragraphs, "\n")
}
