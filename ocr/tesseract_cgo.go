//go:build cgo

package ocr

import (
	"context"
	"fmt"
	"strings"

	"amd-helper/config"

	"github.com/otiai10/gosseract/v2"
)

const Backend = "gosseract"

func newEngine(_ *config.Config) engine {
	return gosseractText
}

// gosseractText cannot be interrupted; a cancelled ctx abandons the result.
func gosseractText(ctx context.Context, img []byte, languages string) (string, error) {
	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		client := gosseract.NewClient()
		defer client.Close()
		if err := client.SetLanguage(strings.Split(languages, "+")...); err != nil {
			ch <- result{err: fmt.Errorf("failed to set language: %w", err)}
			return
		}
		if err := client.SetImageFromBytes(img); err != nil {
			ch <- result{err: fmt.Errorf("failed to set image: %w", err)}
			return
		}
		text, err := client.Text()
		if err != nil {
			ch <- result{err: fmt.Errorf("OCR failed: %w", err)}
			return
		}
		ch <- result{text: text}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		return res.text, res.err
	}
}
