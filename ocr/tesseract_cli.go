//go:build !cgo

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"amd-helper/config"
)

const Backend = "tesseract-cli"

func newEngine(cfg *config.Config) engine {
	bin := cfg.TesseractBinary
	if bin == "" {
		bin = "tesseract"
	}
	return func(ctx context.Context, img []byte, languages string) (string, error) {
		return cliText(ctx, bin, img, languages)
	}
}

func cliText(ctx context.Context, bin string, img []byte, languages string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, "stdin", "stdout", "-l", languages)
	cmd.Stdin = bytes.NewReader(img)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
