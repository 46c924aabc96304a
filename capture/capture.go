// Package capture grabs a user-selected screen region with whatever
// interactive screenshot tool the desktop provides.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"amd-helper/config"
	"amd-helper/models"
)

var ErrNoCaptureTool = errors.New("no screenshot tool found")

type tool struct {
	name string
	// all of these must be on PATH
	needs []string
	run   func(ctx context.Context, bins map[string]string, out string) error
}

// argsTool is a tool that takes its selection flags and then the output path.
func argsTool(name string, flags ...string) tool {
	return tool{
		name:  name,
		needs: []string{name},
		run: func(ctx context.Context, bins map[string]string, out string) error {
			args := append(append([]string{}, flags...), out)
			return runQuiet(ctx, bins[name], args...)
		},
	}
}

var tools = []tool{
	{
		name:  "grim",
		needs: []string{"grim", "slurp"},
		run: func(ctx context.Context, bins map[string]string, out string) error {
			var geom bytes.Buffer
			cmd := exec.CommandContext(ctx, bins["slurp"])
			cmd.Stdout = &geom
			if err := cmd.Run(); err != nil {
				return fmt.Errorf("selection aborted: %w", err)
			}
			return runQuiet(ctx, bins["grim"], "-g", strings.TrimSpace(geom.String()), out)
		},
	},
	argsTool("gnome-screenshot", "-a", "-f"),
	argsTool("spectacle", "-r", "-b", "-n", "-o"),
	argsTool("scrot", "-s"),
	argsTool("maim", "-s"),
}

func runQuiet(ctx context.Context, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", bin, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

type Capturer struct {
	logger *slog.Logger
	dir    string
	// name of a known tool, or a path to a command taking the output file as its only argument
	preferred string
}

func NewCapturer(logger *slog.Logger, cfg *config.Config) *Capturer {
	return &Capturer{
		logger:    logger.With("component", "capture"),
		dir:       cfg.TempDir(),
		preferred: cfg.CaptureTool,
	}
}

// detect picks the configured tool or the first installed known one.
func (c *Capturer) detect() (tool, map[string]string, error) {
	candidates := tools
	if c.preferred != "" {
		candidates = nil
		for _, t := range tools {
			if t.name == c.preferred {
				candidates = []tool{t}
			}
		}
		if candidates == nil {
			custom := c.preferred
			candidates = []tool{{
				name:  custom,
				needs: []string{custom},
				run: func(ctx context.Context, bins map[string]string, out string) error {
					return runQuiet(ctx, bins[custom], out)
				},
			}}
		}
	}
	for _, t := range candidates {
		bins := make(map[string]string, len(t.needs))
		for _, need := range t.needs {
			p, err := exec.LookPath(need)
			if err != nil {
				break
			}
			bins[need] = p
		}
		if len(bins) == len(t.needs) {
			return t, bins, nil
		}
	}
	if c.preferred != "" {
		return tool{}, nil, fmt.Errorf("%w: %s", ErrNoCaptureTool, c.preferred)
	}
	return tool{}, nil, ErrNoCaptureTool
}

// Tool reports which tool Capture would use.
func (c *Capturer) Tool() (string, error) {
	t, _, err := c.detect()
	return t.name, err
}

// Capture returns nil without an error when the user aborted the selection
// or the tool left no usable image behind.
func (c *Capturer) Capture(ctx context.Context) (*models.Artifact, error) {
	t, bins, err := c.detect()
	if err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(c.dir, models.TempPrefix+"capture-*.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	out := f.Name()
	f.Close()
	// some tools refuse to overwrite an existing file
	os.Remove(out)

	c.logger.Debug("capturing", "tool", t.name, "out", out)
	if err := t.run(ctx, bins, out); err != nil {
		c.discard(out)
		c.logger.Info("capture cancelled", "tool", t.name, "reason", err)
		return nil, nil
	}
	if err := validate(out); err != nil {
		c.discard(out)
		c.logger.Info("capture produced no image", "tool", t.name, "reason", err)
		return nil, nil
	}
	a, err := models.NewArtifact(out, models.ArtifactImage)
	if err != nil {
		c.discard(out)
		return nil, err
	}
	a.Source = t.name
	c.logger.Info("region captured", "tool", t.name, "path", a.Path, "size", a.Size)
	return a, nil
}

func validate(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return fmt.Errorf("not an image: %w", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return models.ErrEmptyArtifact
	}
	return nil
}

func (c *Capturer) discard(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("failed to remove capture", "path", path, "error", err)
	}
}
