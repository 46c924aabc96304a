package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

type ArtifactKind string

const (
	ArtifactImage ArtifactKind = "image"
	ArtifactAudio ArtifactKind = "audio"
)

var ErrEmptyArtifact = errors.New("artifact is empty")

// Artifact is a temp file produced by one pipeline stage and consumed by the next.
type Artifact struct {
	Path string
	Size int64
	Kind ArtifactKind
	// producer name, e.g. "grim" or "piper"
	Source string
}

// NewArtifact stats the file at path; the path is made absolute.
func NewArtifact(path string, kind ArtifactKind) (*Artifact, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat artifact: %w", err)
	}
	return &Artifact{Path: abs, Size: info.Size(), Kind: kind}, nil
}

// Valid reports whether the artifact can be handed to the next stage.
func (a *Artifact) Valid() bool {
	return a != nil && a.Path != "" && a.Size > 0
}

func (a *Artifact) Ext() string {
	return filepath.Ext(a.Path)
}

func (a *Artifact) String() string {
	if a == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s:%s (%d bytes)", a.Kind, a.Path, a.Size)
}
