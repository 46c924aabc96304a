package pipeline

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"amd-helper/models"
)

// artifactSet tracks every file a run produced so it can be removed on any exit path.
type artifactSet struct {
	logger *slog.Logger
	mu     sync.Mutex
	paths  map[string]models.ArtifactKind
}

func newArtifactSet(logger *slog.Logger) *artifactSet {
	return &artifactSet{logger: logger, paths: make(map[string]models.ArtifactKind)}
}

func (s *artifactSet) track(a *models.Artifact) {
	if a == nil || a.Path == "" {
		return
	}
	s.mu.Lock()
	s.paths[a.Path] = a.Kind
	s.mu.Unlock()
}

// release removes one artifact early, e.g. the screenshot once OCR is done.
func (s *artifactSet) release(a *models.Artifact) {
	if a == nil {
		return
	}
	s.mu.Lock()
	delete(s.paths, a.Path)
	s.mu.Unlock()
	s.remove(a.Path)
}

// releaseAll removes everything still tracked; missing files are ignored.
func (s *artifactSet) releaseAll() int {
	s.mu.Lock()
	paths := s.paths
	s.paths = make(map[string]models.ArtifactKind)
	s.mu.Unlock()
	for p := range paths {
		s.remove(p)
	}
	return len(paths)
}

func (s *artifactSet) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove artifact", "path", path, "error", err)
	}
}

// SweepStale removes leftovers of runs that died with the process.
func SweepStale(logger *slog.Logger, dir string, olderThan time.Duration) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("failed to list artifact dir", "dir", dir, "error", err)
		return 0
	}
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), models.TempPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if err := os.Remove(p); err != nil {
			logger.Warn("failed to remove stale artifact", "path", p, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("removed stale artifacts", "dir", dir, "count", removed)
	}
	return removed
}
