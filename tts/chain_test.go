package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"amd-helper/config"
	"amd-helper/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTier struct {
	name  string
	calls atomic.Int32
	run   func(ctx context.Context, outPath string) error

	mu    sync.Mutex
	texts []string
	langs []models.Lang
}

func (f *fakeTier) Name() string { return f.name }
func (f *fakeTier) Ext() string  { return ".wav" }

func (f *fakeTier) Synthesize(ctx context.Context, text string, lang models.Lang, outPath string) error {
	f.calls.Add(1)
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.langs = append(f.langs, lang)
	f.mu.Unlock()
	return f.run(ctx, outPath)
}

func writes(data string) func(context.Context, string) error {
	return func(_ context.Context, p string) error {
		return os.WriteFile(p, []byte(data), 0o600)
	}
}

func fails(err error) func(context.Context, string) error {
	return func(context.Context, string) error { return err }
}

func tempFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, models.TempPrefix+"*"))
	require.NoError(t, err)
	return matches
}

func TestChainFirstTierWins(t *testing.T) {
	dir := t.TempDir()
	t1 := &fakeTier{name: "t1", run: writes("RIFF-one")}
	t2 := &fakeTier{name: "t2", run: writes("RIFF-two")}
	chain := NewChain(testLogger(), dir, t1, t2)

	a, err := chain.Synthesize(context.Background(), "hello", models.LangEN)
	require.NoError(t, err)
	assert.Equal(t, "t1", a.Source)
	assert.EqualValues(t, 1, t1.calls.Load())
	assert.EqualValues(t, 0, t2.calls.Load())
	data, err := os.ReadFile(a.Path)
	require.NoError(t, err)
	assert.Equal(t, "RIFF-one", string(data))
}

func TestChainFallsThroughInOrder(t *testing.T) {
	dir := t.TempDir()
	t1 := &fakeTier{name: "online", run: fails(errors.New("network down"))}
	t2 := &fakeTier{name: "local", run: writes("RIFF")}
	t3 := &fakeTier{name: "minimal", run: writes("RIFF")}
	chain := NewChain(testLogger(), dir, t1, t2, t3)

	a, err := chain.Synthesize(context.Background(), "hello", models.LangEN)
	require.NoError(t, err)
	assert.Equal(t, "local", a.Source)
	assert.EqualValues(t, 1, t1.calls.Load())
	assert.EqualValues(t, 1, t2.calls.Load())
	assert.EqualValues(t, 0, t3.calls.Load())
	// only the winning artifact is left behind
	assert.Equal(t, []string{a.Path}, tempFiles(t, dir))
}

func TestChainFallthroughKeepsTextAndLanguage(t *testing.T) {
	cases := []struct {
		text string
		tag  models.Lang
		want models.Lang
	}{
		{text: "Hello world", tag: models.LangEN, want: models.LangEN},
		{text: "Hello world", tag: models.Lang("en-US"), want: models.LangEN},
		{text: "你好，世界", tag: models.Lang("zh_TW"), want: models.LangZH},
		{text: "bonjour", tag: models.Lang("FR"), want: models.Lang("fr")},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprintf("run_%d", i), func(t *testing.T) {
			t1 := &fakeTier{name: "online", run: fails(errors.New("network down"))}
			t2 := &fakeTier{name: "local", run: fails(ErrModelNotFound)}
			t3 := &fakeTier{name: "minimal", run: writes("RIFF")}
			chain := NewChain(testLogger(), t.TempDir(), t1, t2, t3)

			_, err := chain.Synthesize(context.Background(), tc.text, tc.tag)
			require.NoError(t, err)
			for _, tier := range []*fakeTier{t1, t2, t3} {
				assert.Equal(t, []string{tc.text}, tier.texts, tier.name)
				assert.Equal(t, []models.Lang{tc.want}, tier.langs, tier.name)
			}
		})
	}
}

func TestChainRemovesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	partial := func(_ context.Context, p string) error {
		if err := os.WriteFile(p, []byte("half"), 0o600); err != nil {
			return err
		}
		return errors.New("engine crashed")
	}
	t1 := &fakeTier{name: "t1", run: partial}
	t2 := &fakeTier{name: "t2", run: partial}
	chain := NewChain(testLogger(), dir, t1, t2)

	_, err := chain.Synthesize(context.Background(), "hello", models.LangEN)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, exhausted.Failures, 2)
	assert.Equal(t, "t1", exhausted.Failures[0].Tier)
	assert.Empty(t, tempFiles(t, dir))
}

func TestChainEmptyOutputFallsThrough(t *testing.T) {
	dir := t.TempDir()
	t1 := &fakeTier{name: "t1", run: writes("")}
	t2 := &fakeTier{name: "t2", run: writes("RIFF")}
	chain := NewChain(testLogger(), dir, t1, t2)

	a, err := chain.Synthesize(context.Background(), "hello", models.LangEN)
	require.NoError(t, err)
	assert.Equal(t, "t2", a.Source)
}

func TestChainPanicFallsThrough(t *testing.T) {
	dir := t.TempDir()
	t1 := &fakeTier{name: "t1", run: func(context.Context, string) error { panic("boom") }}
	t2 := &fakeTier{name: "t2", run: writes("RIFF")}
	chain := NewChain(testLogger(), dir, t1, t2)

	a, err := chain.Synthesize(context.Background(), "hello", models.LangEN)
	require.NoError(t, err)
	assert.Equal(t, "t2", a.Source)
	assert.Equal(t, []string{a.Path}, tempFiles(t, dir))
}

func TestChainCancelIsTerminal(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	t1 := &fakeTier{name: "t1", run: func(context.Context, string) error {
		cancel()
		return errors.New("interrupted")
	}}
	t2 := &fakeTier{name: "t2", run: writes("RIFF")}
	chain := NewChain(testLogger(), dir, t1, t2)

	_, err := chain.Synthesize(ctx, "hello", models.LangEN)
	require.ErrorIs(t, err, ErrCancelled)
	assert.EqualValues(t, 0, t2.calls.Load())
	assert.Empty(t, tempFiles(t, dir))
}

func TestChainAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	t1 := &fakeTier{name: "t1", run: writes("RIFF")}
	chain := NewChain(testLogger(), t.TempDir(), t1)

	_, err := chain.Synthesize(ctx, "hello", models.LangEN)
	require.ErrorIs(t, err, ErrCancelled)
	assert.EqualValues(t, 0, t1.calls.Load())
}

func TestChainNoTiers(t *testing.T) {
	_, err := NewChain(testLogger(), t.TempDir()).Synthesize(context.Background(), "x", models.LangEN)
	assert.ErrorIs(t, err, ErrNoTiers)
}

func TestSelectSynthesizer(t *testing.T) {
	cases := []struct {
		engine   string
		provider string
		want     []string
	}{
		{engine: config.EngineOnline, provider: config.ProviderGoogle, want: []string{"google", "piper", "espeak"}},
		{engine: config.EngineOnline, provider: config.ProviderKokoro, want: []string{"kokoro", "piper", "espeak"}},
		{engine: config.EngineLocal, want: []string{"piper", "espeak"}},
		{engine: "nonsense", want: []string{"piper", "espeak"}},
		{engine: "", want: []string{"piper", "espeak"}},
	}
	for _, tc := range cases {
		t.Run(tc.engine+"/"+tc.provider, func(t *testing.T) {
			cfg := config.Default()
			cfg.ArtifactDir = t.TempDir()
			cfg.TTS_ENGINE = tc.engine
			cfg.TTS_ONLINE_PROVIDER = tc.provider
			chain := SelectSynthesizer(testLogger(), cfg)
			assert.Equal(t, tc.want, chain.Names())
		})
	}
}

func TestExhaustedErrorUnwrap(t *testing.T) {
	err := &ExhaustedError{Failures: []TierError{
		{Tier: "piper", Err: ErrModelNotFound},
		{Tier: "espeak", Err: ErrBinaryNotFound},
	}}
	assert.ErrorIs(t, err, ErrModelNotFound)
	assert.ErrorIs(t, err, ErrBinaryNotFound)
	assert.True(t, strings.HasPrefix(err.Error(), "all tts tiers failed"))
}
