// Package pipeline sequences capture, recognition, synthesis and playback
// for one trigger at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"amd-helper/audio"
	"amd-helper/config"
	"amd-helper/models"
	"amd-helper/tts"

	"github.com/google/uuid"
)

var ErrPanic = errors.New("pipeline stage panicked")

type Capturer interface {
	Capture(ctx context.Context) (*models.Artifact, error)
}

type Recognizer interface {
	Recognize(ctx context.Context, a *models.Artifact) (models.RecognitionResult, error)
}

type Player interface {
	Play(a *models.Artifact, token *audio.CancelToken) error
	Stop()
}

// RunObserver receives the record of every finished run.
type RunObserver interface {
	RecordRun(rec *models.RunRecord) error
}

// SynthesizerFactory builds the synthesizer for a config.
type SynthesizerFactory func(logger *slog.Logger, cfg *config.Config) tts.Synthesizer

func DefaultSynthesizerFactory(logger *slog.Logger, cfg *config.Config) tts.Synthesizer {
	return tts.SelectSynthesizer(logger, cfg)
}

type Result struct {
	RunID   string
	Outcome models.Outcome
	// primary engine the run was started with
	Engine  string
	Lang    models.Lang
	TextLen int
	// tier that produced the audio
	Tier string
	Err  error
}

type engine struct {
	synth tts.Synthesizer
	cfg   *config.Config
}

type Orchestrator struct {
	logger     *slog.Logger
	capturer   Capturer
	recognizer Recognizer
	player     Player
	factory    SynthesizerFactory
	engine     atomic.Pointer[engine]
	observers  []RunObserver
	onFailure  func(Result)

	// token is non-nil exactly while a run holds the lock
	mu    sync.Mutex
	token *audio.CancelToken
}

type Option func(*Orchestrator)

func WithSynthesizerFactory(f SynthesizerFactory) Option {
	return func(o *Orchestrator) { o.factory = f }
}

func WithObserver(obs RunObserver) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// WithFailureHook is called after every failed run.
func WithFailureHook(f func(Result)) Option {
	return func(o *Orchestrator) { o.onFailure = f }
}

func New(logger *slog.Logger, cfg *config.Config, c Capturer, r Recognizer, p Player, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:     logger.With("component", "pipeline"),
		capturer:   c,
		recognizer: r,
		player:     p,
		factory:    DefaultSynthesizerFactory,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.Reconfigure(cfg)
	return o
}

// Reconfigure swaps in a synthesizer built from cfg. A run in flight keeps the one it started with.
func (o *Orchestrator) Reconfigure(cfg *config.Config) {
	cfg = cfg.Clone()
	o.engine.Store(&engine{synth: o.factory(o.logger, cfg), cfg: cfg})
	o.logger.Info("engine configured", "engine", cfg.TTS_ENGINE, "provider", cfg.TTS_ONLINE_PROVIDER)
}

// Engine returns the name of the configured primary engine.
func (o *Orchestrator) Engine() string {
	return o.engine.Load().cfg.TTS_ENGINE
}

func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.token != nil
}

// Cancel stops the current run at its next checkpoint and cuts playback. It is a no-op when idle.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	token := o.token
	o.mu.Unlock()
	if token == nil {
		return false
	}
	token.Cancel()
	o.player.Stop()
	o.logger.Info("run cancel requested")
	return true
}

// Run executes one capture → recognize → synthesize → play pass. An overlapping call
// returns OutcomeBusy without touching anything.
func (o *Orchestrator) Run(ctx context.Context) Result {
	run, ok := o.Start()
	if !ok {
		return Result{Outcome: models.OutcomeBusy}
	}
	return run(ctx)
}

// Start takes the run lock synchronously. When it succeeds the run is already
// cancellable, and the returned func must be called exactly once to execute it
// and release the lock.
func (o *Orchestrator) Start() (func(ctx context.Context) Result, bool) {
	token := audio.NewCancelToken()
	o.mu.Lock()
	if o.token != nil {
		o.mu.Unlock()
		o.logger.Info("trigger ignored, a run is in progress")
		return nil, false
	}
	o.token = token
	o.mu.Unlock()
	eng := o.engine.Load()
	return func(ctx context.Context) Result {
		return o.execute(ctx, eng, token)
	}, true
}

func (o *Orchestrator) execute(ctx context.Context, eng *engine, token *audio.CancelToken) (res Result) {
	defer func() {
		o.mu.Lock()
		o.token = nil
		o.mu.Unlock()
	}()

	started := time.Now()
	res.RunID = uuid.NewString()
	res.Engine = eng.cfg.TTS_ENGINE
	logger := o.logger.With("run", res.RunID)
	runCtx, stop := token.Context(ctx)
	artifacts := newArtifactSet(logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("stage panicked", "panic", r)
			res.Outcome = models.OutcomeFailed
			res.Err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		stop()
		removed := artifacts.releaseAll()
		logger.Debug("run cleaned up", "removed", removed)
		o.finish(logger, res, started)
	}()

	res = o.stages(runCtx, logger, eng, token, artifacts, res)
	return res
}

func (o *Orchestrator) stages(ctx context.Context, logger *slog.Logger, eng *engine, token *audio.CancelToken,
	artifacts *artifactSet, res Result) Result {
	cancelled := func(stage string) Result {
		logger.Info("run cancelled", "stage", stage)
		res.Outcome = models.OutcomeCancelled
		return res
	}
	failed := func(stage string, err error) Result {
		logger.Error("run failed", "stage", stage, "error", err)
		res.Outcome = models.OutcomeFailed
		res.Err = fmt.Errorf("%s: %w", stage, err)
		return res
	}
	if ctx.Err() != nil || token.Cancelled() {
		return cancelled("start")
	}

	img, err := o.capturer.Capture(ctx)
	artifacts.track(img)
	switch {
	case ctx.Err() != nil || token.Cancelled():
		return cancelled("capture")
	case err != nil:
		return failed("capture", err)
	case !img.Valid():
		logger.Info("capture cancelled by user, nothing to read")
		res.Outcome = models.OutcomeNoop
		return res
	}

	rec, err := o.recognizer.Recognize(ctx, img)
	artifacts.release(img)
	switch {
	case ctx.Err() != nil || token.Cancelled():
		return cancelled("recognize")
	case err != nil:
		return failed("recognize", err)
	case rec.Empty():
		logger.Info("no text recognized")
		res.Outcome = models.OutcomeNoop
		return res
	}
	res.Lang = rec.Lang
	res.TextLen = len([]rune(rec.Text))
	logger.Info("text ready", "lang", rec.Lang, "chars", res.TextLen)

	speech, err := eng.synth.Synthesize(ctx, rec.Text, rec.Lang)
	artifacts.track(speech)
	switch {
	case ctx.Err() != nil || token.Cancelled() || errors.Is(err, tts.ErrCancelled):
		return cancelled("synthesize")
	case err != nil:
		return failed("synthesize", err)
	case speech == nil:
		return failed("synthesize", tts.ErrEmptyOutput)
	}
	res.Tier = speech.Source

	err = o.player.Play(speech, token)
	switch {
	case token.Cancelled():
		return cancelled("play")
	case err != nil:
		return failed("play", err)
	}
	res.Outcome = models.OutcomeCompleted
	logger.Info("run completed", "tier", res.Tier)
	return res
}

func (o *Orchestrator) finish(logger *slog.Logger, res Result, started time.Time) {
	rec := &models.RunRecord{
		ID:         res.RunID,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Outcome:    res.Outcome,
		Lang:       string(res.Lang),
		TextLen:    res.TextLen,
		Tier:       res.Tier,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	for _, obs := range o.observers {
		if err := obs.RecordRun(rec); err != nil {
			logger.Warn("failed to record run", "error", err)
		}
	}
	if res.Outcome == models.OutcomeFailed && o.onFailure != nil {
		o.onFailure(res)
	}
}
