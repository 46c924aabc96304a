package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"amd-helper/models"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
)

const (
	DefaultPollInterval = 50 * time.Millisecond
	outputRate          = beep.SampleRate(44100)
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Output is where decoded audio goes; the speaker in production.
type Output interface {
	Init(sr beep.SampleRate) error
	Play(s beep.Streamer)
	Lock()
	Unlock()
}

// speakerOutput initializes the speaker once; beep refuses a second Init.
type speakerOutput struct {
	once sync.Once
	err  error
}

func (o *speakerOutput) Init(sr beep.SampleRate) error {
	o.once.Do(func() {
		o.err = speaker.Init(sr, sr.N(time.Second/10))
	})
	return o.err
}

func (o *speakerOutput) Play(s beep.Streamer) { speaker.Play(s) }
func (o *speakerOutput) Lock()                { speaker.Lock() }
func (o *speakerOutput) Unlock()              { speaker.Unlock() }

type Player struct {
	logger  *slog.Logger
	out     Output
	poll    time.Duration
	stopped atomic.Bool
	mu      sync.Mutex
	current *beep.Ctrl
}

func NewPlayer(logger *slog.Logger, poll time.Duration) *Player {
	return NewPlayerWithOutput(logger, &speakerOutput{}, poll)
}

func NewPlayerWithOutput(logger *slog.Logger, out Output, poll time.Duration) *Player {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Player{
		logger: logger.With("component", "player"),
		out:    out,
		poll:   poll,
	}
}

// Play blocks until the artifact finished playing, the token is cancelled or Stop is called.
// A missing or empty file is skipped with a warning.
func (p *Player) Play(a *models.Artifact, token *CancelToken) error {
	if token == nil {
		token = NewCancelToken()
	}
	if a == nil || a.Path == "" {
		p.logger.Warn("no audio to play")
		return nil
	}
	info, err := os.Stat(a.Path)
	if err != nil || info.Size() == 0 {
		p.logger.Warn("audio file missing or empty, skipping playback", "path", a.Path)
		return nil
	}
	if token.Cancelled() {
		return nil
	}
	f, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("failed to open audio: %w", err)
	}
	defer f.Close()
	streamer, format, err := decode(f, a.Path)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", a.Path, err)
	}
	defer streamer.Close()
	if err := p.out.Init(outputRate); err != nil {
		return fmt.Errorf("failed to init speaker: %w", err)
	}
	var s beep.Streamer = streamer
	if format.SampleRate != outputRate {
		s = beep.Resample(4, format.SampleRate, outputRate, streamer)
	}
	done := make(chan struct{})
	ctrl := &beep.Ctrl{Streamer: beep.Seq(s, beep.Callback(func() {
		close(done)
	}))}
	p.stopped.Store(false)
	p.mu.Lock()
	p.current = ctrl
	p.mu.Unlock()
	p.logger.Debug("playing", "path", a.Path, "sample_rate", format.SampleRate, "channels", format.NumChannels)
	p.out.Play(ctrl)
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			p.release(ctrl)
			if err := streamer.Err(); err != nil {
				return fmt.Errorf("playback failed: %w", err)
			}
			token.Reset()
			p.logger.Debug("playback finished", "path", a.Path)
			return nil
		case <-token.Done():
			p.halt(ctrl)
			p.logger.Info("playback cancelled", "path", a.Path)
			return nil
		case <-ticker.C:
			if token.Cancelled() || p.stopped.Load() {
				p.halt(ctrl)
				p.logger.Info("playback stopped", "path", a.Path)
				return nil
			}
		}
	}
}

// Stop cuts the current playback; the waiting Play returns within one poll interval.
func (p *Player) Stop() {
	p.stopped.Store(true)
	p.mu.Lock()
	ctrl := p.current
	p.mu.Unlock()
	if ctrl != nil {
		p.halt(ctrl)
	}
}

func (p *Player) halt(ctrl *beep.Ctrl) {
	p.out.Lock()
	ctrl.Paused = true
	ctrl.Streamer = nil
	p.out.Unlock()
	p.release(ctrl)
}

func (p *Player) release(ctrl *beep.Ctrl) {
	p.mu.Lock()
	if p.current == ctrl {
		p.current = nil
	}
	p.mu.Unlock()
}

func decode(f *os.File, path string) (beep.StreamSeekCloser, beep.Format, error) {
	switch {
	case strings.HasSuffix(strings.ToLower(path), models.AFMP3.Ext()):
		return mp3.Decode(f)
	case strings.HasSuffix(strings.ToLower(path), models.AFWAV.Ext()):
		return wav.Decode(f)
	}
	return nil, beep.Format{}, ErrUnsupportedFormat
}
