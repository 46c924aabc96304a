package audio

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"amd-helper/models"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPoll = 20 * time.Millisecond

// realtimeOutput drains the streamer at roughly real playback speed.
type realtimeOutput struct {
	mu    sync.Mutex
	inits atomic.Int32
	plays atomic.Int32
}

func (o *realtimeOutput) Init(sr beep.SampleRate) error {
	o.inits.Add(1)
	return nil
}

func (o *realtimeOutput) Play(s beep.Streamer) {
	o.plays.Add(1)
	go func() {
		buf := make([][2]float64, outputRate.N(10*time.Millisecond))
		for {
			time.Sleep(10 * time.Millisecond)
			o.mu.Lock()
			_, ok := s.Stream(buf)
			o.mu.Unlock()
			if !ok {
				return
			}
		}
	}()
}

func (o *realtimeOutput) Lock()   { o.mu.Lock() }
func (o *realtimeOutput) Unlock() { o.mu.Unlock() }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeSilence(t *testing.T, d time.Duration) *models.Artifact {
	t.Helper()
	format := beep.Format{SampleRate: 22050, NumChannels: 1, Precision: 2}
	path := filepath.Join(t.TempDir(), "speech.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, wav.Encode(f, beep.Silence(format.SampleRate.N(d)), format))
	require.NoError(t, f.Close())
	a, err := models.NewArtifact(path, models.ArtifactAudio)
	require.NoError(t, err)
	return a
}

func TestPlayNaturalCompletionResetsToken(t *testing.T) {
	out := &realtimeOutput{}
	p := NewPlayerWithOutput(testLogger(), out, testPoll)
	a := writeSilence(t, 150*time.Millisecond)
	tok := NewCancelToken()

	require.NoError(t, p.Play(a, tok))
	assert.False(t, tok.Cancelled())
	assert.Equal(t, int32(1), out.plays.Load())
}

func TestPlayCancelReturnsWithinPollInterval(t *testing.T) {
	p := NewPlayerWithOutput(testLogger(), &realtimeOutput{}, testPoll)
	a := writeSilence(t, 2*time.Second)
	tok := NewCancelToken()

	var cancelledAt time.Time
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancelledAt = time.Now()
		tok.Cancel()
	}()
	start := time.Now()
	require.NoError(t, p.Play(a, tok))
	elapsed := time.Since(start)
	assert.Less(t, elapsed, time.Second, "play should not wait for natural completion")
	assert.Less(t, time.Since(cancelledAt), testPoll+200*time.Millisecond)
}

func TestPlayStopFromAnotherGoroutine(t *testing.T) {
	p := NewPlayerWithOutput(testLogger(), &realtimeOutput{}, testPoll)
	a := writeSilence(t, 2*time.Second)

	go func() {
		time.Sleep(100 * time.Millisecond)
		p.Stop()
	}()
	start := time.Now()
	require.NoError(t, p.Play(a, NewCancelToken()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestPlaySkipsInvalidArtifacts(t *testing.T) {
	out := &realtimeOutput{}
	p := NewPlayerWithOutput(testLogger(), out, testPoll)
	empty := filepath.Join(t.TempDir(), "empty.wav")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	cases := []*models.Artifact{
		nil,
		{Path: filepath.Join(t.TempDir(), "missing.wav"), Size: 10, Kind: models.ArtifactAudio},
		{Path: empty, Kind: models.ArtifactAudio},
	}
	for _, a := range cases {
		assert.NoError(t, p.Play(a, nil))
	}
	assert.Equal(t, int32(0), out.inits.Load())
}

func TestPlayRejectsUnknownFormat(t *testing.T) {
	p := NewPlayerWithOutput(testLogger(), &realtimeOutput{}, testPoll)
	path := filepath.Join(t.TempDir(), "speech.ogg")
	require.NoError(t, os.WriteFile(path, []byte("OggS"), 0o600))
	a, err := models.NewArtifact(path, models.ArtifactAudio)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Play(a, nil), ErrUnsupportedFormat)
}
