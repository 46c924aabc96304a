package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"amd-helper/audio"
	"amd-helper/config"
	"amd-helper/models"
	"amd-helper/notify"
	"amd-helper/pipeline"
	"amd-helper/storage"
	"amd-helper/tts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingCapturer holds the run in the capture stage until released or cancelled.
type blockingCapturer struct {
	entered chan struct{}
	release chan struct{}
}

func (c *blockingCapturer) Capture(ctx context.Context) (*models.Artifact, error) {
	if c.entered != nil {
		c.entered <- struct{}{}
	}
	select {
	case <-c.release:
	case <-ctx.Done():
	}
	return nil, nil
}

type nopRecognizer struct{}

func (nopRecognizer) Recognize(context.Context, *models.Artifact) (models.RecognitionResult, error) {
	return models.RecognitionResult{}, nil
}

type nopPlayer struct{}

func (nopPlayer) Play(*models.Artifact, *audio.CancelToken) error { return nil }
func (nopPlayer) Stop()                                           {}

func newTestServer(t *testing.T, capturer pipeline.Capturer) (*Server, *httptest.Server) {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := config.Default()
	c.ArtifactDir = t.TempDir()
	store, err := storage.NewProviderSQL(":memory:", quiet)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	orch := pipeline.New(quiet, c, capturer, nopRecognizer{}, nopPlayer{},
		pipeline.WithObserver(store),
		pipeline.WithSynthesizerFactory(func(*slog.Logger, *config.Config) tts.Synthesizer {
			return tts.NewChain(quiet, c.ArtifactDir)
		}))
	srv := NewServer(quiet, c, filepath.Join(t.TempDir(), "config.toml"), orch, store,
		notify.NewDesktop(quiet, "en", false))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func post(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPing(t *testing.T) {
	_, ts := newTestServer(t, &blockingCapturer{release: closed()})
	resp, err := http.Get(ts.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "pong", string(body))
}

func closed() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func TestTriggerAndBusy(t *testing.T) {
	capturer := &blockingCapturer{entered: make(chan struct{}, 1), release: make(chan struct{})}
	srv, ts := newTestServer(t, capturer)

	resp := post(t, ts.URL+"/trigger")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	<-capturer.entered

	resp = post(t, ts.URL+"/trigger")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var status statusResponse
	r, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer r.Body.Close()
	require.NoError(t, json.NewDecoder(r.Body).Decode(&status))
	assert.True(t, status.Busy)
	assert.Equal(t, config.EngineLocal, status.Engine)

	close(capturer.release)
	srv.runs.Wait()

	r2, err := http.Get(ts.URL + "/history?limit=5")
	require.NoError(t, err)
	defer r2.Body.Close()
	var runs []models.RunRecord
	require.NoError(t, json.NewDecoder(r2.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, models.OutcomeNoop, runs[0].Outcome)
}

func TestSimultaneousTriggersStartOneRun(t *testing.T) {
	capturer := &blockingCapturer{entered: make(chan struct{}, 8), release: make(chan struct{})}
	srv, ts := newTestServer(t, capturer)

	const n = 8
	codes := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(ts.URL+"/trigger", "application/json", nil)
			if err != nil {
				codes <- 0
				return
			}
			resp.Body.Close()
			codes <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(codes)
	accepted, conflicts := 0, 0
	for code := range codes {
		switch code {
		case http.StatusAccepted:
			accepted++
		case http.StatusConflict:
			conflicts++
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, n-1, conflicts)

	close(capturer.release)
	srv.runs.Wait()
	runs, err := srv.store.ListRuns(10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestCancelEndpoint(t *testing.T) {
	capturer := &blockingCapturer{entered: make(chan struct{}, 1), release: make(chan struct{})}
	defer close(capturer.release)
	srv, ts := newTestServer(t, capturer)

	var idle map[string]bool
	require.NoError(t, json.NewDecoder(post(t, ts.URL+"/cancel").Body).Decode(&idle))
	assert.False(t, idle["cancelled"])

	post(t, ts.URL+"/trigger")
	<-capturer.entered
	var got map[string]bool
	require.NoError(t, json.NewDecoder(post(t, ts.URL+"/cancel").Body).Decode(&got))
	assert.True(t, got["cancelled"])

	done := make(chan struct{})
	go func() { srv.runs.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
	runs, err := srv.store.ListRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.OutcomeCancelled, runs[0].Outcome)
}

func TestEngineEndpoint(t *testing.T) {
	srv, ts := newTestServer(t, &blockingCapturer{release: closed()})

	resp := post(t, ts.URL+"/engine?name=bogus")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, ts.URL+"/engine?name="+config.EngineOnline+"&provider="+config.ProviderKokoro)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, config.EngineOnline, status.Engine)
	assert.Equal(t, config.ProviderKokoro, status.Provider)
	assert.Equal(t, config.EngineOnline, srv.orch.Engine())

	saved, err := config.LoadConfig(srv.cfgPath)
	require.NoError(t, err)
	assert.Equal(t, config.EngineOnline, saved.TTS_ENGINE)
	assert.Equal(t, config.ProviderKokoro, saved.TTS_ONLINE_PROVIDER)
}

func TestHistoryBadLimit(t *testing.T) {
	_, ts := newTestServer(t, &blockingCapturer{release: closed()})
	resp, err := http.Get(ts.URL + "/history?limit=abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHistoryDisabled(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := &Server{logger: quiet}
	rec := httptest.NewRecorder()
	srv.historyHandler(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPrintRuns(t *testing.T) {
	var buf bytes.Buffer
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	printRuns(&buf, []models.RunRecord{{
		StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond),
		Outcome: models.OutcomeCompleted, Lang: "en", TextLen: 11, Tier: "piper",
	}})
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "STARTED"))
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "1.5s")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}
