package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/petems/voxgate/internal/audio"
	"github.com/petems/voxgate/internal/config"
	"github.com/petems/voxgate/internal/control"
	"github.com/petems/voxgate/internal/hotkey"
	"github.com/petems/voxgate/internal/recorder"
	"github.com/petems/voxgate/internal/transcribe"
)

type fakeTranscriber struct {
	mu     sync.Mutex
	text   string
	err    error
	paths  []string
	onCall func()
}

func (f *fakeTranscriber) Transcribe(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	f.paths = append(f.paths, path)
	on := f.onCall
	f.mu.Unlock()

	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	if on != nil {
		on()
	}
	return f.text, f.err
}

func (f *fakeTranscriber) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.paths)
}

type fakeReplier struct {
	answer string
	got    []string
}

func (f *fakeReplier) Reply(_ context.Context, text string) (string, error) {
	f.got = append(f.got, text)
	return f.answer, nil
}

type fakeInjector struct {
	got []string
}

func (f *fakeInjector) Deliver(_ context.Context, text string) error {
	f.got = append(f.got, text)
	return nil
}

type fakeControls struct {
	ch chan hotkey.Event
}

func (f *fakeControls) Events() <-chan hotkey.Event { return f.ch }

func writeSpeech(t *testing.T, speech time.Duration) string {
	t.Helper()
	samples := make([]int, int(speech.Seconds()*16000))
	for i := range samples {
		samples[i] = 8000
	}

	path := filepath.Join(t.TempDir(), "speech.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           samples,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Capture.Backend = "replay"
	cfg.Capture.ReplayFile = writeSpeech(t, 600*time.Millisecond)
	cfg.Capture.Realtime = false
	cfg.Capture.OutputDir = t.TempDir()
	cfg.Capture.MinSpeechMs = 90
	cfg.Capture.SilenceHangMs = 300
	cfg.Capture.MaxDurationMs = 5000
	cfg.Capture.MinRecordingMs = 100
	cfg.Capture.Threshold = 0.05
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, c Config) *App {
	t.Helper()
	backend, err := NewBackend(cfg.Capture, zerolog.Nop())
	require.NoError(t, err)
	c.Config = cfg
	c.Backend = backend
	c.Logger = zerolog.Nop()
	return New(c)
}

func recordings(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.wav"))
	require.NoError(t, err)
	return matches
}

func TestOnceTranscribesRepliesAndDelivers(t *testing.T) {
	cfg := testConfig(t)
	stt := &fakeTranscriber{text: "turn on the lights"}
	rep := &fakeReplier{answer: "Done."}
	inj := &fakeInjector{}
	var out bytes.Buffer

	a := newTestApp(t, cfg, Config{Transcriber: stt, Replier: rep, Injector: inj, Out: &out})

	res, err := a.Once(context.Background())
	require.NoError(t, err)
	require.Equal(t, recorder.Completed, res.Outcome.Kind)
	require.Equal(t, control.SilenceTimeout, res.Outcome.Reason)
	require.Equal(t, "turn on the lights", res.Transcript)
	require.Equal(t, "Done.", res.Reply)

	require.Equal(t, 1, stt.calls())
	require.Equal(t, []string{"turn on the lights"}, rep.got)
	require.Equal(t, []string{"Done."}, inj.got)
	require.Equal(t, "You: turn on the lights\nAssistant: Done.\n", out.String())
	require.Empty(t, recordings(t, cfg.Capture.OutputDir))
}

func TestOnceWithoutTranscriberKeepsRecording(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	a := newTestApp(t, cfg, Config{Out: &out})

	res, err := a.Once(context.Background())
	require.NoError(t, err)
	require.Equal(t, recorder.Completed, res.Outcome.Kind)
	require.FileExists(t, res.Outcome.Path())
	require.Contains(t, out.String(), "Saved "+res.Outcome.Path())
}

func TestOnceKeepsRecordingWhenConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Keep = true
	stt := &fakeTranscriber{text: "hello"}
	a := newTestApp(t, cfg, Config{Transcriber: stt})

	res, err := a.Once(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hello", res.Transcript)
	require.FileExists(t, res.Outcome.Path())
}

func TestTranscribeErrorKeepsRecording(t *testing.T) {
	cfg := testConfig(t)
	boom := errors.New("service unavailable")
	inj := &fakeInjector{}
	a := newTestApp(t, cfg, Config{Transcriber: &fakeTranscriber{err: boom}, Injector: inj})

	res, err := a.Once(context.Background())
	require.ErrorIs(t, err, boom)
	require.FileExists(t, res.Outcome.Path())
	require.Empty(t, inj.got)
}

func TestEmptyTranscriptIsNotDelivered(t *testing.T) {
	cfg := testConfig(t)
	rep := &fakeReplier{answer: "unused"}
	inj := &fakeInjector{}
	a := newTestApp(t, cfg, Config{Transcriber: &fakeTranscriber{}, Replier: rep, Injector: inj})

	res, err := a.Once(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.Transcript)
	require.Empty(t, rep.got)
	require.Empty(t, inj.got)
}

func TestPermissionFailureIsReported(t *testing.T) {
	cfg := testConfig(t)
	denied := errors.New("microphone access denied")
	a := newTestApp(t, cfg, Config{Permissions: func() error { return denied }})

	res, err := a.Once(context.Background())
	require.ErrorIs(t, err, denied)
	require.Equal(t, recorder.Failed, res.Outcome.Kind)
	require.Empty(t, recordings(t, cfg.Capture.OutputDir))
}

func TestListenStopsWhenContextCancelled(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stt := &fakeTranscriber{text: "first", onCall: cancel}
	var out bytes.Buffer
	a := newTestApp(t, cfg, Config{Transcriber: stt, Out: &out})

	done := make(chan error, 1)
	go func() { done <- a.Listen(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Listen did not return")
	}
	require.Equal(t, 1, stt.calls())
	require.Contains(t, out.String(), "You: first")
}

func waitForRecording(t *testing.T, a *App) *recorder.Controller {
	t.Helper()
	var ctrl *recorder.Controller
	require.Eventually(t, func() bool {
		ctrl = a.active()
		return ctrl != nil && ctrl.State() == recorder.StateWaiting
	}, 2*time.Second, 5*time.Millisecond)
	return ctrl
}

func TestToggleStartsManualRecording(t *testing.T) {
	cfg := testConfig(t)
	cfg.Capture.AutoStart = false
	controls := &fakeControls{ch: make(chan hotkey.Event, 1)}
	stt := &fakeTranscriber{text: "manual"}
	a := newTestApp(t, cfg, Config{Transcriber: stt, Controls: controls})

	done := make(chan error, 1)
	var res Result
	go func() {
		var err error
		res, err = a.Once(context.Background())
		done <- err
	}()

	waitForRecording(t, a)
	controls.ch <- hotkey.Toggle

	require.NoError(t, <-done)
	require.Equal(t, recorder.Completed, res.Outcome.Kind)
	require.Equal(t, "manual", res.Transcript)
}

func TestCancelWhileWaitingSkipsCapture(t *testing.T) {
	cfg := testConfig(t)
	cfg.Capture.AutoStart = false
	controls := &fakeControls{ch: make(chan hotkey.Event, 1)}
	stt := &fakeTranscriber{text: "never"}
	a := newTestApp(t, cfg, Config{Transcriber: stt, Controls: controls})

	done := make(chan error, 1)
	var res Result
	go func() {
		var err error
		res, err = a.Once(context.Background())
		done <- err
	}()

	waitForRecording(t, a)
	controls.ch <- hotkey.Cancel

	require.NoError(t, <-done)
	require.Equal(t, recorder.Cancelled, res.Outcome.Kind)
	require.Equal(t, control.Cancel, res.Outcome.Reason)
	require.Zero(t, stt.calls())
	require.Nil(t, a.active())
}

func TestDevicesListsReplayFile(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg, Config{})

	devices, err := a.Devices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, "speech.wav", devices[0].Name)
}

func TestNewBackend(t *testing.T) {
	cfg := config.Default().Capture

	for _, name := range []string{"portaudio", "pulse"} {
		cfg.Backend = name
		b, err := NewBackend(cfg, zerolog.Nop())
		require.NoError(t, err)
		require.Equal(t, name, b.Name())
	}

	cfg.Backend = "replay"
	_, err := NewBackend(cfg, zerolog.Nop())
	require.Error(t, err)

	cfg.ReplayFile = "speech.wav"
	b, err := NewBackend(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.IsType(t, &audio.Replay{}, b)

	cfg.Backend = "alsa"
	_, err = NewBackend(cfg, zerolog.Nop())
	require.Error(t, err)
}

func TestNewTranscriber(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default().Transcribe

	cfg.Engine = "none"
	stt, closeFn, err := NewTranscriber(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	require.Nil(t, stt)
	require.NoError(t, closeFn())

	cfg.Engine = "openai"
	stt, _, err = NewTranscriber(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	require.IsType(t, &transcribe.OpenAI{}, stt)

	cfg.Engine = "server"
	cfg.ServerURL = "http://127.0.0.1:8080"
	stt, _, err = NewTranscriber(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	require.IsType(t, &transcribe.Server{}, stt)

	cfg.Engine = "whisperx"
	_, _, err = NewTranscriber(ctx, cfg, zerolog.Nop())
	require.Error(t, err)
}

func TestNewReplier(t *testing.T) {
	cfg := config.Default().Reply

	r, err := NewReplier(cfg)
	require.NoError(t, err)
	require.Nil(t, r)

	cfg.Enabled = true
	r, err = NewReplier(cfg)
	require.NoError(t, err)
	require.NotNil(t, r)
}
