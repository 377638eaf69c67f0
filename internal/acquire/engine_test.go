package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/ines/audigest/internal/apperr"
	"github.com/ines/audigest/internal/domain"
	"github.com/ines/audigest/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Output: io.Discard})
}

type stubStrategy struct {
	name  string
	err   error
	asset *Asset
	calls int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Attempt(ctx context.Context, rawURL, workDir string) (*Asset, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.asset, nil
}

func newTestEngine(t *testing.T, chain ...Strategy) *Engine {
	t.Helper()
	return &Engine{
		videoChain: chain,
		timeout:    5 * time.Second,
		workDir:    t.TempDir(),
		log:        testLogger(),
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantKind domain.SourceKind
		wantErr  bool
	}{
		{name: "youtube watch", url: "https://www.youtube.com/watch?v=abc123", wantKind: domain.SourceKindVideo},
		{name: "youtube short link", url: "https://youtu.be/abc123", wantKind: domain.SourceKindVideo},
		{name: "youtube music subdomain", url: "https://music.youtube.com/watch?v=abc123", wantKind: domain.SourceKindVideo},
		{name: "apple podcasts", url: "https://podcasts.apple.com/us/podcast/some-show/id1516093381?i=1000700775714", wantKind: domain.SourceKindPodcast},
		{name: "unknown host", url: "https://example.com/audio.mp3", wantErr: true},
		{name: "not a url", url: "not a url at all", wantErr: true},
		{name: "ftp scheme", url: "ftp://youtube.com/video", wantErr: true},
		{name: "empty", url: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := Classify(tt.url)
			if tt.wantErr {
				if !errors.Is(err, apperr.ErrUnsupportedSource) {
					t.Fatalf("expected ErrUnsupportedSource, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if kind != tt.wantKind {
				t.Errorf("expected kind %q, got %q", tt.wantKind, kind)
			}
		})
	}
}

func TestAcquireFallsThroughToLaterStrategy(t *testing.T) {
	first := &stubStrategy{name: "first", err: fmt.Errorf("blocked")}
	second := &stubStrategy{name: "second", err: fmt.Errorf("also blocked")}
	third := &stubStrategy{name: "third", asset: &Asset{Path: "episode.mp3", Title: "ok"}}
	engine := newTestEngine(t, first, second, third)

	asset, err := engine.Acquire(context.Background(), "https://youtu.be/abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer asset.Release()

	if asset.Title != "ok" {
		t.Errorf("expected asset from third strategy, got title %q", asset.Title)
	}
	if asset.Kind != domain.SourceKindVideo {
		t.Errorf("expected video kind, got %q", asset.Kind)
	}
	if first.calls != 1 || second.calls != 1 || third.calls != 1 {
		t.Errorf("expected each strategy called once, got %d/%d/%d", first.calls, second.calls, third.calls)
	}
}

func TestAcquireAggregatesAllFailures(t *testing.T) {
	first := &stubStrategy{name: "first", err: fmt.Errorf("bot check")}
	second := &stubStrategy{name: "second", err: fmt.Errorf("rate limited")}
	engine := newTestEngine(t, first, second)

	_, err := engine.Acquire(context.Background(), "https://youtu.be/abc123")

	var acq *apperr.AcquisitionError
	if !errors.As(err, &acq) {
		t.Fatalf("expected AcquisitionError, got %v", err)
	}
	if len(acq.Failures) != 2 {
		t.Fatalf("expected 2 recorded failures, got %d", len(acq.Failures))
	}
	if acq.Failures[0].Strategy != "first" || acq.Failures[1].Strategy != "second" {
		t.Errorf("failures out of order: %+v", acq.Failures)
	}
}

func TestAcquireUnsupportedURLSkipsStrategies(t *testing.T) {
	strategy := &stubStrategy{name: "never", err: fmt.Errorf("unreachable")}
	engine := newTestEngine(t, strategy)

	_, err := engine.Acquire(context.Background(), "https://example.com/not-supported")
	if !errors.Is(err, apperr.ErrUnsupportedSource) {
		t.Fatalf("expected ErrUnsupportedSource, got %v", err)
	}
	if strategy.calls != 0 {
		t.Errorf("strategy should not run for unsupported URLs, ran %d times", strategy.calls)
	}
}

func TestAcquireCancelledContextCountsAsFailure(t *testing.T) {
	strategy := &stubStrategy{name: "slow", asset: &Asset{Title: "never reached"}}
	engine := newTestEngine(t, strategy)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Acquire(ctx, "https://youtu.be/abc123")

	var acq *apperr.AcquisitionError
	if !errors.As(err, &acq) {
		t.Fatalf("expected AcquisitionError, got %v", err)
	}
	if strategy.calls != 0 {
		t.Errorf("strategy should not run after cancellation, ran %d times", strategy.calls)
	}
}

func TestAcquireCleansUpWorkDirOnFailure(t *testing.T) {
	workRoot := t.TempDir()
	engine := &Engine{
		videoChain: []Strategy{&stubStrategy{name: "first", err: fmt.Errorf("nope")}},
		timeout:    time.Second,
		workDir:    workRoot,
		log:        testLogger(),
	}

	_, err := engine.Acquire(context.Background(), "https://youtu.be/abc123")
	if err == nil {
		t.Fatal("expected error")
	}

	entries, readErr := os.ReadDir(workRoot)
	if readErr != nil {
		t.Fatalf("failed to read work root: %v", readErr)
	}
	if len(entries) != 0 {
		t.Errorf("expected work dir cleaned up, found %d entries", len(entries))
	}
}

func TestAssetReleaseIsIdempotent(t *testing.T) {
	dir, err := os.MkdirTemp(t.TempDir(), "acquire-*")
	if err != nil {
		t.Fatal(err)
	}
	asset := &Asset{Path: dir + "/a.mp3", workDir: dir}

	asset.Release()
	asset.Release()

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("expected work dir removed, stat err = %v", err)
	}
}
