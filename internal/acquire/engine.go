package acquire

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ines/audigest/internal/apperr"
	"github.com/ines/audigest/internal/domain"
	"github.com/ines/audigest/internal/logger"
)

// Asset is a locally materialized piece of content ready for the pipeline.
// Either Path points at an audio file to transcribe, or Transcript already
// holds the text (a published transcript skips transcription entirely).
type Asset struct {
	Path       string
	Title      string
	Kind       domain.SourceKind
	Transcript string

	workDir string
}

// HasTranscript reports whether the asset carries text directly and needs
// no transcription step.
func (a *Asset) HasTranscript() bool {
	return a.Transcript != ""
}

// Release removes the asset's temporary files. Safe to call more than once.
func (a *Asset) Release() {
	if a.workDir != "" {
		os.RemoveAll(a.workDir)
		a.workDir = ""
	}
}

// Strategy is one way of turning a URL into a local asset. Strategies are
// tried in order; a failing strategy reports why and the chain moves on.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, rawURL, workDir string) (*Asset, error)
}

// Engine resolves source URLs to local audio assets through per-kind
// ordered strategy chains. External sources fail unpredictably, so the
// engine optimizes for eventual success: every strategy gets its turn and
// only a fully exhausted chain surfaces an error.
type Engine struct {
	videoChain   []Strategy
	podcastChain []Strategy
	timeout      time.Duration
	workDir      string
	log          *logger.Logger
}

// Config holds acquisition engine settings.
type Config struct {
	Timeout   time.Duration
	YtDlpPath string
	WorkDir   string
}

// NewEngine builds an engine with the default strategy chains.
func NewEngine(cfg *Config, log *logger.Logger) *Engine {
	return &Engine{
		videoChain:   defaultVideoChain(cfg.YtDlpPath),
		podcastChain: defaultPodcastChain(),
		timeout:      cfg.Timeout,
		workDir:      cfg.WorkDir,
		log:          log,
	}
}

// Classify inspects a URL's shape and decides which chain handles it.
// Unsupported shapes fail before any network call is made.
func Classify(rawURL string) (domain.SourceKind, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("%w: %q is not a valid http(s) URL", apperr.ErrUnsupportedSource, rawURL)
	}

	host := strings.ToLower(strings.TrimPrefix(parsed.Hostname(), "www."))
	switch {
	case host == "youtube.com" || host == "youtu.be" || strings.HasSuffix(host, ".youtube.com"):
		return domain.SourceKindVideo, nil
	case host == "podcasts.apple.com":
		return domain.SourceKindPodcast, nil
	default:
		return "", fmt.Errorf("%w: no handler for host %q", apperr.ErrUnsupportedSource, host)
	}
}

// Acquire resolves a URL to a local asset. The whole chain shares one
// deadline; a strategy still running when it expires counts as failed.
// Parameters:
//   - ctx: caller context; the engine layers its own timeout on top.
//   - rawURL: source URL, already validated by Classify or not.
// Returns:
//   - *Asset: the acquired asset; caller must Release it.
//   - error: ErrUnsupportedSource for bad URL shapes, or an
//     AcquisitionError aggregating every strategy's failure.
func (e *Engine) Acquire(ctx context.Context, rawURL string) (*Asset, error) {
	kind, err := Classify(rawURL)
	if err != nil {
		return nil, err
	}

	var chain []Strategy
	switch kind {
	case domain.SourceKindVideo:
		chain = e.videoChain
	case domain.SourceKindPodcast:
		chain = e.podcastChain
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	workDir, err := os.MkdirTemp(e.workDir, "acquire-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	var failures []apperr.StrategyFailure
	for _, strategy := range chain {
		if ctx.Err() != nil {
			failures = append(failures, apperr.StrategyFailure{
				Strategy: strategy.Name(),
				Err:      ctx.Err(),
			})
			break
		}

		start := time.Now()
		asset, err := strategy.Attempt(ctx, rawURL, workDir)
		if err != nil {
			e.log.WithFields(logger.Fields{
				logger.FieldStrategy:   strategy.Name(),
				logger.FieldDurationMs: time.Since(start).Milliseconds(),
				"url":                  rawURL,
			}).WithError(err).Warn("acquisition strategy failed")
			failures = append(failures, apperr.StrategyFailure{
				Strategy: strategy.Name(),
				Err:      err,
			})
			continue
		}

		e.log.WithFields(logger.Fields{
			logger.FieldStrategy:   strategy.Name(),
			logger.FieldDurationMs: time.Since(start).Milliseconds(),
			"url":                  rawURL,
			"failed_attempts":      len(failures),
		}).Info("acquisition strategy succeeded")
		asset.Kind = kind
		asset.workDir = workDir
		return asset, nil
	}

	os.RemoveAll(workDir)
	return nil, &apperr.AcquisitionError{URL: rawURL, Failures: failures}
}
