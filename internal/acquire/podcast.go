package acquire

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"

	"github.com/ines/audigest/internal/domain"
)

const itunesLookupURL = "https://itunes.apple.com/lookup"

var (
	podcastIDPattern = regexp.MustCompile(`/id(\d+)`)
	// Attribute order varies across page builds, so match both.
	ogTitlePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<meta[^>]+property="og:title"[^>]+content="([^"]+)"`),
		regexp.MustCompile(`(?i)<meta[^>]+content="([^"]+)"[^>]+property="og:title"`),
	}
)

// defaultPodcastChain is the rung order for podcast-directory URLs: a
// published transcript saves an entire transcription run, so it is tried
// before downloading the audio enclosure.
func defaultPodcastChain() []Strategy {
	resolver := &episodeResolver{
		http:      resty.New(),
		parser:    gofeed.NewParser(),
		lookupURL: itunesLookupURL,
	}
	return []Strategy{
		&transcriptStrategy{resolver: resolver},
		&enclosureStrategy{resolver: resolver},
	}
}

// episode is the feed-level view of one podcast episode.
type episode struct {
	podcastName   string
	episodeTitle  string
	transcriptURL string
	audioURL      string
}

// episodeResolver turns an Apple Podcasts episode URL into feed metadata:
// scrape the episode title from the page, resolve the show's RSS feed via
// the iTunes lookup API, then match the episode inside the feed.
type episodeResolver struct {
	http      *resty.Client
	parser    *gofeed.Parser
	lookupURL string
}

func (r *episodeResolver) resolve(ctx context.Context, rawURL string) (*episode, error) {
	title, err := r.scrapeEpisodeTitle(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	feedURL, err := r.lookupFeedURL(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	feed, err := r.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSS feed %s: %w", feedURL, err)
	}

	for _, item := range feed.Items {
		if !strings.Contains(strings.ToLower(item.Title), strings.ToLower(title)) &&
			!strings.Contains(strings.ToLower(title), strings.ToLower(item.Title)) {
			continue
		}

		ep := &episode{
			podcastName:  feed.Title,
			episodeTitle: title,
		}
		if exts, ok := item.Extensions["podcast"]; ok {
			if transcripts, ok := exts["transcript"]; ok && len(transcripts) > 0 {
				ep.transcriptURL = transcripts[0].Attrs["url"]
			}
		}
		for _, enc := range item.Enclosures {
			if strings.HasPrefix(enc.Type, "audio") {
				ep.audioURL = enc.URL
				break
			}
		}
		return ep, nil
	}

	return nil, fmt.Errorf("episode %q not found in feed %s", title, feedURL)
}

func (r *episodeResolver) scrapeEpisodeTitle(ctx context.Context, rawURL string) (string, error) {
	resp, err := r.http.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch episode page: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("episode page returned status %d", resp.StatusCode())
	}

	body := resp.String()
	for _, pattern := range ogTitlePatterns {
		if m := pattern.FindStringSubmatch(body); m != nil {
			return html.UnescapeString(m[1]), nil
		}
	}
	return "", fmt.Errorf("episode page has no og:title tag")
}

func (r *episodeResolver) lookupFeedURL(ctx context.Context, rawURL string) (string, error) {
	m := podcastIDPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", fmt.Errorf("no podcast ID in URL %s", rawURL)
	}

	var result struct {
		ResultCount int `json:"resultCount"`
		Results     []struct {
			FeedURL string `json:"feedUrl"`
		} `json:"results"`
	}
	resp, err := r.http.R().
		SetContext(ctx).
		SetQueryParam("id", m[1]).
		SetResult(&result).
		Get(r.lookupURL)
	if err != nil {
		return "", fmt.Errorf("iTunes lookup failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("iTunes lookup returned status %d", resp.StatusCode())
	}
	// resultCount and the results array can disagree; trust only the array.
	if len(result.Results) == 0 || result.Results[0].FeedURL == "" {
		return "", fmt.Errorf("iTunes lookup has no feed URL for podcast %s", m[1])
	}

	return result.Results[0].FeedURL, nil
}

// displayTitle combines show and episode names the way podcast apps do.
func (e *episode) displayTitle() string {
	if e.podcastName != "" && e.episodeTitle != "" {
		return fmt.Sprintf("%s: %s", e.podcastName, e.episodeTitle)
	}
	if e.episodeTitle != "" {
		return e.episodeTitle
	}
	return e.podcastName
}

// transcriptStrategy fetches a transcript the publisher already produced.
type transcriptStrategy struct {
	resolver *episodeResolver
}

func (s *transcriptStrategy) Name() string {
	return "published-transcript"
}

func (s *transcriptStrategy) Attempt(ctx context.Context, rawURL, workDir string) (*Asset, error) {
	ep, err := s.resolver.resolve(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if ep.transcriptURL == "" {
		return nil, fmt.Errorf("feed publishes no transcript for this episode")
	}

	resp, err := s.resolver.http.R().SetContext(ctx).Get(ep.transcriptURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download transcript: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("transcript download returned status %d", resp.StatusCode())
	}

	text := strings.TrimSpace(resp.String())
	if text == "" {
		return nil, fmt.Errorf("published transcript is empty")
	}

	return &Asset{
		Title:      ep.displayTitle(),
		Kind:       domain.SourceKindPodcast,
		Transcript: text,
	}, nil
}

// enclosureStrategy downloads the episode's audio enclosure from the feed.
type enclosureStrategy struct {
	resolver *episodeResolver
}

func (s *enclosureStrategy) Name() string {
	return "rss-enclosure"
}

func (s *enclosureStrategy) Attempt(ctx context.Context, rawURL, workDir string) (*Asset, error) {
	ep, err := s.resolver.resolve(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if ep.audioURL == "" {
		return nil, fmt.Errorf("feed has no audio enclosure for this episode")
	}

	path := filepath.Join(workDir, "episode.mp3")
	resp, err := s.resolver.http.R().
		SetContext(ctx).
		SetOutput(path).
		Get(ep.audioURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download enclosure: %w", err)
	}
	if resp.IsError() {
		os.Remove(path)
		return nil, fmt.Errorf("enclosure download returned status %d", resp.StatusCode())
	}

	return &Asset{
		Path:  path,
		Title: ep.displayTitle(),
		Kind:  domain.SourceKindPodcast,
	}, nil
}
