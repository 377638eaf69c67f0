package acquire

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ines/audigest/internal/domain"
)

const mobileUserAgent = "Mozilla/5.0 (Linux; Android 10; SM-G975F) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.120 Mobile Safari/537.36"

// ytDlpStrategy downloads audio from a video URL by shelling out to yt-dlp.
// Each instance is one rung of the fallback ladder: later rungs trade audio
// quality for compatibility with whatever anti-automation defense tripped
// the earlier ones.
type ytDlpStrategy struct {
	name           string
	binPath        string
	formatSelector string
	audioQuality   string
	playerClients  string
	mobileUA       bool
	ignoreErrors   bool
}

// defaultVideoChain is the rung order for video-hosting URLs: best audio
// stream first, then permissive formats with alternate client identities,
// then video-download-and-extract, then worst-quality everything-goes.
func defaultVideoChain(binPath string) []Strategy {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	return []Strategy{
		&ytDlpStrategy{
			name:           "bestaudio",
			binPath:        binPath,
			formatSelector: "bestaudio[ext=m4a]/bestaudio[ext=webm]/bestaudio[ext=mp3]/bestaudio/best/worst",
			audioQuality:   "192K",
			playerClients:  "android,web,ios",
		},
		&ytDlpStrategy{
			name:           "permissive-format",
			binPath:        binPath,
			formatSelector: "best/worst",
			audioQuality:   "128K",
			playerClients:  "android,web,ios,tv_embedded",
			mobileUA:       true,
			ignoreErrors:   true,
		},
		&ytDlpStrategy{
			name:           "video-extract-audio",
			binPath:        binPath,
			formatSelector: "worst[height<=480]/worst",
			audioQuality:   "128K",
			playerClients:  "android,web,ios,tv_embedded",
			mobileUA:       true,
			ignoreErrors:   true,
		},
		&ytDlpStrategy{
			name:           "worst-quality",
			binPath:        binPath,
			formatSelector: "worst",
			audioQuality:   "96K",
			playerClients:  "android,web,ios,tv_embedded,mweb",
			mobileUA:       true,
			ignoreErrors:   true,
		},
	}
}

func (s *ytDlpStrategy) Name() string {
	return s.name
}

// Attempt runs yt-dlp once with this rung's settings. The binary prints the
// video title and the post-extraction file path, one per line, which is all
// the metadata the pipeline needs.
func (s *ytDlpStrategy) Attempt(ctx context.Context, rawURL, workDir string) (*Asset, error) {
	args := []string{
		"--no-playlist",
		"--no-warnings",
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", s.audioQuality,
		"-f", s.formatSelector,
		"--extractor-args", fmt.Sprintf("youtube:player_client=%s;skip=dash,hls", s.playerClients),
		"-o", "%(id)s.%(ext)s",
		"--no-simulate",
		"--print", "title",
		"--print", "after_move:filepath",
	}
	if s.mobileUA {
		args = append(args, "--user-agent", mobileUserAgent)
	}
	if s.ignoreErrors {
		args = append(args, "--ignore-errors")
	}
	args = append(args, rawURL)

	cmd := exec.CommandContext(ctx, s.binPath, args...)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %w: %s", err, lastLine(stderr.String()))
	}

	lines := nonEmptyLines(stdout.String())
	if len(lines) < 2 {
		return nil, fmt.Errorf("yt-dlp produced no output file")
	}
	title := lines[0]
	path := lines[len(lines)-1]

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("yt-dlp reported %s but the file is missing: %w", path, err)
	}

	return &Asset{
		Path:  path,
		Title: title,
		Kind:  domain.SourceKindVideo,
	}, nil
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func lastLine(s string) string {
	lines := nonEmptyLines(s)
	if len(lines) == 0 {
		return "no diagnostic output"
	}
	return lines[len(lines)-1]
}
