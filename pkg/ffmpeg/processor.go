// Package ffmpeg wraps the ffmpeg binary for lossless stream concatenation.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// stderrTail is how much of ffmpeg's stderr is kept for error messages.
const stderrTail = 2048

// Processor runs ffmpeg.
type Processor struct {
	ffmpegPath string
}

// NewProcessor resolves the ffmpeg binary. path may be a bare name looked up in
// PATH or an absolute path; empty means "ffmpeg".
func NewProcessor(path string) (*Processor, error) {
	if path == "" {
		path = "ffmpeg"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	return &Processor{ffmpegPath: resolved}, nil
}

// Path returns the resolved ffmpeg binary.
func (p *Processor) Path() string {
	return p.ffmpegPath
}

// ConcatCopy joins the files named in the concat list at listPath into
// outputPath without re-encoding. Equivalent to:
//
//	ffmpeg -f concat -safe 0 -i <list> -c copy -y <output>
func (p *Processor) ConcatCopy(ctx context.Context, listPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y",
		outputPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if tail := tailString(stderr.String(), stderrTail); tail != "" {
			return fmt.Errorf("ffmpeg concat: %w: %s", err, tail)
		}
		return fmt.Errorf("ffmpeg concat: %w", err)
	}

	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("ffmpeg concat produced no output: %w", err)
	}
	return nil
}

// WriteConcatList writes a concat demuxer list naming files in order.
func WriteConcatList(path string, files []string) error {
	var b strings.Builder
	for _, f := range files {
		b.WriteString("file '")
		b.WriteString(QuoteConcatPath(f))
		b.WriteString("'\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

// QuoteConcatPath escapes single quotes for use inside a quoted concat entry.
func QuoteConcatPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}

// IsAvailable checks if the ffmpeg binary can be found.
func IsAvailable(path string) bool {
	if path == "" {
		path = "ffmpeg"
	}
	_, err := exec.LookPath(path)
	return err == nil
}

// GetVersion returns the first line of `ffmpeg -version`.
func GetVersion(ctx context.Context, path string) (string, error) {
	if path == "" {
		path = "ffmpeg"
	}
	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return "", err
	}
	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 && strings.TrimSpace(lines[0]) != "" {
		return strings.TrimSpace(lines[0]), nil
	}
	return "unknown", nil
}

func tailString(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}
