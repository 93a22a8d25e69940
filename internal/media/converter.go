// Package media wraps ffmpeg and ffprobe for the upload optimisation pipeline.
package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Converter runs ffmpeg/ffprobe with a fixed output sample rate.
type Converter struct {
	ffmpegPath  string
	ffprobePath string
	sampleRate  int
}

// NewConverter creates a converter producing mono WAV at sampleRate Hz.
func NewConverter(sampleRate int) *Converter {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Converter{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		sampleRate:  sampleRate,
	}
}

// CheckInstalled verifies ffmpeg and ffprobe are on PATH.
func (c *Converter) CheckInstalled() error {
	if _, err := exec.LookPath(c.ffmpegPath); err != nil {
		return fmt.Errorf("ffmpeg not found: please install ffmpeg to convert media files")
	}
	if _, err := exec.LookPath(c.ffprobePath); err != nil {
		return fmt.Errorf("ffprobe not found: please install ffmpeg")
	}
	return nil
}

// ConvertToWav extracts the audio track of inputPath into a mono WAV file.
func (c *Converter) ConvertToWav(ctx context.Context, inputPath, outputPath string) error {
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return fmt.Errorf("input file not found: %s", inputPath)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// -vn: drop video, -ar/-ac: resample to mono
	return c.run(ctx,
		"-i", inputPath,
		"-vn",
		"-ar", strconv.Itoa(c.sampleRate),
		"-ac", "1",
		"-f", "wav",
		"-y",
		outputPath,
	)
}

// Split cuts inputPath into parts pieces of equal length named
// <stem>1.wav .. <stem>N.wav inside dir and returns their file names.
func (c *Converter) Split(ctx context.Context, inputPath, dir, stem string, parts int) ([]string, error) {
	if parts < 1 {
		return nil, fmt.Errorf("invalid split count: %d", parts)
	}

	total, err := c.Duration(ctx, inputPath)
	if err != nil {
		return nil, err
	}
	length := total / float64(parts)

	names := make([]string, 0, parts)
	for i := 0; i < parts; i++ {
		name := fmt.Sprintf("%s%d.wav", stem, i+1)
		args := []string{
			"-i", inputPath,
			"-ss", formatSeconds(float64(i) * length),
		}
		// the last part runs to the end so rounding never drops audio
		if i < parts-1 {
			args = append(args, "-t", formatSeconds(length))
		}
		args = append(args, "-c", "copy", "-y", filepath.Join(dir, name))

		if err := c.run(ctx, args...); err != nil {
			return nil, fmt.Errorf("split part %d: %w", i+1, err)
		}
		names = append(names, name)
	}
	return names, nil
}

// Duration returns the duration of a media file in seconds.
func (c *Converter) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, c.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("failed to get duration of %s: %w", filepath.Base(path), err)
	}
	return parseDuration(string(output))
}

func (c *Converter) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, c.ffmpegPath, append([]string{"-hide_banner", "-loglevel", "error"}, args...)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, string(output))
	}
	return nil
}

func parseDuration(s string) (float64, error) {
	duration, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", strings.TrimSpace(s), err)
	}
	return duration, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
