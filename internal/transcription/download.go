package transcription

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"transcriber/internal/apperr"
	"transcriber/internal/models"
)

// Archive is the set of transcript artifacts of one file.
type Archive struct {
	Name  string
	Files []string
}

// Download collects the merged artifacts of a completed transcription.
func (s *Service) Download(ctx context.Context, fileID string) (*Archive, error) {
	file, err := s.db.Files.GetByID(ctx, fileID)
	if err != nil {
		return nil, classify(err)
	}
	if file == nil {
		return nil, apperr.NotFound("File not found")
	}

	t, err := s.db.Transcriptions.GetByFileID(ctx, fileID)
	if err != nil {
		return nil, classify(err)
	}
	if t == nil {
		return nil, apperr.NotFound("Transcription not found")
	}
	if t.Status != models.StatusDone {
		return nil, apperr.BadRequest("Transcription is not completed")
	}

	dir := s.library.TranscriptionsDir(fileID)
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, classify(err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && models.IsTranscriptFile(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		// detached runs are DONE before their containers write anything
		return nil, apperr.BadRequest("Transcription is not completed")
	}
	sort.Strings(files)

	return &Archive{Name: fileID + ".zip", Files: files}, nil
}

// WriteTo streams the artifacts to w as a zip archive.
func (a *Archive) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)
	for _, path := range a.Files {
		if err := addFile(zw, path); err != nil {
			zw.Close()
			return cw.n, err
		}
	}
	if err := zw.Close(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

func addFile(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	dst, err := zw.Create(filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, f)
	return err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
