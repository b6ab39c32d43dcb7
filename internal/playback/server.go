package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidName is returned for clip names that would escape the save
// directory.
var ErrInvalidName = errors.New("invalid clip file name")

type FileService interface {
	ServeClip(w http.ResponseWriter, r *http.Request, dir, name string) error
}

// Server streams exported clip files with byte-range support so a player
// can scrub them without downloading the whole file.
type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger}
}

func (s *Server) ServeClip(w http.ResponseWriter, r *http.Request, dir, name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return ErrInvalidName
	}
	filePath := filepath.Join(dir, name)

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.IsDir() {
		http.Error(w, "file not found", http.StatusNotFound)
		return nil
	}

	contentType := mime.TypeByExtension(filepath.Ext(filePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)

	s.logger.Debug("serving clip", "name", name, "size", stat.Size(), "range", r.Header.Get("Range"))
	http.ServeContent(w, r, name, stat.ModTime(), file)
	return nil
}
