// Package playback serves rendered scene videos to the presentation
// layer with HTTP range support, so a player can seek without
// downloading the whole clip.
package playback

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

type PlaybackService interface {
	ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error
}

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger}
}

// ServeFile streams a rendered video file. Range parsing, partial
// content and content type are handled by http.ServeContent.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
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

	modTime := stat.ModTime()
	if modTime.IsZero() {
		modTime = time.Now()
	}

	if s.logger != nil {
		s.logger.Debug("serving video", "path", filePath, "size", stat.Size(), "range", r.Header.Get("Range"))
	}

	http.ServeContent(w, r, stat.Name(), modTime, file)
	return nil
}
