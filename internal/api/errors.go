package api

import (
	"errors"
	"net/http"

	"github.com/clipforge/clipforge-agent/internal/catalog"
	"github.com/clipforge/clipforge-agent/internal/clips"
	"github.com/clipforge/clipforge-agent/internal/media"
	"github.com/clipforge/clipforge-agent/internal/playback"
)

// errorStatus maps session errors onto HTTP status codes and error codes.
func errorStatus(err error) (int, string) {
	var (
		openErr  *media.OpenError
		valErr   *clips.ValidationError
		parseErr *clips.ParseError
		ioErr    *clips.IOError
	)

	switch {
	case errors.Is(err, media.ErrNotOpen):
		return http.StatusConflict, "NO_VIDEO"
	case errors.As(err, &openErr):
		return http.StatusBadRequest, "OPEN_FAILED"
	case errors.As(err, &valErr):
		return http.StatusUnprocessableEntity, "VALIDATION_FAILED"
	case errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity, "LEDGER_UNREADABLE"
	case errors.Is(err, playback.ErrInvalidSpeed):
		return http.StatusBadRequest, "INVALID_SPEED"
	case errors.Is(err, playback.ErrZeroFrameRate):
		return http.StatusUnprocessableEntity, "ZERO_FRAME_RATE"
	case errors.Is(err, playback.ErrInvalidName):
		return http.StatusBadRequest, "INVALID_NAME"
	case errors.Is(err, catalog.ErrJobNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.As(err, &ioErr):
		if ioErr.Op == "select" {
			return http.StatusBadRequest, "INVALID_DIR"
		}
		return http.StatusInternalServerError, "IO_ERROR"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

func writeSessionError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	WriteError(w, status, err.Error(), code)
}
