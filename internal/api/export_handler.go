package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/clipforge/clipforge-agent/internal/export"
	"github.com/clipforge/clipforge-agent/internal/media"
)

// exportEDLHandler writes a CMX3600 timeline of the marked clips against
// the open video, for import into an editor.
func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req export.EDLRequest
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.OutputDir == "" {
			req.OutputDir = cfg.Session.SaveDir()
		}
		if err := export.ValidateOutputDir(req.OutputDir); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		h, ok := cfg.Session.Video()
		if !ok {
			writeSessionError(w, media.ErrNotOpen)
			return
		}

		list := cfg.Session.ListClips()
		if len(list) == 0 {
			WriteError(w, http.StatusBadRequest, "no clips to export", "BAD_REQUEST")
			return
		}

		title := export.SanitizeName(req.Title, 120)
		if title == "" {
			title = strings.TrimSuffix(filepath.Base(h.Path), filepath.Ext(h.Path))
		}

		resolved, unresolved := export.ResolveClips(list, h.Path, req.Clips)
		if unresolved == nil {
			unresolved = []string{}
		}
		if len(resolved) == 0 {
			WriteError(w, http.StatusUnprocessableEntity, "no clips could be resolved", "UNRESOLVABLE_CLIPS")
			return
		}

		edl := export.GenerateEDL(resolved, title, h.FPS)
		outputPath := filepath.Join(req.OutputDir, export.EDLFilename(title))
		if err := os.WriteFile(outputPath, []byte(edl), 0o644); err != nil {
			cfg.Logger.Error("failed to write edl", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to write export file", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, export.EDLResponse{
			Status:          "ok",
			Format:          "edl",
			OutputPath:      outputPath,
			ClipCount:       len(resolved),
			UnresolvedClips: unresolved,
		})
	}
}
