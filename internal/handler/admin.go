package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/deeplearn-app/deeplearn/internal/catalog"
	"github.com/deeplearn-app/deeplearn/internal/model"
)

// catalogHashKey is the local-state key recording the last uploaded catalog per tag.
func catalogHashKey(tag model.SessionTag) string {
	return "catalog_hash:" + string(tag)
}

type uploadResponse struct {
	SessionTag model.SessionTag `json:"sessionTag"`
	Groups     int              `json:"groups"`
	Unchanged  bool             `json:"unchanged,omitempty"`
}

// handleUploadCatalog replaces the catalog for a tag with an uploaded JSON or
// YAML file. Sessions already running keep the catalog they started with.
func (h *Handler) handleUploadCatalog(w http.ResponseWriter, r *http.Request) {
	tag, err := model.ParseSessionTag(chi.URLParam(r, "tag"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "file too large"})
		return
	}
	file, header, err := r.FormFile("catalog_file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no file uploaded"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		return
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	stored, _, err := h.state.Get(r.Context(), catalogHashKey(tag))
	if err != nil {
		slog.Error("failed to check catalog hash", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.mu.RLock()
	current, loaded := h.catalogs[tag]
	h.mu.RUnlock()
	if loaded && stored == hash {
		writeJSON(w, http.StatusOK, uploadResponse{SessionTag: tag, Groups: current.Len(), Unchanged: true})
		return
	}

	c, err := catalog.Parse(string(tag), data, filepath.Ext(header.Filename))
	if err != nil {
		var ge *catalog.GroupError
		if errors.Is(err, catalog.ErrEmpty) || errors.As(err, &ge) {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid catalog: " + err.Error()})
		return
	}

	h.mu.Lock()
	h.catalogs[tag] = c
	h.mu.Unlock()

	if err := h.state.Set(r.Context(), catalogHashKey(tag), hash); err != nil {
		slog.Error("failed to record catalog hash", "error", err)
	}
	slog.Info("uploaded catalog", "tag", tag, "filename", header.Filename, "groups", c.Len())

	writeJSON(w, http.StatusCreated, uploadResponse{SessionTag: tag, Groups: c.Len()})
}
