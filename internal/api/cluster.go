package api

import (
	"FaceGallery/internal/task"
	"FaceGallery/pkg/scanner"
	"context"
	"net/http"
	"strings"
)

// HandleRecluster 同步执行一次重新聚类。
func (h *APIHandlers) HandleRecluster(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Recluster(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

// HandleStartReclusterTask 在后台执行重新聚类，立即返回任务 ID。
func (h *APIHandlers) HandleStartReclusterTask(w http.ResponseWriter, r *http.Request) {
	h.startTask(w, task.KindRecluster, func(ctx context.Context, _ func(float64)) (any, error) {
		return h.svc.Recluster(ctx)
	})
}

func (h *APIHandlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Eps        float64 `json:"eps"`
		MinSamples int     `json:"min_samples"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := h.svc.Preview(r.Context(), payload.Eps, payload.MinSamples)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// HandleStartImportTask 在后台导入服务器本地目录。
func (h *APIHandlers) HandleStartImportTask(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		respondError(w, http.StatusServiceUnavailable, "importer is not configured")
		return
	}
	var payload struct {
		Path      string `json:"path"`
		AlbumID   string `json:"album_id"`
		SectionID string `json:"section_id"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(payload.Path) == "" {
		respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	opts := scanner.ImportOptions{AlbumID: payload.AlbumID, SectionID: payload.SectionID}
	h.startTask(w, task.KindImport, func(ctx context.Context, report func(float64)) (any, error) {
		return h.importer.ImportDirectory(ctx, payload.Path, opts, report)
	})
}
