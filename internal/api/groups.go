package api

import (
	"FaceGallery/internal/gallery"
	"FaceGallery/internal/models"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// 相册与分区共用同一组处理器，kind 决定操作的集合。

func (h *APIHandlers) HandleListGroups(kind models.GroupKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groups, err := h.svc.ListGroups(r.Context(), kind)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, groups)
	}
}

func (h *APIHandlers) HandleCreateGroup(kind models.GroupKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := decodeJSON(r, &payload); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		g, err := h.svc.CreateGroup(r.Context(), kind, payload.Name, payload.Description)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, g)
	}
}

func (h *APIHandlers) HandleGetGroup(kind models.GroupKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := h.svc.GetGroup(r.Context(), kind, chi.URLParam(r, "groupID"))
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, g)
	}
}

func (h *APIHandlers) HandleUpdateGroup(kind models.GroupKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Name        *string `json:"name"`
			Description *string `json:"description"`
		}
		if err := decodeJSON(r, &payload); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		g, err := h.svc.UpdateGroup(r.Context(), kind, chi.URLParam(r, "groupID"), gallery.GroupUpdate{
			Name:        payload.Name,
			Description: payload.Description,
		})
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, g)
	}
}

func (h *APIHandlers) HandleDeleteGroup(kind models.GroupKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := h.svc.DeleteGroup(r.Context(), kind, chi.URLParam(r, "groupID"))
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}
