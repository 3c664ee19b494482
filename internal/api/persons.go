package api

import (
	"FaceGallery/internal/gallery"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *APIHandlers) HandleListPersons(w http.ResponseWriter, r *http.Request) {
	persons, err := h.svc.ListPersons(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"persons": persons, "total": len(persons)})
}

func (h *APIHandlers) HandleGetPerson(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetPerson(r.Context(), chi.URLParam(r, "personID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *APIHandlers) HandleRenamePerson(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := h.svc.RenamePerson(r.Context(), chi.URLParam(r, "personID"), payload.Name)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// --- 人脸处理器 ---

func (h *APIHandlers) HandleFaceImage(w http.ResponseWriter, r *http.Request) {
	content, err := h.svc.FaceImage(r.Context(), chi.URLParam(r, "faceID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeBlob(w, content)
}

func (h *APIHandlers) HandleMoveFace(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TargetPersonID string `json:"target_person_id"`
		CustomName     string `json:"custom_name"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := h.svc.MoveFace(r.Context(), chi.URLParam(r, "faceID"), payload.TargetPersonID, payload.CustomName)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *APIHandlers) HandleMoveFaceToNew(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		CustomName string `json:"custom_name"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := h.svc.MoveFace(r.Context(), chi.URLParam(r, "faceID"), gallery.NewPersonTarget, payload.CustomName)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *APIHandlers) HandleDeleteFace(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.DeleteFace(r.Context(), chi.URLParam(r, "faceID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
