package api

import (
	"FaceGallery/internal/gallery"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// maxMemory 是解析 multipart 表单时保存在内存中的上限，超出部分写入临时文件。
const maxMemory = 32 << 20

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *APIHandlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read upload: "+err.Error())
		return
	}

	res, err := h.svc.Upload(r.Context(), gallery.UploadInput{
		Filename:  header.Filename,
		Data:      data,
		AlbumID:   r.FormValue("album_id"),
		SectionID: r.FormValue("section_id"),
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

func (h *APIHandlers) HandleUploadMultiple(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		respondError(w, http.StatusBadRequest, "no files provided")
		return
	}

	inputs := make([]gallery.UploadInput, 0, len(headers))
	var unreadable []gallery.FileError
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			unreadable = append(unreadable, gallery.FileError{Filename: fh.Filename, Error: err.Error()})
			continue
		}
		inputs = append(inputs, gallery.UploadInput{
			Filename:  fh.Filename,
			Data:      data,
			AlbumID:   r.FormValue("album_id"),
			SectionID: r.FormValue("section_id"),
		})
	}

	out := h.svc.UploadMany(r.Context(), inputs)
	out.TotalFiles += len(unreadable)
	out.Failed += len(unreadable)
	out.Errors = append(out.Errors, unreadable...)
	respondJSON(w, http.StatusOK, out)
}

func (h *APIHandlers) HandleListImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	images, err := h.svc.ListImages(r.Context(), q.Get("album_id"), q.Get("section_id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"images": images, "total": len(images)})
}

func (h *APIHandlers) HandleGetImage(w http.ResponseWriter, r *http.Request) {
	img, err := h.svc.GetImage(r.Context(), chi.URLParam(r, "imageID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, img)
}

func (h *APIHandlers) HandleImageFile(w http.ResponseWriter, r *http.Request) {
	content, err := h.svc.ImageFile(r.Context(), chi.URLParam(r, "imageID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	writeBlob(w, content)
}

func (h *APIHandlers) HandleSimilarImages(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	images, err := h.svc.SimilarImages(r.Context(), chi.URLParam(r, "imageID"), limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"images": images, "total": len(images)})
}

func (h *APIHandlers) HandleDeleteImage(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.DeleteImage(r.Context(), chi.URLParam(r, "imageID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *APIHandlers) HandleSearchByImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read upload: "+err.Error())
		return
	}

	var tolerance float64
	if v := r.FormValue("tolerance"); v != "" {
		if tolerance, err = strconv.ParseFloat(v, 64); err != nil || tolerance <= 0 {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid tolerance %q", v))
			return
		}
	}
	var maxResults int
	if v := r.FormValue("max_results"); v != "" {
		if maxResults, err = strconv.Atoi(v); err != nil || maxResults <= 0 {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid max_results %q", v))
			return
		}
	}

	res, err := h.svc.SearchByImage(r.Context(), data, tolerance, maxResults)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func writeBlob(w http.ResponseWriter, content *gallery.BlobContent) {
	w.Header().Set("Content-Type", content.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(content.Data)))
	if content.Filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", content.Filename))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(content.Data)
}
