package api

import (
	"FaceGallery/internal/models"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions 是与路由相关的配置。
type RouterOptions struct {
	CORSOrigins []string
	// Timeout 为 0 时不限制请求处理时间
	Timeout time.Duration
}

// RegisterRoutes 注册所有API路由
func RegisterRoutes(h *APIHandlers, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// --- 中间件 (Middleware) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(observeDuration)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// --- API路由 ---
	r.Route("/api/v1", func(r chi.Router) {
		if opts.Timeout > 0 {
			r.Use(middleware.Timeout(opts.Timeout))
		}

		r.Route("/images", func(r chi.Router) {
			r.Get("/", h.HandleListImages)
			r.Post("/upload", h.HandleUpload)
			r.Post("/upload-multiple", h.HandleUploadMultiple)
			r.Post("/search-by-image", h.HandleSearchByImage)
			r.Get("/{imageID}", h.HandleGetImage)
			r.Get("/{imageID}/file", h.HandleImageFile)
			r.Get("/{imageID}/similar", h.HandleSimilarImages)
			r.Delete("/{imageID}", h.HandleDeleteImage)
		})

		r.Route("/persons", func(r chi.Router) {
			r.Get("/", h.HandleListPersons)
			r.Get("/{personID}", h.HandleGetPerson)
			r.Put("/{personID}/rename", h.HandleRenamePerson)
		})

		r.Route("/faces/{faceID}", func(r chi.Router) {
			r.Get("/", h.HandleFaceImage)
			r.Put("/move", h.HandleMoveFace)
			r.Put("/move-to-new", h.HandleMoveFaceToNew)
			r.Delete("/", h.HandleDeleteFace)
		})

		r.Route("/cluster", func(r chi.Router) {
			r.Get("/", h.HandleRecluster)
			r.Post("/tasks", h.HandleStartReclusterTask)
			r.Get("/tasks/{taskID}", h.HandleGetTask)
			r.Post("/preview", h.HandlePreview)
		})

		r.Post("/imports", h.HandleStartImportTask)
		r.Get("/imports/{taskID}", h.HandleGetTask)

		r.Route("/albums", groupRoutes(h, models.GroupAlbum))
		r.Route("/sections", groupRoutes(h, models.GroupSection))

		r.Get("/maintenance/audit", h.HandleAudit)
		r.Post("/maintenance/repair", h.HandleRepair)

		r.Get("/stats", h.HandleStats)
		r.Get("/config", h.HandleGetConfig)
		r.Put("/config", h.HandleUpdateConfig)
		r.Delete("/reset", h.HandleReset)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func groupRoutes(h *APIHandlers, kind models.GroupKind) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", h.HandleListGroups(kind))
		r.Post("/", h.HandleCreateGroup(kind))
		r.Get("/{groupID}", h.HandleGetGroup(kind))
		r.Put("/{groupID}", h.HandleUpdateGroup(kind))
		r.Delete("/{groupID}", h.HandleDeleteGroup(kind))
	}
}
