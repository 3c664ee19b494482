package api

import (
	"FaceGallery/config"
	"FaceGallery/internal/gallery"
	"FaceGallery/internal/task"
	"FaceGallery/pkg/logger"
	"FaceGallery/pkg/maintenance"
	"FaceGallery/pkg/scanner"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// APIHandlers 持有所有依赖
type APIHandlers struct {
	svc         *gallery.Service
	taskManager *task.Manager
	importer    *scanner.Importer
	maintenance maintenance.Maintenance
	configPath  string
}

// NewAPIHandlers 创建一个新的API处理器实例。importer 与 maint 可以为 nil，
// 对应的接口此时返回 503。
func NewAPIHandlers(svc *gallery.Service, tm *task.Manager, importer *scanner.Importer, maint maintenance.Maintenance, configPath string) *APIHandlers {
	return &APIHandlers{
		svc:         svc,
		taskManager: tm,
		importer:    importer,
		maintenance: maint,
		configPath:  configPath,
	}
}

// --- 辅助函数 ---

// respondJSON 辅助函数，用于统一返回JSON响应
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError 辅助函数，用于统一返回错误信息
func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"status": "error", "message": message})
}

// respondServiceError 按错误类别选择状态码，内部错误只记录日志，不向调用方暴露细节。
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(gallery.KindOf(err))
	if code == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("请求处理失败", "error", err)
		respondError(w, code, "internal server error")
		return
	}
	respondError(w, code, gallery.MessageOf(err))
}

func statusFor(kind gallery.Kind) int {
	switch kind {
	case gallery.KindNotFound:
		return http.StatusNotFound
	case gallery.KindInvalidReference, gallery.KindInsufficientData, gallery.KindAmbiguousInput, gallery.KindInvalidInput:
		return http.StatusBadRequest
	case gallery.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON 解析请求体。允许空请求体，此时 dst 保持零值。
func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// --- 任务处理器 ---

func (h *APIHandlers) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.taskManager.Get(chi.URLParam(r, "taskID"))
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (h *APIHandlers) startTask(w http.ResponseWriter, kind string, fn task.Func) {
	id, err := h.taskManager.Start(kind, fn)
	if err != nil {
		if errors.Is(err, task.ErrBusy) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"task_id": id, "status": string(task.StatusPending)})
}

// --- 统计与维护 ---

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (h *APIHandlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reset(r.Context()); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "all data has been deleted"})
}

func (h *APIHandlers) HandleAudit(w http.ResponseWriter, r *http.Request) {
	if h.maintenance == nil {
		respondError(w, http.StatusServiceUnavailable, "maintenance is not configured")
		return
	}
	report, err := h.maintenance.Audit(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *APIHandlers) HandleRepair(w http.ResponseWriter, r *http.Request) {
	if h.maintenance == nil {
		respondError(w, http.StatusServiceUnavailable, "maintenance is not configured")
		return
	}
	report, err := h.maintenance.Repair(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// --- 配置处理器 ---

// HandleGetConfig 获取当前应用配置
func (h *APIHandlers) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, config.C)
}

// HandleUpdateConfig 校验并保存应用配置。识别参数在服务重启后生效。
func (h *APIHandlers) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var newConfig config.Config
	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		respondError(w, http.StatusBadRequest, "invalid config: "+err.Error())
		return
	}
	if err := newConfig.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := config.Save(h.configPath, &newConfig); err != nil {
		logger.FromContext(r.Context()).Error("写入配置文件失败", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to write config.yaml")
		return
	}

	config.C = &newConfig
	logger.FromContext(r.Context()).Info("配置已更新", "path", h.configPath)
	respondJSON(w, http.StatusOK, config.C)
}
