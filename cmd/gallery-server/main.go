package main

import (
	"FaceGallery/config"
	"FaceGallery/internal/api"
	"FaceGallery/internal/app"
	"FaceGallery/internal/task"
	"FaceGallery/pkg/logger"
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	// --- 1. 初始化 ---
	if err := config.LoadConfig("."); err != nil {
		log.Fatalf("FATAL: 无法加载配置: %v", err)
	}
	logFile, err := logger.InitLogger()
	if err != nil {
		log.Fatalf("FATAL: 无法初始化日志: %v", err)
	}
	defer logFile.Close()
	slog.Info("应用启动")
	defer slog.Info("应用关闭")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. 连接存储并创建核心服务 ---
	a, err := app.New(ctx, config.C)
	if err != nil {
		slog.Error("FATAL: 无法初始化应用", "error", err)
		os.Exit(1)
	}
	defer a.Close(context.Background())

	taskManager := task.NewManager()
	slog.Info("任务管理器创建成功")

	// --- 3. 设置并启动HTTP服务器 ---
	handlers := api.NewAPIHandlers(a.Service, taskManager, a.Importer, a.Maintenance, ".")
	router := api.RegisterRoutes(handlers, api.RouterOptions{
		CORSOrigins: config.C.Server.CORSOrigins,
		Timeout:     config.C.Server.Timeout,
	})

	server := &http.Server{
		Addr:         config.C.Server.Port,
		Handler:      router,
		ReadTimeout:  config.C.Server.Timeout,
		WriteTimeout: config.C.Server.Timeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP服务器正在启动...", "地址", config.C.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("无法启动HTTP服务器", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	// --- 4. 优雅关闭 ---
	slog.Info("收到退出信号，正在关闭...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP服务器关闭失败", "error", err)
	}
	if err := taskManager.Shutdown(shutdownCtx); err != nil {
		slog.Warn("后台任务未能在超时前结束", "error", err)
	}
}
