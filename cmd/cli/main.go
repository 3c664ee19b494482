package main

import (
	"FaceGallery/config"
	"FaceGallery/internal/app"
	"FaceGallery/pkg/logger"
	"FaceGallery/pkg/scanner"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
)

func main() {
	// --- 1. 定义命令行参数 ---
	action := flag.String("action", "", "要执行的操作: recluster, stats, audit, repair, import, preview, dump-database, create-manifest, list-persons, rename")
	path := flag.String("path", "", "import 操作的目录，默认为 scanner.importPath")
	albumID := flag.String("album-id", "", "import 时归属的相册ID")
	personID := flag.String("person-id", "", "rename 操作的人物ID")
	name := flag.String("name", "", "rename 操作的新名字")
	query := flag.String("query", "", "list-persons 的搜索关键词")
	eps := flag.Float64("eps", 0, "preview 的 DBSCAN eps，0 表示使用配置")
	minSamples := flag.Int("min-samples", 0, "preview 的 DBSCAN min_samples，0 表示使用配置")

	flag.Parse()

	if *action == "" {
		fmt.Println("错误: 必须提供 -action 参数。")
		flag.Usage()
		os.Exit(1)
	}

	// --- 2. 初始化应用核心组件 ---
	if err := config.LoadConfig("."); err != nil {
		log.Fatalf("FATAL: 无法加载配置: %v", err)
	}
	logFile, err := logger.InitLogger()
	if err != nil {
		log.Fatalf("FATAL: 无法初始化日志: %v", err)
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := app.New(ctx, config.C)
	if err != nil {
		slog.Error("FATAL: 无法初始化应用", "error", err)
		os.Exit(1)
	}
	defer a.Close(context.Background())

	// --- 3. 根据 action 参数执行相应的功能 ---
	var result any
	switch *action {
	case "recluster":
		result, err = a.Service.Recluster(ctx)

	case "stats":
		result, err = a.Service.Stats(ctx)

	case "audit":
		result, err = a.Maintenance.Audit(ctx)

	case "repair":
		result, err = a.Maintenance.Repair(ctx)

	case "import":
		dir := *path
		if dir == "" {
			dir = config.C.Scanner.ImportPath
		}
		slog.Info("开始导入目录", "path", dir)
		bar := progressbar.NewOptions(100,
			progressbar.OptionSetDescription("导入中"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
		result, err = a.Importer.ImportDirectory(ctx, dir, scanner.ImportOptions{AlbumID: *albumID}, func(p float64) {
			bar.Set(int(p))
		})
		bar.Finish()
		fmt.Println()

	case "preview":
		result, err = a.Service.Preview(ctx, *eps, *minSamples)

	case "list-persons":
		result, err = a.Service.ListPersons(ctx, *query)

	case "rename":
		if *personID == "" || *name == "" {
			fmt.Println("错误: rename 操作需要提供 -person-id 与 -name 参数。")
			os.Exit(1)
		}
		result, err = a.Service.RenamePerson(ctx, *personID, *name)

	case "create-manifest":
		backupPath, _ := filepath.Abs(config.C.Scanner.BackupPath)
		result, err = a.Maintenance.GenerateBlobManifest(ctx, backupPath)

	case "dump-database":
		slog.Info("开始执行数据库压缩备份...")
		backupPath, _ := filepath.Abs(config.C.Scanner.BackupPath)
		err = a.Maintenance.BackupDatabase(ctx, config.C.Database.URI, config.C.Database.Name, backupPath)
		if err == nil {
			slog.Info("数据库备份成功！")
		}

	default:
		fmt.Printf("错误: 未知的 action '%s'\n", *action)
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		slog.Error("操作失败", "action", *action, "error", err)
		os.Exit(1)
	}
	if result != nil {
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
	}
}
