package thumbnailer

import (
	"bytes"
	"log/slog"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// TakenAt 读取原始文件 EXIF 中的拍摄时间。没有 EXIF 或没有时间字段时返回 nil。
// 必须传入原始字节，重新编码后的图片不再带有 EXIF。
func TakenAt(data []byte) *time.Time {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	dt, err := x.DateTime()
	if err != nil {
		slog.Debug("EXIF 中没有拍摄时间", "error", err)
		return nil
	}
	return &dt
}
