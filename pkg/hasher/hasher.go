package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/ajdnik/imghash"
)

// SHA256FromBytes 从字节切片计算 SHA-256 哈希
func SHA256FromBytes(data []byte) string {
	hashBytes := sha256.Sum256(data)
	return hex.EncodeToString(hashBytes[:])
}

// SHA256File 计算一个文件的 SHA-256，批量导入时用它在解码前跳过重复文件。
func SHA256File(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// PerceptualHash 从已解码的图片计算 pHash，以十进制字符串形式返回。
// 内容相同但编码不同的图片会得到相同的值。
func PerceptualHash(img image.Image) string {
	phasher := imghash.NewPHash()
	return fmt.Sprintf("%d", phasher.Calculate(img))
}
