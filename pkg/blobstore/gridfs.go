package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GridFS 把 blob 保存在与元数据相同的 MongoDB 数据库中，键即 GridFS 文件名。
type GridFS struct {
	db     *mongo.Database
	bucket string
}

var _ Store = (*GridFS)(nil)

func NewGridFS(db *mongo.Database, bucket string) *GridFS {
	if bucket == "" {
		bucket = "blobs"
	}
	return &GridFS{db: db, bucket: bucket}
}

// open 每次调用创建新的 bucket 句柄，以便按请求的 ctx 设置超时。
func (g *GridFS) open(ctx context.Context) (*gridfs.Bucket, error) {
	b, err := gridfs.NewBucket(g.db, options.GridFSBucket().SetName(g.bucket))
	if err != nil {
		return nil, fmt.Errorf("打开 GridFS bucket 失败: %w", err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = b.SetReadDeadline(dl)
		_ = b.SetWriteDeadline(dl)
	}
	return b, nil
}

func (g *GridFS) Put(ctx context.Context, key string, data []byte, contentType string) error {
	b, err := g.open(ctx)
	if err != nil {
		return err
	}
	// 同名文件先删除，保证一个键只对应一个文件
	if err := g.deleteByName(ctx, b, key); err != nil {
		return err
	}
	opts := options.GridFSUpload().SetMetadata(bson.M{"contentType": contentType})
	if _, err := b.UploadFromStream(key, bytes.NewReader(data), opts); err != nil {
		return fmt.Errorf("上传 %s 到 GridFS 失败: %w", key, err)
	}
	return nil
}

func (g *GridFS) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := g.open(ctx)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := b.DownloadToStreamByName(key, &buf); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("从 GridFS 读取 %s 失败: %w", key, err)
	}
	return buf.Bytes(), nil
}

func (g *GridFS) Delete(ctx context.Context, key string) error {
	b, err := g.open(ctx)
	if err != nil {
		return err
	}
	return g.deleteByName(ctx, b, key)
}

func (g *GridFS) deleteByName(ctx context.Context, b *gridfs.Bucket, key string) error {
	cursor, err := b.Find(bson.M{"filename": key})
	if err != nil {
		return fmt.Errorf("查找 GridFS 文件 %s 失败: %w", key, err)
	}
	defer cursor.Close(ctx)

	var files []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &files); err != nil {
		return err
	}
	for _, f := range files {
		if err := b.Delete(f.ID); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			return fmt.Errorf("删除 GridFS 文件 %s 失败: %w", key, err)
		}
	}
	return nil
}
