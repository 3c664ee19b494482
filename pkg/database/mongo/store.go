package mongo

import (
	"FaceGallery/config"
	"FaceGallery/internal/models"
	"FaceGallery/pkg/database"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store 是 database.Store 接口的MongoDB实现。
type Store struct {
	client   *mongo.Client
	db       *mongo.Database
	persons  *personStore
	faces    *faceStore
	images   *imageStore
	albums   *groupStore
	sections *groupStore
	counters *mongo.Collection
}

// 确保 Store 实现了 database.Store 接口 (编译时检查)
var _ database.Store = (*Store)(nil)

// byID 是所有列表查询共用的排序：按 _id 升序，即插入顺序。
var byID = bson.D{{Key: "_id", Value: 1}}

// NewStore 创建并返回一个新的 Store 实例，并建立与MongoDB的连接。
func NewStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	slog.Info("正在连接到 MongoDB...", "uri", cfg.Database.URI)
	clientCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(clientCtx, options.Client().ApplyURI(cfg.Database.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(clientCtx, nil); err != nil {
		return nil, err
	}
	slog.Info("MongoDB 连接成功", "database", cfg.Database.Name)

	return newStore(client, client.Database(cfg.Database.Name)), nil
}

func newStore(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		client:   client,
		db:       db,
		persons:  &personStore{coll: db.Collection("persons")},
		faces:    &faceStore{coll: db.Collection("faces")},
		images:   &imageStore{coll: db.Collection("images")},
		albums:   &groupStore{coll: db.Collection("albums")},
		sections: &groupStore{coll: db.Collection("sections")},
		counters: db.Collection("counters"),
	}
}

// Database 暴露底层数据库句柄，GridFS blob 存储需要用到它。
func (s *Store) Database() *mongo.Database {
	return s.db
}

func (s *Store) Persons() database.PersonStore { return s.persons }
func (s *Store) Faces() database.FaceStore     { return s.faces }
func (s *Store) Images() database.ImageStore   { return s.images }

func (s *Store) Groups(kind models.GroupKind) database.GroupStore {
	if kind == models.GroupSection {
		return s.sections
	}
	return s.albums
}

// NextSequence 使用 $inc + upsert 原子地获取下一个编号，多个进程并发调用也不会重复。
func (s *Store) NextSequence(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("递增计数器 %s 失败: %w", name, err)
	}
	return doc.Seq, nil
}

// EnsureSequenceAtLeast 使用 $max 提升计数器，已经更大的值保持不变。
func (s *Store) EnsureSequenceAtLeast(ctx context.Context, name string, min int64) error {
	_, err := s.counters.UpdateOne(ctx,
		bson.M{"_id": name},
		bson.M{"$max": bson.M{"seq": min}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("初始化计数器 %s 失败: %w", name, err)
	}
	return nil
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	slog.Info("正在确保数据库索引存在...")

	faceIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "personId", Value: 1}}, Options: options.Index().SetName("idx_person")},
		{Keys: bson.D{{Key: "imageId", Value: 1}}, Options: options.Index().SetName("idx_image")},
		{Keys: bson.D{{Key: "isManualAssignment", Value: 1}}, Options: options.Index().SetName("idx_manual")},
	}
	if _, err := s.faces.coll.Indexes().CreateMany(ctx, faceIndexes); err != nil {
		slog.Error("为 faces 集合创建索引失败", "error", err)
		return err
	}

	imageIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "fileHash", Value: 1}}, Options: options.Index().SetName("idx_filehash")},
		{Keys: bson.D{{Key: "perceptualHash", Value: 1}}, Options: options.Index().SetName("idx_phash")},
		{Keys: bson.D{{Key: "albumId", Value: 1}}, Options: options.Index().SetName("idx_album")},
		{Keys: bson.D{{Key: "sectionId", Value: 1}}, Options: options.Index().SetName("idx_section")},
	}
	if _, err := s.images.coll.Indexes().CreateMany(ctx, imageIndexes); err != nil {
		slog.Error("为 images 集合创建索引失败", "error", err)
		return err
	}

	for _, g := range []*groupStore{s.albums, s.sections} {
		idx := mongo.IndexModel{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_name_unique"),
		}
		if _, err := g.coll.Indexes().CreateOne(ctx, idx); err != nil {
			slog.Error("为分组集合创建索引失败", "collection", g.coll.Name(), "error", err)
			return err
		}
	}

	// 旧版本按人物数量编号，这里保证计数器不会回退到已用过的编号
	count, err := s.persons.Count(ctx)
	if err != nil {
		return err
	}
	if err := s.EnsureSequenceAtLeast(ctx, database.PersonCounterName, count); err != nil {
		return err
	}

	slog.Info("数据库索引已验证/创建。")
	return nil
}

// DropAllCollections 删除当前数据库中的所有已知集合。
func (s *Store) DropAllCollections(ctx context.Context) error {
	slog.Warn("正在删除所有集合...", "database", s.db.Name())
	colls := []*mongo.Collection{
		s.persons.coll, s.faces.coll, s.images.coll, s.albums.coll, s.sections.coll, s.counters,
	}
	var errs []error
	for _, c := range colls {
		// 即使出错也继续尝试删除其他集合
		if err := c.Drop(ctx); err != nil {
			slog.Error("删除集合失败", "collection", c.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	slog.Info("所有集合已成功删除。")
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// findAll 执行查询并把所有结果解码到切片中。
func findAll[T any](ctx context.Context, coll *mongo.Collection, filter interface{}, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []T
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// findOne 查询单个文档，不存在时返回 (nil, nil)。
func findOne[T any](ctx context.Context, coll *mongo.Collection, filter interface{}) (*T, error) {
	var doc T
	err := coll.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}
