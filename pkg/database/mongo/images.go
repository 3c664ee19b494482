package mongo

import (
	"FaceGallery/internal/models"
	"FaceGallery/pkg/database"
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// imageStore 封装了与 "images" 集合相关的所有操作。
type imageStore struct {
	coll *mongo.Collection
}

func (s *imageStore) Create(ctx context.Context, image *models.Image) error {
	if image.ID.IsZero() {
		image.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	image.CreatedAt = now
	image.UpdatedAt = now
	image.Faces = nonNil(image.Faces)
	image.Persons = nonNil(image.Persons)
	if _, err := s.coll.InsertOne(ctx, image); err != nil {
		return fmt.Errorf("创建图片 %s 失败: %w", image.FileName, err)
	}
	return nil
}

func (s *imageStore) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Image, error) {
	return findOne[models.Image](ctx, s.coll, bson.M{"_id": id})
}

func (s *imageStore) GetByFileHash(ctx context.Context, hash string) (*models.Image, error) {
	return findOne[models.Image](ctx, s.coll, bson.M{"fileHash": hash})
}

func (s *imageStore) List(ctx context.Context, filter database.ImageFilter) ([]models.Image, error) {
	q := bson.M{}
	if filter.AlbumID != nil {
		q["albumId"] = *filter.AlbumID
	}
	if filter.SectionID != nil {
		q["sectionId"] = *filter.SectionID
	}
	return findAll[models.Image](ctx, s.coll, q, options.Find().SetSort(byID))
}

func (s *imageStore) FindSimilarByPHash(ctx context.Context, pHash string, limit int) ([]models.Image, error) {
	opts := options.Find().SetLimit(int64(limit)).SetSort(byID)
	return findAll[models.Image](ctx, s.coll, bson.M{"perceptualHash": pHash}, opts)
}

func (s *imageStore) UpdateReferences(ctx context.Context, image *models.Image) error {
	image.UpdatedAt = time.Now().UTC()
	update := bson.M{"$set": bson.M{
		"faces":     nonNil(image.Faces),
		"persons":   nonNil(image.Persons),
		"updatedAt": image.UpdatedAt,
	}}
	if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": image.ID}, update); err != nil {
		return fmt.Errorf("更新图片 %s 的引用失败: %w", image.ID.Hex(), err)
	}
	return nil
}

func (s *imageStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *imageStore) Count(ctx context.Context) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.D{})
}

func (s *imageStore) CountWithFaces(ctx context.Context) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.M{"faces.0": bson.M{"$exists": true}})
}

func (s *imageStore) CountByGroup(ctx context.Context, kind models.GroupKind, groupID primitive.ObjectID) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.M{kind.Field(): groupID})
}

func (s *imageStore) DetachGroup(ctx context.Context, kind models.GroupKind, groupID primitive.ObjectID) (int64, error) {
	update := bson.M{
		"$unset": bson.M{kind.Field(): ""},
		"$set":   bson.M{"updatedAt": time.Now().UTC()},
	}
	res, err := s.coll.UpdateMany(ctx, bson.M{kind.Field(): groupID}, update)
	if err != nil {
		return 0, fmt.Errorf("解除图片与%s的关联失败: %w", kind, err)
	}
	return res.ModifiedCount, nil
}
