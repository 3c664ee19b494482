package mongo

import (
	"FaceGallery/internal/models"
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// groupStore 同时服务 "albums" 与 "sections" 两个集合。
type groupStore struct {
	coll *mongo.Collection
}

func (s *groupStore) Create(ctx context.Context, group *models.Group) error {
	if group.ID.IsZero() {
		group.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	group.CreatedAt = now
	group.UpdatedAt = now
	if _, err := s.coll.InsertOne(ctx, group); err != nil {
		return fmt.Errorf("创建 %s '%s' 失败: %w", s.coll.Name(), group.Name, err)
	}
	return nil
}

func (s *groupStore) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Group, error) {
	return findOne[models.Group](ctx, s.coll, bson.M{"_id": id})
}

func (s *groupStore) GetByName(ctx context.Context, name string) (*models.Group, error) {
	return findOne[models.Group](ctx, s.coll, bson.M{"name": name})
}

// List 按创建时间倒序返回，最新的分组排在前面。
func (s *groupStore) List(ctx context.Context) ([]models.Group, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	return findAll[models.Group](ctx, s.coll, bson.D{}, opts)
}

func (s *groupStore) Update(ctx context.Context, group *models.Group) error {
	group.UpdatedAt = time.Now().UTC()
	update := bson.M{"$set": bson.M{
		"name":        group.Name,
		"description": group.Description,
		"updatedAt":   group.UpdatedAt,
	}}
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": group.ID}, update)
	return err
}

func (s *groupStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *groupStore) Count(ctx context.Context) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.D{})
}
