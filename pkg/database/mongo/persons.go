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

// personStore 封装了与 "persons" 集合相关的所有操作。
type personStore struct {
	coll *mongo.Collection
}

func (s *personStore) Create(ctx context.Context, person *models.Person) error {
	if person.ID.IsZero() {
		person.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	person.CreatedAt = now
	person.UpdatedAt = now
	if person.Faces == nil {
		person.Faces = []primitive.ObjectID{}
	}
	if person.Images == nil {
		person.Images = []primitive.ObjectID{}
	}
	if _, err := s.coll.InsertOne(ctx, person); err != nil {
		return fmt.Errorf("创建人物 %s 失败: %w", person.Name, err)
	}
	return nil
}

func (s *personStore) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Person, error) {
	return findOne[models.Person](ctx, s.coll, bson.M{"_id": id})
}

func (s *personStore) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Person, error) {
	if len(ids) == 0 {
		return []models.Person{}, nil
	}
	return findAll[models.Person](ctx, s.coll, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetSort(byID))
}

func (s *personStore) List(ctx context.Context) ([]models.Person, error) {
	return findAll[models.Person](ctx, s.coll, bson.D{}, options.Find().SetSort(byID))
}

func (s *personStore) Update(ctx context.Context, person *models.Person) error {
	person.UpdatedAt = time.Now().UTC()
	update := bson.M{"$set": bson.M{
		"name":      person.Name,
		"faces":     nonNil(person.Faces),
		"images":    nonNil(person.Images),
		"updatedAt": person.UpdatedAt,
	}}
	if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": person.ID}, update); err != nil {
		return fmt.Errorf("更新人物 %s 失败: %w", person.ID.Hex(), err)
	}
	return nil
}

func (s *personStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *personStore) Count(ctx context.Context) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.D{})
}

// nonNil 让空集合以 [] 而不是 null 写入数据库。
func nonNil(ids []primitive.ObjectID) []primitive.ObjectID {
	if ids == nil {
		return []primitive.ObjectID{}
	}
	return ids
}
