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

// faceStore 封装了与 "faces" 集合相关的所有操作。
type faceStore struct {
	coll *mongo.Collection
}

// automaticFilter 匹配 isManualAssignment 为 false 或不存在的人脸。
var automaticFilter = bson.M{"isManualAssignment": bson.M{"$ne": true}}

var assignedFilter = bson.M{"personId": bson.M{"$exists": true, "$ne": nil}}

func (s *faceStore) Create(ctx context.Context, face *models.Face) error {
	if face.ID.IsZero() {
		face.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	face.CreatedAt = now
	face.UpdatedAt = now
	if _, err := s.coll.InsertOne(ctx, face); err != nil {
		return fmt.Errorf("创建人脸失败: %w", err)
	}
	return nil
}

func (s *faceStore) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Face, error) {
	return findOne[models.Face](ctx, s.coll, bson.M{"_id": id})
}

func (s *faceStore) List(ctx context.Context) ([]models.Face, error) {
	return findAll[models.Face](ctx, s.coll, bson.D{}, options.Find().SetSort(byID))
}

func (s *faceStore) ListByImage(ctx context.Context, imageID primitive.ObjectID) ([]models.Face, error) {
	return findAll[models.Face](ctx, s.coll, bson.M{"imageId": imageID}, options.Find().SetSort(byID))
}

func (s *faceStore) ListByPerson(ctx context.Context, personID primitive.ObjectID) ([]models.Face, error) {
	return findAll[models.Face](ctx, s.coll, bson.M{"personId": personID}, options.Find().SetSort(byID))
}

func (s *faceStore) ListAssigned(ctx context.Context) ([]models.Face, error) {
	return findAll[models.Face](ctx, s.coll, assignedFilter, options.Find().SetSort(byID))
}

func (s *faceStore) ListAutomatic(ctx context.Context) ([]models.Face, error) {
	return findAll[models.Face](ctx, s.coll, automaticFilter, options.Find().SetSort(byID))
}

func (s *faceStore) Update(ctx context.Context, face *models.Face) error {
	face.UpdatedAt = time.Now().UTC()
	set := bson.M{
		"isManualAssignment": face.IsManualAssignment,
		"updatedAt":          face.UpdatedAt,
	}
	update := bson.M{"$set": set}
	if face.PersonID != nil {
		set["personId"] = *face.PersonID
	} else {
		update["$unset"] = bson.M{"personId": ""}
	}
	if face.ManualAssignmentDate != nil {
		set["manualAssignmentDate"] = *face.ManualAssignmentDate
	}

	if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": face.ID}, update); err != nil {
		return fmt.Errorf("更新人脸 %s 失败: %w", face.ID.Hex(), err)
	}
	return nil
}

func (s *faceStore) ClearAssignments(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	filter := bson.M{
		"_id":                bson.M{"$in": ids},
		"isManualAssignment": bson.M{"$ne": true},
	}
	update := bson.M{
		"$unset": bson.M{"personId": ""},
		"$set":   bson.M{"updatedAt": time.Now().UTC()},
	}
	res, err := s.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("清除自动分配失败: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *faceStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *faceStore) DeleteByImage(ctx context.Context, imageID primitive.ObjectID) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"imageId": imageID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *faceStore) Count(ctx context.Context) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.D{})
}

func (s *faceStore) CountManual(ctx context.Context) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.M{"isManualAssignment": true})
}

func (s *faceStore) CountAssigned(ctx context.Context) (int64, error) {
	return s.coll.CountDocuments(ctx, assignedFilter)
}
