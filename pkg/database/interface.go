package database

import (
	"FaceGallery/internal/models"
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PersonCounterName 是人物自动编号计数器的名称。
const PersonCounterName = "person_number"

// Store 是一个顶层接口，它组合了所有特定数据模型的存储接口。
// 所有 List 类方法都按 _id 升序返回，保证“存储顺序”稳定。
type Store interface {
	Persons() PersonStore
	Faces() FaceStore
	Images() ImageStore
	Groups(kind models.GroupKind) GroupStore

	// NextSequence 原子地递增并返回指定计数器的值。
	NextSequence(ctx context.Context, name string) (int64, error)
	// EnsureSequenceAtLeast 把计数器提升到不小于 min 的值，用于兼容旧数据。
	EnsureSequenceAtLeast(ctx context.Context, name string, min int64) error

	EnsureIndexes(ctx context.Context) error
	DropAllCollections(ctx context.Context) error
	Close(ctx context.Context) error
}

// PersonStore 定义了所有与 Person 模型相关的数据库操作。
// GetByID 在文档不存在时返回 (nil, nil)。
type PersonStore interface {
	Create(ctx context.Context, person *models.Person) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Person, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Person, error)
	List(ctx context.Context) ([]models.Person, error)
	// Update 整体覆盖 name、faces、images 三个字段（读-改-写）。
	Update(ctx context.Context, person *models.Person) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	Count(ctx context.Context) (int64, error)
}

// FaceStore 定义了所有与 Face 模型相关的数据库操作。
type FaceStore interface {
	Create(ctx context.Context, face *models.Face) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Face, error)
	List(ctx context.Context) ([]models.Face, error)
	ListByImage(ctx context.Context, imageID primitive.ObjectID) ([]models.Face, error)
	ListByPerson(ctx context.Context, personID primitive.ObjectID) ([]models.Face, error)
	// ListAssigned 返回 personId 非空的人脸。
	ListAssigned(ctx context.Context) ([]models.Face, error)
	// ListAutomatic 返回 isManualAssignment 不为 true 的人脸（false 或字段缺失）。
	ListAutomatic(ctx context.Context) ([]models.Face, error)
	// Update 覆盖 personId、isManualAssignment、manualAssignmentDate。
	Update(ctx context.Context, face *models.Face) error
	// ClearAssignments 清除指定自动人脸的 personId，手动人脸不受影响。重复调用是安全的。
	ClearAssignments(ctx context.Context, ids []primitive.ObjectID) (int64, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	DeleteByImage(ctx context.Context, imageID primitive.ObjectID) (int64, error)
	Count(ctx context.Context) (int64, error)
	CountManual(ctx context.Context) (int64, error)
	CountAssigned(ctx context.Context) (int64, error)
}

// ImageFilter 限定图片列表的范围，零值代表不过滤。
type ImageFilter struct {
	AlbumID   *primitive.ObjectID
	SectionID *primitive.ObjectID
}

// ImageStore 定义了所有与 Image 模型相关的数据库操作。
type ImageStore interface {
	Create(ctx context.Context, image *models.Image) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Image, error)
	GetByFileHash(ctx context.Context, hash string) (*models.Image, error)
	List(ctx context.Context, filter ImageFilter) ([]models.Image, error)
	FindSimilarByPHash(ctx context.Context, pHash string, limit int) ([]models.Image, error)
	// UpdateReferences 覆盖反范式字段 faces 与 persons。
	UpdateReferences(ctx context.Context, image *models.Image) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	Count(ctx context.Context) (int64, error)
	CountWithFaces(ctx context.Context) (int64, error)
	CountByGroup(ctx context.Context, kind models.GroupKind, groupID primitive.ObjectID) (int64, error)
	// DetachGroup 取消所有图片对该分组的引用，返回受影响的图片数。
	DetachGroup(ctx context.Context, kind models.GroupKind, groupID primitive.ObjectID) (int64, error)
}

// GroupStore 定义了相册与分区共用的数据库操作。
type GroupStore interface {
	Create(ctx context.Context, group *models.Group) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Group, error)
	GetByName(ctx context.Context, name string) (*models.Group, error)
	List(ctx context.Context) ([]models.Group, error)
	Update(ctx context.Context, group *models.Group) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	Count(ctx context.Context) (int64, error)
}
