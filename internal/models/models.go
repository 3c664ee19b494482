package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Timestamps 嵌入到各个模型中，用于追踪创建和更新时间。
type Timestamps struct {
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// BoundingBox 是人脸在原图中的位置，单位为像素。
type BoundingBox struct {
	Top    int `bson:"top" json:"top"`
	Right  int `bson:"right" json:"right"`
	Bottom int `bson:"bottom" json:"bottom"`
	Left   int `bson:"left" json:"left"`
}

// Width 返回框的宽度。
func (b BoundingBox) Width() int { return b.Right - b.Left }

// Height 返回框的高度。
func (b BoundingBox) Height() int { return b.Bottom - b.Top }

// Person 代表一个身份，对应 persons 集合中的一个文档。
// Faces 必须与 faces 集合中 personId 指向它的人脸集合完全一致，
// 没有任何人脸的 Person 不允许存在。
type Person struct {
	ID   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name string             `bson:"name" json:"name"`

	// Faces 与 Images 以 ID 集合的形式保存，不内嵌文档。
	Faces  []primitive.ObjectID `bson:"faces" json:"faces"`
	Images []primitive.ObjectID `bson:"images" json:"images"`

	Timestamps `bson:",inline"`
}

// Face 代表某张图片中检测到的一张人脸。
type Face struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Embedding []float64          `bson:"embedding,omitempty" json:"-"`
	ImageID   primitive.ObjectID `bson:"imageId" json:"imageId"`
	Location  BoundingBox        `bson:"faceLocation" json:"faceLocation"`

	// PersonID 在分配之前为 nil。
	PersonID *primitive.ObjectID `bson:"personId,omitempty" json:"personId,omitempty"`

	// IsManualAssignment 为 true 的人脸不会被重新聚类改动。
	// 旧数据可能缺少该字段，缺失等价于 false。
	IsManualAssignment   bool       `bson:"isManualAssignment" json:"isManualAssignment"`
	ManualAssignmentDate *time.Time `bson:"manualAssignmentDate,omitempty" json:"manualAssignmentDate,omitempty"`

	// CroppedFaceKey 是裁剪后人脸图片在 blob 存储中的键。
	CroppedFaceKey      string `bson:"croppedFaceKey,omitempty" json:"-"`
	CroppedFaceFilename string `bson:"croppedFaceFilename,omitempty" json:"croppedFaceFilename,omitempty"`

	Timestamps `bson:",inline"`
}

// HasEmbedding 报告该人脸是否带有可比较的特征向量。
func (f *Face) HasEmbedding() bool {
	return len(f.Embedding) > 0
}

// Image 代表一张上传的照片。
type Image struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FileName string             `bson:"filename" json:"filename"`
	MimeType string             `bson:"mimeType" json:"mimeType"`

	// ImageKey 是原图在 blob 存储中的键。
	ImageKey string `bson:"imageKey" json:"-"`

	FileHash       string `bson:"fileHash" json:"fileHash"`
	PerceptualHash string `bson:"perceptualHash" json:"perceptualHash"`
	Width          int    `bson:"width" json:"width"`
	Height         int    `bson:"height" json:"height"`

	// TakenAt 来自 EXIF，没有时为空。
	TakenAt *time.Time `bson:"takenAt,omitempty" json:"takenAt,omitempty"`

	// 反范式字段：图片内的人脸 ID 列表、出现在图片中的人物 ID 集合。
	Faces   []primitive.ObjectID `bson:"faces" json:"faces"`
	Persons []primitive.ObjectID `bson:"persons" json:"persons"`

	AlbumID   *primitive.ObjectID `bson:"albumId,omitempty" json:"albumId,omitempty"`
	SectionID *primitive.ObjectID `bson:"sectionId,omitempty" json:"sectionId,omitempty"`

	Timestamps `bson:",inline"`
}

// GroupKind 区分相册与分区两种图片分组。
type GroupKind string

const (
	GroupAlbum   GroupKind = "album"
	GroupSection GroupKind = "section"
)

// Field 返回图片文档中引用该分组的字段名。
func (k GroupKind) Field() string {
	if k == GroupSection {
		return "sectionId"
	}
	return "albumId"
}

// Group 是相册或分区，两者结构相同，分别存放在 albums 与 sections 集合。
type Group struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description" json:"description"`

	Timestamps `bson:",inline"`
}
