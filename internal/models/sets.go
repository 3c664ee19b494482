package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// ContainsID 报告 ids 中是否包含 id。
func ContainsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// AddID 以集合语义追加 id，重复追加是空操作。
func AddID(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	if ContainsID(ids, id) {
		return ids
	}
	return append(ids, id)
}

// RemoveID 移除 id 的所有出现，并保持其余元素的顺序。
func RemoveID(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// UniqueIDs 去重并保持首次出现的顺序。
func UniqueIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, v := range ids {
		out = AddID(out, v)
	}
	return out
}

// AddFace 把人脸及其所在图片加入该人物。
func (p *Person) AddFace(faceID, imageID primitive.ObjectID) {
	p.Faces = AddID(p.Faces, faceID)
	p.Images = AddID(p.Images, imageID)
}

// RemoveFace 只移除人脸引用，图片引用是否保留由调用方根据剩余人脸决定。
func (p *Person) RemoveFace(faceID primitive.ObjectID) {
	p.Faces = RemoveID(p.Faces, faceID)
}

// RemoveImage 移除图片引用。
func (p *Person) RemoveImage(imageID primitive.ObjectID) {
	p.Images = RemoveID(p.Images, imageID)
}
