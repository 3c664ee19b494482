// Package memory 提供 database.Store 的内存实现，供单元测试与无数据库的本地运行使用。
package memory

import (
	"FaceGallery/internal/models"
	"FaceGallery/pkg/database"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store 是一个线程安全的内存存储。返回的文档都是副本。
type Store struct {
	mu       sync.RWMutex
	persons  map[primitive.ObjectID]models.Person
	faces    map[primitive.ObjectID]models.Face
	images   map[primitive.ObjectID]models.Image
	groups   map[models.GroupKind]map[primitive.ObjectID]models.Group
	counters map[string]int64
}

var _ database.Store = (*Store)(nil)

func NewStore() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.persons = make(map[primitive.ObjectID]models.Person)
	s.faces = make(map[primitive.ObjectID]models.Face)
	s.images = make(map[primitive.ObjectID]models.Image)
	s.groups = map[models.GroupKind]map[primitive.ObjectID]models.Group{
		models.GroupAlbum:   {},
		models.GroupSection: {},
	}
	s.counters = make(map[string]int64)
}

func (s *Store) Persons() database.PersonStore { return personStore{s} }
func (s *Store) Faces() database.FaceStore     { return faceStore{s} }
func (s *Store) Images() database.ImageStore   { return imageStore{s} }

func (s *Store) Groups(kind models.GroupKind) database.GroupStore {
	if kind != models.GroupSection {
		kind = models.GroupAlbum
	}
	return groupStore{s: s, kind: kind}
}

func (s *Store) NextSequence(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name]++
	return s.counters[name], nil
}

func (s *Store) EnsureSequenceAtLeast(_ context.Context, name string, min int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters[name] < min {
		s.counters[name] = min
	}
	return nil
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	s.mu.RLock()
	count := int64(len(s.persons))
	s.mu.RUnlock()
	return s.EnsureSequenceAtLeast(ctx, database.PersonCounterName, count)
}

func (s *Store) DropAllCollections(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

func (s *Store) Close(context.Context) error { return nil }

// sortedValues 按 _id 升序返回满足条件的值。
func sortedValues[T any](m map[primitive.ObjectID]T, keep func(T) bool) []T {
	ids := make([]primitive.ObjectID, 0, len(m))
	for id, v := range m {
		if keep == nil || keep(v) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Hex() < ids[j].Hex() })
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

func cloneIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	out := make([]primitive.ObjectID, len(ids))
	copy(out, ids)
	return out
}

func cloneIDPtr(id *primitive.ObjectID) *primitive.ObjectID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func clonePerson(p models.Person) models.Person {
	p.Faces = cloneIDs(p.Faces)
	p.Images = cloneIDs(p.Images)
	return p
}

func cloneFace(f models.Face) models.Face {
	if f.Embedding != nil {
		emb := make([]float64, len(f.Embedding))
		copy(emb, f.Embedding)
		f.Embedding = emb
	}
	f.PersonID = cloneIDPtr(f.PersonID)
	if f.ManualAssignmentDate != nil {
		t := *f.ManualAssignmentDate
		f.ManualAssignmentDate = &t
	}
	return f
}

func cloneImage(img models.Image) models.Image {
	img.Faces = cloneIDs(img.Faces)
	img.Persons = cloneIDs(img.Persons)
	img.AlbumID = cloneIDPtr(img.AlbumID)
	img.SectionID = cloneIDPtr(img.SectionID)
	return img
}

func stamp(ts *models.Timestamps) {
	now := time.Now().UTC()
	ts.CreatedAt = now
	ts.UpdatedAt = now
}

// --- persons ---

type personStore struct{ s *Store }

func (p personStore) Create(_ context.Context, person *models.Person) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if person.ID.IsZero() {
		person.ID = primitive.NewObjectID()
	}
	if _, exists := p.s.persons[person.ID]; exists {
		return fmt.Errorf("人物 %s 已存在", person.ID.Hex())
	}
	stamp(&person.Timestamps)
	if person.Faces == nil {
		person.Faces = []primitive.ObjectID{}
	}
	if person.Images == nil {
		person.Images = []primitive.ObjectID{}
	}
	p.s.persons[person.ID] = clonePerson(*person)
	return nil
}

func (p personStore) GetByID(_ context.Context, id primitive.ObjectID) (*models.Person, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	v, ok := p.s.persons[id]
	if !ok {
		return nil, nil
	}
	v = clonePerson(v)
	return &v, nil
}

func (p personStore) GetByIDs(_ context.Context, ids []primitive.ObjectID) ([]models.Person, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	out := sortedValues(p.s.persons, func(v models.Person) bool { return models.ContainsID(ids, v.ID) })
	for i := range out {
		out[i] = clonePerson(out[i])
	}
	return out, nil
}

func (p personStore) List(_ context.Context) ([]models.Person, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	out := sortedValues(p.s.persons, nil)
	for i := range out {
		out[i] = clonePerson(out[i])
	}
	return out, nil
}

func (p personStore) Update(_ context.Context, person *models.Person) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	cur, ok := p.s.persons[person.ID]
	if !ok {
		return nil
	}
	person.UpdatedAt = time.Now().UTC()
	cur.Name = person.Name
	cur.Faces = cloneIDs(person.Faces)
	cur.Images = cloneIDs(person.Images)
	cur.UpdatedAt = person.UpdatedAt
	p.s.persons[person.ID] = cur
	return nil
}

func (p personStore) Delete(_ context.Context, id primitive.ObjectID) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	delete(p.s.persons, id)
	return nil
}

func (p personStore) Count(context.Context) (int64, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	return int64(len(p.s.persons)), nil
}

// --- faces ---

type faceStore struct{ s *Store }

func (f faceStore) Create(_ context.Context, face *models.Face) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if face.ID.IsZero() {
		face.ID = primitive.NewObjectID()
	}
	if _, exists := f.s.faces[face.ID]; exists {
		return fmt.Errorf("人脸 %s 已存在", face.ID.Hex())
	}
	stamp(&face.Timestamps)
	f.s.faces[face.ID] = cloneFace(*face)
	return nil
}

func (f faceStore) GetByID(_ context.Context, id primitive.ObjectID) (*models.Face, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	v, ok := f.s.faces[id]
	if !ok {
		return nil, nil
	}
	v = cloneFace(v)
	return &v, nil
}

func (f faceStore) list(keep func(models.Face) bool) []models.Face {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	out := sortedValues(f.s.faces, keep)
	for i := range out {
		out[i] = cloneFace(out[i])
	}
	return out
}

func (f faceStore) List(context.Context) ([]models.Face, error) {
	return f.list(nil), nil
}

func (f faceStore) ListByImage(_ context.Context, imageID primitive.ObjectID) ([]models.Face, error) {
	return f.list(func(v models.Face) bool { return v.ImageID == imageID }), nil
}

func (f faceStore) ListByPerson(_ context.Context, personID primitive.ObjectID) ([]models.Face, error) {
	return f.list(func(v models.Face) bool { return v.PersonID != nil && *v.PersonID == personID }), nil
}

func (f faceStore) ListAssigned(context.Context) ([]models.Face, error) {
	return f.list(func(v models.Face) bool { return v.PersonID != nil }), nil
}

func (f faceStore) ListAutomatic(context.Context) ([]models.Face, error) {
	return f.list(func(v models.Face) bool { return !v.IsManualAssignment }), nil
}

func (f faceStore) Update(_ context.Context, face *models.Face) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	cur, ok := f.s.faces[face.ID]
	if !ok {
		return nil
	}
	face.UpdatedAt = time.Now().UTC()
	cur.PersonID = cloneIDPtr(face.PersonID)
	cur.IsManualAssignment = face.IsManualAssignment
	if face.ManualAssignmentDate != nil {
		t := *face.ManualAssignmentDate
		cur.ManualAssignmentDate = &t
	}
	cur.UpdatedAt = face.UpdatedAt
	f.s.faces[face.ID] = cur
	return nil
}

func (f faceStore) ClearAssignments(_ context.Context, ids []primitive.ObjectID) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var n int64
	now := time.Now().UTC()
	for _, id := range ids {
		cur, ok := f.s.faces[id]
		if !ok || cur.IsManualAssignment || cur.PersonID == nil {
			continue
		}
		cur.PersonID = nil
		cur.UpdatedAt = now
		f.s.faces[id] = cur
		n++
	}
	return n, nil
}

func (f faceStore) Delete(_ context.Context, id primitive.ObjectID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	delete(f.s.faces, id)
	return nil
}

func (f faceStore) DeleteByImage(_ context.Context, imageID primitive.ObjectID) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var n int64
	for id, v := range f.s.faces {
		if v.ImageID == imageID {
			delete(f.s.faces, id)
			n++
		}
	}
	return n, nil
}

func (f faceStore) count(keep func(models.Face) bool) int64 {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	var n int64
	for _, v := range f.s.faces {
		if keep(v) {
			n++
		}
	}
	return n
}

func (f faceStore) Count(context.Context) (int64, error) {
	return f.count(func(models.Face) bool { return true }), nil
}

func (f faceStore) CountManual(context.Context) (int64, error) {
	return f.count(func(v models.Face) bool { return v.IsManualAssignment }), nil
}

func (f faceStore) CountAssigned(context.Context) (int64, error) {
	return f.count(func(v models.Face) bool { return v.PersonID != nil }), nil
}

// --- images ---

type imageStore struct{ s *Store }

func (i imageStore) Create(_ context.Context, image *models.Image) error {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	if image.ID.IsZero() {
		image.ID = primitive.NewObjectID()
	}
	if _, exists := i.s.images[image.ID]; exists {
		return fmt.Errorf("图片 %s 已存在", image.ID.Hex())
	}
	stamp(&image.Timestamps)
	if image.Faces == nil {
		image.Faces = []primitive.ObjectID{}
	}
	if image.Persons == nil {
		image.Persons = []primitive.ObjectID{}
	}
	i.s.images[image.ID] = cloneImage(*image)
	return nil
}

func (i imageStore) GetByID(_ context.Context, id primitive.ObjectID) (*models.Image, error) {
	i.s.mu.RLock()
	defer i.s.mu.RUnlock()
	v, ok := i.s.images[id]
	if !ok {
		return nil, nil
	}
	v = cloneImage(v)
	return &v, nil
}

func (i imageStore) find(keep func(models.Image) bool) []models.Image {
	i.s.mu.RLock()
	defer i.s.mu.RUnlock()
	out := sortedValues(i.s.images, keep)
	for k := range out {
		out[k] = cloneImage(out[k])
	}
	return out
}

func (i imageStore) GetByFileHash(_ context.Context, hash string) (*models.Image, error) {
	found := i.find(func(v models.Image) bool { return v.FileHash == hash })
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (i imageStore) List(_ context.Context, filter database.ImageFilter) ([]models.Image, error) {
	return i.find(func(v models.Image) bool {
		if filter.AlbumID != nil && (v.AlbumID == nil || *v.AlbumID != *filter.AlbumID) {
			return false
		}
		if filter.SectionID != nil && (v.SectionID == nil || *v.SectionID != *filter.SectionID) {
			return false
		}
		return true
	}), nil
}

func (i imageStore) FindSimilarByPHash(_ context.Context, pHash string, limit int) ([]models.Image, error) {
	found := i.find(func(v models.Image) bool { return v.PerceptualHash == pHash })
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

func (i imageStore) UpdateReferences(_ context.Context, image *models.Image) error {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	cur, ok := i.s.images[image.ID]
	if !ok {
		return nil
	}
	image.UpdatedAt = time.Now().UTC()
	cur.Faces = cloneIDs(image.Faces)
	cur.Persons = cloneIDs(image.Persons)
	cur.UpdatedAt = image.UpdatedAt
	i.s.images[image.ID] = cur
	return nil
}

func (i imageStore) Delete(_ context.Context, id primitive.ObjectID) error {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	delete(i.s.images, id)
	return nil
}

func (i imageStore) Count(context.Context) (int64, error) {
	i.s.mu.RLock()
	defer i.s.mu.RUnlock()
	return int64(len(i.s.images)), nil
}

func (i imageStore) CountWithFaces(context.Context) (int64, error) {
	return int64(len(i.find(func(v models.Image) bool { return len(v.Faces) > 0 }))), nil
}

func groupRef(img *models.Image, kind models.GroupKind) **primitive.ObjectID {
	if kind == models.GroupSection {
		return &img.SectionID
	}
	return &img.AlbumID
}

func (i imageStore) CountByGroup(_ context.Context, kind models.GroupKind, groupID primitive.ObjectID) (int64, error) {
	return int64(len(i.find(func(v models.Image) bool {
		ref := *groupRef(&v, kind)
		return ref != nil && *ref == groupID
	}))), nil
}

func (i imageStore) DetachGroup(_ context.Context, kind models.GroupKind, groupID primitive.ObjectID) (int64, error) {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	var n int64
	for id, v := range i.s.images {
		ref := groupRef(&v, kind)
		if *ref != nil && **ref == groupID {
			*ref = nil
			v.UpdatedAt = time.Now().UTC()
			i.s.images[id] = v
			n++
		}
	}
	return n, nil
}

// --- groups ---

type groupStore struct {
	s    *Store
	kind models.GroupKind
}

func (g groupStore) coll() map[primitive.ObjectID]models.Group {
	return g.s.groups[g.kind]
}

func (g groupStore) Create(_ context.Context, group *models.Group) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	for _, v := range g.coll() {
		if v.Name == group.Name {
			return fmt.Errorf("%s '%s' 已存在", g.kind, group.Name)
		}
	}
	if group.ID.IsZero() {
		group.ID = primitive.NewObjectID()
	}
	stamp(&group.Timestamps)
	g.coll()[group.ID] = *group
	return nil
}

func (g groupStore) GetByID(_ context.Context, id primitive.ObjectID) (*models.Group, error) {
	g.s.mu.RLock()
	defer g.s.mu.RUnlock()
	v, ok := g.coll()[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (g groupStore) GetByName(_ context.Context, name string) (*models.Group, error) {
	g.s.mu.RLock()
	defer g.s.mu.RUnlock()
	for _, v := range sortedValues(g.coll(), nil) {
		if v.Name == name {
			return &v, nil
		}
	}
	return nil, nil
}

// List 按 _id 倒序，即最新创建的在前，与 MongoDB 实现一致。
func (g groupStore) List(context.Context) ([]models.Group, error) {
	g.s.mu.RLock()
	defer g.s.mu.RUnlock()
	out := sortedValues(g.coll(), nil)
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out, nil
}

func (g groupStore) Update(_ context.Context, group *models.Group) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	cur, ok := g.coll()[group.ID]
	if !ok {
		return nil
	}
	group.UpdatedAt = time.Now().UTC()
	cur.Name = group.Name
	cur.Description = group.Description
	cur.UpdatedAt = group.UpdatedAt
	g.coll()[group.ID] = cur
	return nil
}

func (g groupStore) Delete(_ context.Context, id primitive.ObjectID) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	delete(g.coll(), id)
	return nil
}

func (g groupStore) Count(context.Context) (int64, error) {
	g.s.mu.RLock()
	defer g.s.mu.RUnlock()
	return int64(len(g.coll())), nil
}
