package gallery

import (
	"FaceGallery/internal/models"
	"context"
	"strings"
)

// GroupSummary 是带有图片数量的相册或分区。
type GroupSummary struct {
	models.Group
	ImageCount int64 `json:"image_count"`
}

type DeleteGroupResult struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ImagesDetached int64  `json:"images_detached"`
}

// GroupUpdate 中为 nil 的字段保持不变。
type GroupUpdate struct {
	Name        *string
	Description *string
}

func (s *Service) CreateGroup(ctx context.Context, kind models.GroupKind, name, description string) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidInput("%s name is required", kind)
	}
	store := s.db.Groups(kind)
	if existing, err := store.GetByName(ctx, name); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, newError(KindConflict, "%s with name %q already exists", kind, name)
	}
	g := &models.Group{Name: name, Description: strings.TrimSpace(description)}
	if err := store.Create(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// ListGroups 按创建时间倒序返回所有分组及其图片数。
func (s *Service) ListGroups(ctx context.Context, kind models.GroupKind) ([]GroupSummary, error) {
	groups, err := s.db.Groups(kind).List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]GroupSummary, 0, len(groups))
	for _, g := range groups {
		n, err := s.db.Images().CountByGroup(ctx, kind, g.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, GroupSummary{Group: g, ImageCount: n})
	}
	return out, nil
}

func (s *Service) GetGroup(ctx context.Context, kind models.GroupKind, id string) (*GroupSummary, error) {
	g, err := s.findGroup(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	n, err := s.db.Images().CountByGroup(ctx, kind, g.ID)
	if err != nil {
		return nil, err
	}
	return &GroupSummary{Group: *g, ImageCount: n}, nil
}

func (s *Service) UpdateGroup(ctx context.Context, kind models.GroupKind, id string, upd GroupUpdate) (*models.Group, error) {
	g, err := s.findGroup(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, invalidInput("%s name must not be empty", kind)
		}
		if name != g.Name {
			other, err := s.db.Groups(kind).GetByName(ctx, name)
			if err != nil {
				return nil, err
			}
			if other != nil && other.ID != g.ID {
				return nil, newError(KindConflict, "%s with name %q already exists", kind, name)
			}
		}
		g.Name = name
	}
	if upd.Description != nil {
		g.Description = strings.TrimSpace(*upd.Description)
	}
	if err := s.db.Groups(kind).Update(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// DeleteGroup 删除分组并解除图片的关联，图片本身不会被删除。
func (s *Service) DeleteGroup(ctx context.Context, kind models.GroupKind, id string) (*DeleteGroupResult, error) {
	g, err := s.findGroup(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	n, err := s.db.Images().DetachGroup(ctx, kind, g.ID)
	if err != nil {
		return nil, err
	}
	if err := s.db.Groups(kind).Delete(ctx, g.ID); err != nil {
		return nil, err
	}
	return &DeleteGroupResult{ID: g.ID.Hex(), Name: g.Name, ImagesDetached: n}, nil
}

func (s *Service) findGroup(ctx context.Context, kind models.GroupKind, id string) (*models.Group, error) {
	gid, err := parseID(string(kind), id)
	if err != nil {
		return nil, err
	}
	g, err := s.db.Groups(kind).GetByID(ctx, gid)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, notFound("%s %s not found", kind, id)
	}
	return g, nil
}
