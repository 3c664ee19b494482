package gallery

import (
	"FaceGallery/internal/models"
	"context"
)

type Stats struct {
	TotalPersons       int64   `json:"total_persons"`
	TotalImages        int64   `json:"total_images"`
	TotalFaces         int64   `json:"total_faces"`
	TotalAlbums        int64   `json:"total_albums"`
	TotalSections      int64   `json:"total_sections"`
	ImagesWithFaces    int64   `json:"images_with_faces"`
	ImagesWithoutFaces int64   `json:"images_without_faces"`
	AssignedFaces      int64   `json:"assigned_faces"`
	ManualAssignments  int64   `json:"manual_assignments"`
	FaceCoverage       float64 `json:"face_coverage_percent"`
	AvgFacesPerImage   float64 `json:"avg_faces_per_image"`
	AvgFacesPerPerson  float64 `json:"avg_faces_per_person"`
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	counters := []struct {
		dst *int64
		fn  func(context.Context) (int64, error)
	}{
		{&st.TotalPersons, s.db.Persons().Count},
		{&st.TotalImages, s.db.Images().Count},
		{&st.TotalFaces, s.db.Faces().Count},
		{&st.TotalAlbums, s.db.Groups(models.GroupAlbum).Count},
		{&st.TotalSections, s.db.Groups(models.GroupSection).Count},
		{&st.ImagesWithFaces, s.db.Images().CountWithFaces},
		{&st.AssignedFaces, s.db.Faces().CountAssigned},
		{&st.ManualAssignments, s.db.Faces().CountManual},
	}
	for _, c := range counters {
		n, err := c.fn(ctx)
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}

	st.ImagesWithoutFaces = st.TotalImages - st.ImagesWithFaces
	if st.TotalImages > 0 {
		st.FaceCoverage = round(float64(st.ImagesWithFaces)/float64(st.TotalImages)*100, 2)
	}
	if st.ImagesWithFaces > 0 {
		st.AvgFacesPerImage = round(float64(st.TotalFaces)/float64(st.ImagesWithFaces), 2)
	}
	if st.TotalPersons > 0 {
		st.AvgFacesPerPerson = round(float64(st.AssignedFaces)/float64(st.TotalPersons), 2)
	}
	return &st, nil
}
