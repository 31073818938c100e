package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-lms-api/internal/models"
	appErrors "github.com/noah-isme/school-lms-api/pkg/errors"
)

type fakeMaterialRepo struct {
	items     map[string]*models.Material
	filter    models.MaterialFilter
	downloads int
	views     int
}

func (f *fakeMaterialRepo) List(ctx context.Context, filter models.MaterialFilter) ([]models.Material, int, error) {
	f.filter = filter
	var out []models.Material
	for _, m := range f.items {
		out = append(out, *m)
	}
	return out, len(out), nil
}

func (f *fakeMaterialRepo) GetByID(ctx context.Context, id string) (*models.Material, error) {
	m, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *m
	return &copy, nil
}

func (f *fakeMaterialRepo) Create(ctx context.Context, m *models.Material) error {
	m.ID, m.Code = "m-new", "MT-000001"
	copy := *m
	f.items[m.ID] = &copy
	return nil
}

func (f *fakeMaterialRepo) Update(ctx context.Context, m *models.Material) error {
	copy := *m
	f.items[m.ID] = &copy
	return nil
}

func (f *fakeMaterialRepo) Delete(ctx context.Context, id string) error {
	delete(f.items, id)
	return nil
}

func (f *fakeMaterialRepo) RecordDownload(ctx context.Context, id string, at time.Time) (int, error) {
	f.downloads++
	f.items[id].DownloadCount++
	return f.items[id].DownloadCount, nil
}

func (f *fakeMaterialRepo) RecordView(ctx context.Context, id string, at time.Time) error {
	f.views++
	return nil
}

func (f *fakeMaterialRepo) Stats(ctx context.Context, filter models.MaterialFilter) (*models.MaterialStats, error) {
	f.filter = filter
	return &models.MaterialStats{Total: len(f.items)}, nil
}

func strPtr(v string) *string { return &v }

func newMaterialFixture() (*MaterialService, *fakeMaterialRepo) {
	courses := &fakeCourseRepo{courses: map[string]*models.Course{
		"course-1": {ID: "course-1", TeacherID: "teacher-1", Active: true},
		"course-2": {ID: "course-2", TeacherID: "teacher-2", Active: true},
	}}
	groups := &fakeGroupRepo{
		groups: map[string]*models.Group{
			"group-1": {ID: "group-1", CourseID: "course-1", TeacherID: "teacher-1"},
			"group-2": {ID: "group-2", CourseID: "course-1", TeacherID: "teacher-1"},
			"group-9": {ID: "group-9", CourseID: "course-2", TeacherID: "teacher-2"},
		},
		rosters: map[string]map[string]models.EnrollmentStatus{
			"group-1": {"student-1": models.EnrollmentActive},
			"group-2": {"student-2": models.EnrollmentActive},
		},
	}
	repo := &fakeMaterialRepo{items: map[string]*models.Material{
		"m-all": {ID: "m-all", CourseID: "course-1", UploadedBy: "teacher-1", Visibility: models.VisibleAllStudents, IsPublished: true,
			FileURL: strPtr("https://files.example.com/syllabus.pdf"), FileSize: 2048, DownloadCount: 3},
		"m-g2": {ID: "m-g2", CourseID: "course-1", UploadedBy: "teacher-1", Visibility: models.VisibleSpecificGroups, GroupIDs: []string{"group-2"}, IsPublished: true,
			ExternalURL: strPtr("https://example.com/reading")},
		"m-draft": {ID: "m-draft", CourseID: "course-1", UploadedBy: "teacher-1", Visibility: models.VisibleAllStudents},
	}}
	svc := NewMaterialService(repo, courses, groups, nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC) }
	return svc, repo
}

func TestMaterialListScopesByRole(t *testing.T) {
	svc, repo := newMaterialFixture()
	ctx := context.Background()

	_, _, err := svc.List(ctx, models.MaterialFilter{}, studentClaims("student-1"))
	require.NoError(t, err)
	assert.True(t, repo.filter.ForStudent)
	assert.Equal(t, []string{"group-1"}, repo.filter.StudentGroups)

	_, _, err = svc.List(ctx, models.MaterialFilter{}, studentClaims("student-unenrolled"))
	require.NoError(t, err)
	assert.True(t, repo.filter.ForStudent)
	assert.Empty(t, repo.filter.StudentGroups)

	_, _, err = svc.List(ctx, models.MaterialFilter{CourseID: "course-1"}, teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.False(t, repo.filter.ForStudent)
	assert.Equal(t, "teacher-1", repo.filter.TeacherID)

	_, _, err = svc.List(ctx, models.MaterialFilter{}, adminClaims())
	require.NoError(t, err)
	assert.Empty(t, repo.filter.TeacherID)
}

func TestMaterialGetHonoursVisibility(t *testing.T) {
	svc, repo := newMaterialFixture()
	ctx := context.Background()

	m, err := svc.Get(ctx, "m-all", studentClaims("student-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, m.ViewCount)
	assert.Equal(t, 1, repo.views)

	_, err = svc.Get(ctx, "m-g2", studentClaims("student-1"))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	_, err = svc.Get(ctx, "m-g2", studentClaims("student-2"))
	require.NoError(t, err)

	_, err = svc.Get(ctx, "m-draft", studentClaims("student-1"))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Get(ctx, "m-draft", teacherClaims("teacher-1"))
	require.NoError(t, err)
	_, err = svc.Get(ctx, "m-draft", teacherClaims("teacher-2"))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 2, repo.views)
}

func TestMaterialDownloadSkipsUploader(t *testing.T) {
	svc, repo := newMaterialFixture()
	ctx := context.Background()

	out, err := svc.Download(ctx, "m-all", studentClaims("student-1"))
	require.NoError(t, err)
	assert.Equal(t, 4, out.DownloadCount)
	assert.Equal(t, "https://files.example.com/syllabus.pdf", *out.FileURL)
	assert.EqualValues(t, 2048, out.FileSize)

	out, err = svc.Download(ctx, "m-all", teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, 4, out.DownloadCount)
	assert.Equal(t, 1, repo.downloads)
}

func TestMaterialCreateValidation(t *testing.T) {
	svc, repo := newMaterialFixture()
	ctx := context.Background()
	valid := models.MaterialRequest{Title: "Slides", Type: models.MaterialPresentation, CourseID: "course-1", FileURL: strPtr("https://files.example.com/w1.pptx"), FileSize: 1 << 20}

	cases := []struct {
		name   string
		mutate func(*models.MaterialRequest)
		claims *models.JWTClaims
		code   string
	}{
		{"student", func(*models.MaterialRequest) {}, studentClaims("student-1"), appErrors.ErrForbidden.Code},
		{"other teacher's course", func(*models.MaterialRequest) {}, teacherClaims("teacher-2"), appErrors.ErrForbidden.Code},
		{"oversized file", func(r *models.MaterialRequest) { r.FileSize = models.MaxMaterialFileSize + 1 }, teacherClaims("teacher-1"), appErrors.ErrValidation.Code},
		{"link without url", func(r *models.MaterialRequest) { r.Type, r.FileURL = models.MaterialLink, nil }, teacherClaims("teacher-1"), appErrors.ErrValidation.Code},
		{"file without location", func(r *models.MaterialRequest) { r.FileURL = nil }, teacherClaims("teacher-1"), appErrors.ErrValidation.Code},
		{"groups required", func(r *models.MaterialRequest) { r.Visibility = models.VisibleSpecificGroups }, teacherClaims("teacher-1"), appErrors.ErrValidation.Code},
		{"group of another course", func(r *models.MaterialRequest) {
			r.Visibility, r.GroupIDs = models.VisibleSpecificGroups, []string{"group-9"}
		}, teacherClaims("teacher-1"), appErrors.ErrValidation.Code},
		{"unknown course", func(r *models.MaterialRequest) { r.CourseID = "course-x" }, adminClaims(), appErrors.ErrNotFound.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			_, err := svc.Create(ctx, req, tc.claims)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
		})
	}

	m, err := svc.Create(ctx, valid, teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, "MT-000001", m.Code)
	assert.Equal(t, models.VisibleAllStudents, m.Visibility)
	assert.Equal(t, "other", m.Category)
	assert.Equal(t, "teacher-1", m.UploadedBy)
	assert.Contains(t, repo.items, "m-new")
}

func TestMaterialUpdateAndDeleteRequireOwnership(t *testing.T) {
	svc, repo := newMaterialFixture()
	ctx := context.Background()
	req := models.MaterialRequest{Title: "Syllabus v2", Type: models.MaterialDocument, CourseID: "course-1", FileURL: strPtr("https://files.example.com/v2.pdf"), IsPublished: true}

	_, err := svc.Update(ctx, "m-all", req, teacherClaims("teacher-2"))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	moved := req
	moved.CourseID = "course-2"
	_, err = svc.Update(ctx, "m-all", moved, adminClaims())
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	m, err := svc.Update(ctx, "m-all", req, teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, "Syllabus v2", m.Title)
	assert.Equal(t, 3, m.DownloadCount)

	require.Error(t, svc.Delete(ctx, "m-all", studentClaims("student-1")))
	require.NoError(t, svc.Delete(ctx, "m-all", teacherClaims("teacher-1")))
	assert.NotContains(t, repo.items, "m-all")
}

func TestMaterialStatsScopedToTeacher(t *testing.T) {
	svc, repo := newMaterialFixture()

	_, err := svc.Stats(context.Background(), "course-1", teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", repo.filter.TeacherID)
	assert.Equal(t, "course-1", repo.filter.CourseID)

	_, err = svc.Stats(context.Background(), "", studentClaims("student-1"))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
