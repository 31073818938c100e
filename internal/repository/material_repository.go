package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/school-lms-api/internal/models"
)

const materialColumns = `id, code, title, description, type, category, file_url, file_name, file_size, mime_type, external_url, course_id, group_ids,
uploaded_by, visibility, is_published, folder, tags, download_count, view_count, last_accessed_at, created_at, updated_at`

// MaterialRepository stores course material metadata.
type MaterialRepository struct {
	db *sqlx.DB
}

func NewMaterialRepository(db *sqlx.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

func materialConditions(filter models.MaterialFilter) whereBuilder {
	var where whereBuilder
	if filter.CourseID != "" {
		where.add("course_id = ?", filter.CourseID)
	}
	if filter.Type != "" {
		where.add("type = ?", filter.Type)
	}
	if filter.Folder != "" {
		where.add("folder = ?", filter.Folder)
	}
	if filter.UploadedBy != "" {
		where.add("uploaded_by = ?", filter.UploadedBy)
	}
	if filter.Published != nil {
		where.add("is_published = ?", *filter.Published)
	}
	if term := strings.ToLower(strings.TrimSpace(filter.Search)); term != "" {
		where.add("(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)", "%"+term+"%")
	}
	if filter.TeacherID != "" {
		where.add("(course_id IN (SELECT id FROM courses WHERE teacher_id = ?) OR uploaded_by = ?)", filter.TeacherID)
	}
	if filter.ForStudent {
		groups := pq.Array(filter.StudentGroups)
		where.addRaw("is_published = TRUE")
		where.add("course_id IN (SELECT course_id FROM groups WHERE id = ANY(?))", groups)
		where.add("(visibility = 'all_students' OR (visibility = 'specific_groups' AND group_ids && ?::text[]))", groups)
	}
	return where
}

func (r *MaterialRepository) List(ctx context.Context, filter models.MaterialFilter) ([]models.Material, int, error) {
	where := materialConditions(filter)
	limit, offset := pageWindow(filter.Page, filter.PageSize)

	items := []models.Material{}
	query := fmt.Sprintf("SELECT %s FROM materials%s ORDER BY folder ASC, created_at DESC LIMIT %d OFFSET %d", materialColumns, where.clause(), limit, offset)
	if err := r.db.SelectContext(ctx, &items, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list materials: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM materials"+where.clause(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count materials: %w", err)
	}
	return items, total, nil
}

func (r *MaterialRepository) GetByID(ctx context.Context, id string) (*models.Material, error) {
	var m models.Material
	err := r.db.GetContext(ctx, &m, "SELECT "+materialColumns+" FROM materials WHERE id = $1", id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("get material %s: %w", id, err)
	}
	return &m, nil
}

func (r *MaterialRepository) Create(ctx context.Context, m *models.Material) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	code, err := nextCode(ctx, r.db, "material_code_seq", "MT-%06d")
	if err != nil {
		return fmt.Errorf("create material: %w", err)
	}
	m.Code = code
	m.UpdatedAt = time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = m.UpdatedAt
	}
	const query = `INSERT INTO materials (` + materialColumns + `)
VALUES (:id, :code, :title, :description, :type, :category, :file_url, :file_name, :file_size, :mime_type, :external_url, :course_id, :group_ids,
:uploaded_by, :visibility, :is_published, :folder, :tags, :download_count, :view_count, :last_accessed_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("create material: %w", err)
	}
	return nil
}

// Update rewrites the editable columns of m. Counters and ownership stay.
func (r *MaterialRepository) Update(ctx context.Context, m *models.Material) error {
	m.UpdatedAt = time.Now().UTC()
	var set setBuilder
	set.set("title", m.Title)
	set.set("description", m.Description)
	set.set("type", m.Type)
	set.set("category", m.Category)
	set.set("file_url", m.FileURL)
	set.set("file_name", m.FileName)
	set.set("file_size", m.FileSize)
	set.set("mime_type", m.MimeType)
	set.set("external_url", m.ExternalURL)
	set.set("group_ids", m.GroupIDs)
	set.set("visibility", m.Visibility)
	set.set("is_published", m.IsPublished)
	set.set("folder", m.Folder)
	set.set("tags", m.Tags)
	set.set("updated_at", m.UpdatedAt)
	query, args := set.update("materials", m.ID)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update material %s: %w", m.ID, err)
	}
	return nil
}

func (r *MaterialRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM materials WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete material %s: %w", id, err)
	}
	return nil
}

// RecordDownload bumps the download counter and returns its new value.
func (r *MaterialRepository) RecordDownload(ctx context.Context, id string, at time.Time) (int, error) {
	const query = `UPDATE materials SET download_count = download_count + 1, last_accessed_at = $2 WHERE id = $1 RETURNING download_count`
	var n int
	if err := r.db.GetContext(ctx, &n, query, id, at); err != nil {
		return 0, fmt.Errorf("record material download %s: %w", id, err)
	}
	return n, nil
}

func (r *MaterialRepository) RecordView(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE materials SET view_count = view_count + 1, last_accessed_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("record material view %s: %w", id, err)
	}
	return nil
}

// Stats aggregates the materials matching filter.
func (r *MaterialRepository) Stats(ctx context.Context, filter models.MaterialFilter) (*models.MaterialStats, error) {
	where := materialConditions(filter)
	const totals = `SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE is_published) AS published, COALESCE(SUM(file_size), 0) AS total_size,
COALESCE(SUM(download_count), 0) AS total_downloads, COALESCE(SUM(view_count), 0) AS total_views FROM materials`
	var stats models.MaterialStats
	if err := r.db.GetContext(ctx, &stats, totals+where.clause(), where.args...); err != nil {
		return nil, fmt.Errorf("material stats: %w", err)
	}
	var rows []models.MaterialTypeCount
	if err := r.db.SelectContext(ctx, &rows, "SELECT type, COUNT(*) AS count FROM materials"+where.clause()+" GROUP BY type", where.args...); err != nil {
		return nil, fmt.Errorf("material stats by type: %w", err)
	}
	stats.ByType = make(map[string]int, len(rows))
	for _, row := range rows {
		stats.ByType[row.Type] = row.Count
	}
	return &stats, nil
}
