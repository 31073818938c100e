package models

import (
	"time"

	"github.com/lib/pq"
)

// MaterialType names what a course material is.
type MaterialType string

const (
	MaterialDocument     MaterialType = "document"
	MaterialVideo        MaterialType = "video"
	MaterialAudio        MaterialType = "audio"
	MaterialImage        MaterialType = "image"
	MaterialPresentation MaterialType = "presentation"
	MaterialSpreadsheet  MaterialType = "spreadsheet"
	MaterialLink         MaterialType = "link"
	MaterialOther        MaterialType = "other"
)

// MaterialVisibility decides which students may see a material.
type MaterialVisibility string

const (
	VisibleAllStudents    MaterialVisibility = "all_students"
	VisibleSpecificGroups MaterialVisibility = "specific_groups"
	VisibleTeachersOnly   MaterialVisibility = "teachers_only"
)

// MaxMaterialFileSize caps the declared size of an attached file.
const MaxMaterialFileSize int64 = 100 << 20

// Material is a file or link shared with a course. The file itself lives in
// external storage; only its metadata is kept here.
type Material struct {
	ID             string             `db:"id" json:"id"`
	Code           string             `db:"code" json:"code"`
	Title          string             `db:"title" json:"title"`
	Description    string             `db:"description" json:"description"`
	Type           MaterialType       `db:"type" json:"type"`
	Category       string             `db:"category" json:"category"`
	FileURL        *string            `db:"file_url" json:"file_url,omitempty"`
	FileName       *string            `db:"file_name" json:"file_name,omitempty"`
	FileSize       int64              `db:"file_size" json:"file_size"`
	MimeType       *string            `db:"mime_type" json:"mime_type,omitempty"`
	ExternalURL    *string            `db:"external_url" json:"external_url,omitempty"`
	CourseID       string             `db:"course_id" json:"course_id"`
	GroupIDs       pq.StringArray     `db:"group_ids" json:"group_ids"`
	UploadedBy     string             `db:"uploaded_by" json:"uploaded_by"`
	Visibility     MaterialVisibility `db:"visibility" json:"visibility"`
	IsPublished    bool               `db:"is_published" json:"is_published"`
	Folder         string             `db:"folder" json:"folder"`
	Tags           pq.StringArray     `db:"tags" json:"tags"`
	DownloadCount  int                `db:"download_count" json:"download_count"`
	ViewCount      int                `db:"view_count" json:"view_count"`
	LastAccessedAt *time.Time         `db:"last_accessed_at" json:"last_accessed_at,omitempty"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at" json:"updated_at"`
}

// VisibleTo reports whether a student enrolled in groups may open m. The
// student must belong to a group of the material's course.
func (m *Material) VisibleTo(groups []Group) bool {
	if !m.IsPublished {
		return false
	}
	for _, g := range groups {
		if g.CourseID != m.CourseID {
			continue
		}
		switch m.Visibility {
		case VisibleAllStudents:
			return true
		case VisibleSpecificGroups:
			for _, id := range m.GroupIDs {
				if id == g.ID {
					return true
				}
			}
		}
	}
	return false
}

// MaterialFilter narrows a material listing.
type MaterialFilter struct {
	CourseID   string
	Type       MaterialType
	Folder     string
	Search     string
	UploadedBy string
	Published  *bool
	// TeacherID limits the listing to courses the teacher runs.
	TeacherID string
	// StudentGroups limits the listing to what a student of these groups may
	// see. ForStudent with no groups matches nothing.
	StudentGroups []string
	ForStudent    bool
	Page          int
	PageSize      int
}

// MaterialRequest is the create/update payload for materials.
type MaterialRequest struct {
	Title       string             `json:"title" validate:"required,max=200"`
	Description string             `json:"description" validate:"max=2000"`
	Type        MaterialType       `json:"type" validate:"required,oneof=document video audio image presentation spreadsheet link other"`
	Category    string             `json:"category" validate:"omitempty,oneof=lecture reading exercise reference other"`
	FileURL     *string            `json:"file_url" validate:"omitempty,url,max=1000"`
	FileName    *string            `json:"file_name" validate:"omitempty,max=255"`
	FileSize    int64              `json:"file_size" validate:"gte=0"`
	MimeType    *string            `json:"mime_type" validate:"omitempty,max=100"`
	ExternalURL *string            `json:"external_url" validate:"omitempty,url,max=1000"`
	CourseID    string             `json:"course_id" validate:"required"`
	GroupIDs    []string           `json:"group_ids" validate:"omitempty,max=50,dive,required"`
	Visibility  MaterialVisibility `json:"visibility" validate:"omitempty,oneof=all_students specific_groups teachers_only"`
	IsPublished bool               `json:"is_published"`
	Folder      string             `json:"folder" validate:"max=100"`
	Tags        []string           `json:"tags" validate:"omitempty,max=20,dive,max=50"`
}

// MaterialDownload is what a client needs to fetch the file.
type MaterialDownload struct {
	MaterialID    string  `json:"material_id"`
	FileURL       *string `json:"file_url,omitempty"`
	ExternalURL   *string `json:"external_url,omitempty"`
	FileName      *string `json:"file_name,omitempty"`
	FileSize      int64   `json:"file_size"`
	DownloadCount int     `json:"download_count"`
}

// MaterialStats summarises materials by type.
type MaterialStats struct {
	Total          int            `json:"total" db:"total"`
	Published      int            `json:"published" db:"published"`
	TotalSize      int64          `json:"total_size" db:"total_size"`
	TotalDownloads int            `json:"total_downloads" db:"total_downloads"`
	TotalViews     int            `json:"total_views" db:"total_views"`
	ByType         map[string]int `json:"by_type" db:"-"`
}

// MaterialTypeCount is one row of the by-type breakdown.
type MaterialTypeCount struct {
	Type  string `db:"type"`
	Count int    `db:"count"`
}
