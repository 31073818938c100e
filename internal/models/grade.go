package models

import "time"

// LetterGrade maps a percentage onto the A-F scale.
func LetterGrade(pct float64) string {
	switch {
	case pct >= 90:
		return "A"
	case pct >= 80:
		return "B"
	case pct >= 70:
		return "C"
	case pct >= 60:
		return "D"
	default:
		return "F"
	}
}

// GradeLabel maps a percentage onto the descriptive scale.
func GradeLabel(pct float64) string {
	switch {
	case pct >= 90:
		return "Excellent"
	case pct >= 80:
		return "Very Good"
	case pct >= 70:
		return "Good"
	case pct >= 60:
		return "Pass"
	default:
		return "Fail"
	}
}

// GradedWork is a graded submission joined with the assignment fields needed
// for course-grade aggregation.
type GradedWork struct {
	SubmissionID    string     `db:"submission_id" json:"submission_id"`
	AssignmentID    string     `db:"assignment_id" json:"assignment_id"`
	AssignmentTitle string     `db:"assignment_title" json:"assignment_title"`
	AssignmentType  string     `db:"assignment_type" json:"assignment_type"`
	CourseID        string     `db:"course_id" json:"course_id"`
	CourseName      string     `db:"course_name" json:"course_name"`
	StudentID       string     `db:"student_id" json:"student_id"`
	MaxPoints       float64    `db:"max_points" json:"max_points"`
	Weightage       float64    `db:"weightage" json:"weightage"`
	Status          string     `db:"status" json:"status"`
	FinalPoints     *float64   `db:"final_points" json:"final_points"`
	GradedAt        *time.Time `db:"graded_at" json:"graded_at,omitempty"`
}

// CourseGrade is the weighted grade of one student in one course.
type CourseGrade struct {
	CourseID    string       `json:"course_id"`
	CourseName  string       `json:"course_name"`
	StudentID   string       `json:"student_id"`
	Grade       float64      `json:"grade"`
	Label       string       `json:"label"`
	LetterGrade string       `json:"letter_grade"`
	TotalWeight float64      `json:"total_weight"`
	GradedCount int          `json:"graded_count"`
	Items       []GradedWork `json:"items"`
}

// GradeRequest assigns points to a submission.
type GradeRequest struct {
	PointsEarned *float64      `json:"points_earned" validate:"required,gte=0"`
	Feedback     string        `json:"feedback" validate:"max=5000"`
	PrivateNotes string        `json:"private_notes" validate:"max=5000"`
	RubricGrades []RubricGrade `json:"rubric_grades" validate:"omitempty,dive"`
}

// ReturnSubmissionRequest hands a graded submission back to the student.
type ReturnSubmissionRequest struct {
	RequireResubmission bool   `json:"require_resubmission"`
	Feedback            string `json:"feedback" validate:"max=5000"`
}

// BulkGradeItem is one entry of a bulk grading request.
type BulkGradeItem struct {
	SubmissionID string `json:"submission_id" validate:"required"`
	GradeRequest
}

// BulkGradeRequest grades several submissions at once.
type BulkGradeRequest struct {
	Grades []BulkGradeItem `json:"grades" validate:"required,min=1,max=100,dive"`
}

// BulkGradeResult reports the outcome for one submission.
type BulkGradeResult struct {
	SubmissionID string      `json:"submission_id"`
	Success      bool        `json:"success"`
	Submission   *Submission `json:"submission,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// GradeDistribution counts percentages into the F/D/C/B/A ranges.
func GradeDistribution(percentages []float64) []GradeBucket {
	buckets := []GradeBucket{
		{Range: "0-59", Min: 0, Max: 59},
		{Range: "60-69", Min: 60, Max: 69},
		{Range: "70-79", Min: 70, Max: 79},
		{Range: "80-89", Min: 80, Max: 89},
		{Range: "90-100", Min: 90, Max: 100},
	}
	for _, pct := range percentages {
		switch {
		case pct >= 90:
			buckets[4].Count++
		case pct >= 80:
			buckets[3].Count++
		case pct >= 70:
			buckets[2].Count++
		case pct >= 60:
			buckets[1].Count++
		default:
			buckets[0].Count++
		}
	}
	return buckets
}
