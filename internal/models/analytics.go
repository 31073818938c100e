package models

import "time"

// AnalyticsFilter scopes analytics queries. Empty fields are ignored.
type AnalyticsFilter struct {
	TeacherID string
	CourseID  string
	GroupID   string
	StudentID string
	DateFrom  *time.Time
	DateTo    *time.Time
}

// TeacherOverview headlines a teacher's workload and outcomes.
type TeacherOverview struct {
	TotalStudents      int     `db:"total_students" json:"total_students"`
	TotalCourses       int     `db:"total_courses" json:"total_courses"`
	TotalGroups        int     `db:"total_groups" json:"total_groups"`
	TotalAssignments   int     `db:"total_assignments" json:"total_assignments"`
	PendingGrading     int     `db:"pending_grading" json:"pending_grading"`
	AverageGrade       float64 `db:"average_grade" json:"average_grade"`
	AttendanceRate     float64 `db:"attendance_rate" json:"attendance_rate"`
	LateSubmissionRate float64 `db:"late_submission_rate" json:"late_submission_rate"`
}

// RecentActivity counts the last seven days of activity.
type RecentActivity struct {
	SubmissionsLast7Days int `db:"submissions_last_7_days" json:"submissions_last_7_days"`
	AttendanceLast7Days  int `db:"attendance_last_7_days" json:"attendance_last_7_days"`
}

// CourseRef names a course in analytics payloads.
type CourseRef struct {
	ID   string `db:"id" json:"id"`
	Code string `db:"code" json:"code,omitempty"`
	Name string `db:"name" json:"name"`
}

// TeacherOverviewReport is the teacher dashboard payload.
type TeacherOverviewReport struct {
	TeacherID      string          `json:"teacher_id"`
	Overview       TeacherOverview `json:"overview"`
	RecentActivity RecentActivity  `json:"recent_activity"`
	Courses        []CourseRef     `json:"courses"`
}

// AssignmentPerformance aggregates one assignment in course analytics.
type AssignmentPerformance struct {
	ID                string         `db:"id" json:"id"`
	Title             string         `db:"title" json:"title"`
	Type              AssignmentType `db:"type" json:"type"`
	MaxPoints         float64        `db:"max_points" json:"max_points"`
	DueDate           time.Time      `db:"due_date" json:"due_date"`
	TotalSubmissions  int            `db:"total_submissions" json:"total_submissions"`
	GradedSubmissions int            `db:"graded_submissions" json:"graded_submissions"`
	AverageScore      float64        `db:"average_score" json:"average_score"`
	SubmissionRate    float64        `json:"submission_rate"`
}

// StudentPerformance aggregates one student in course or group analytics.
type StudentPerformance struct {
	StudentID        string  `db:"student_id" json:"student_id"`
	Name             string  `db:"name" json:"name"`
	Email            string  `db:"email" json:"email"`
	TotalSubmissions int     `db:"total_submissions" json:"total_submissions"`
	AverageScore     float64 `db:"average_score" json:"average_score"`
	AttendanceRate   float64 `db:"attendance_rate" json:"attendance_rate"`
	LateSubmissions  int     `db:"late_submissions" json:"late_submissions"`
	IsAtRisk         bool    `json:"is_at_risk"`
}

// CourseAnalyticsSummary headlines a course.
type CourseAnalyticsSummary struct {
	TotalStudents         int     `json:"total_students"`
	TotalAssignments      int     `json:"total_assignments"`
	TotalSubmissions      int     `json:"total_submissions"`
	AverageAttendanceRate float64 `json:"average_attendance_rate"`
}

// CourseAnalytics is the per-course analytics payload.
type CourseAnalytics struct {
	Course            CourseRef               `json:"course"`
	Summary           CourseAnalyticsSummary  `json:"summary"`
	AssignmentStats   []AssignmentPerformance `json:"assignment_stats"`
	StudentStats      []StudentPerformance    `json:"student_stats"`
	TopPerformers     []StudentPerformance    `json:"top_performers"`
	AtRiskStudents    []StudentPerformance    `json:"at_risk_students"`
	GradeDistribution []GradeBucket           `json:"grade_distribution"`
}

// GroupPerformance is the per-group analytics payload.
type GroupPerformance struct {
	GroupID            string               `json:"group_id"`
	GroupName          string               `json:"group_name"`
	GroupCode          string               `json:"group_code"`
	CourseName         string               `json:"course_name"`
	StudentPerformance []StudentPerformance `json:"student_performance"`
}

// GradeTrendPoint is the average score of one month.
type GradeTrendPoint struct {
	Month           string  `db:"month" json:"month"`
	AverageScore    float64 `db:"average_score" json:"average_score"`
	SubmissionCount int     `db:"submission_count" json:"submission_count"`
}

// SystemMetrics is a point-in-time view of request, cache and database timings.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
