package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/school-lms-api/internal/middleware"
	"github.com/noah-isme/school-lms-api/internal/models"
	"github.com/noah-isme/school-lms-api/pkg/config"
	"github.com/noah-isme/school-lms-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/school-lms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/school-lms-api/pkg/middleware/requestid"
)

const (
	roleAdmin   = string(models.RoleAdmin)
	roleTeacher = string(models.RoleTeacher)
	roleStudent = string(models.RoleStudent)
	roleSelf    = middleware.SelfAccess
)

func newRouter(cfg *config.Config, logr *zap.Logger, a *app) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/health/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.metrics, "/health", "/health/ready", "/metrics"))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", a.metricsHandler.Health)
	r.GET("/health/ready", a.metricsHandler.Ready)
	r.GET("/metrics", a.metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(a.users, logr, action, resource)
	}
	staff := middleware.RBAC(roleAdmin, roleTeacher)
	admin := middleware.RBAC(roleAdmin)
	student := middleware.RBAC(roleStudent)

	public := api.Group("/auth")
	public.POST("/login", a.authHandler.Login)
	public.POST("/refresh", a.authHandler.Refresh)
	public.POST("/forgot-password", a.authHandler.ForgotPassword)
	public.POST("/reset-password", a.authHandler.ResetPassword)

	if cfg.Reports.Enabled {
		api.GET("/export/:token", a.reportHandler.Download)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(a.auth, cfg.JWT.CookieName))

	auth := secured.Group("/auth")
	auth.POST("/logout", a.authHandler.Logout)
	auth.POST("/change-password", audit(models.AuditActionPasswordChange, "user"), a.authHandler.ChangePassword)
	auth.GET("/me", a.authHandler.Me)
	auth.PUT("/profile", audit(models.AuditActionUserUpdate, "user"), a.authHandler.UpdateProfile)
	auth.POST("/register", admin, audit(models.AuditActionUserCreate, "user"), a.userHandler.Register)

	users := secured.Group("/users")
	users.GET("", admin, a.userHandler.List)
	users.GET("/:id", middleware.RBAC(roleAdmin, roleSelf), a.userHandler.Get)
	users.PATCH("/:id/status", admin, audit(models.AuditActionUserUpdate, "user"), a.userHandler.SetStatus)

	courses := secured.Group("/courses")
	courses.GET("", a.courseHandler.ListCourses)
	courses.GET("/:id", a.courseHandler.GetCourse)
	courses.POST("", staff, audit(models.AuditActionCreate, "course"), a.courseHandler.CreateCourse)
	courses.PUT("/:id", staff, audit(models.AuditActionUpdate, "course"), a.courseHandler.UpdateCourse)
	courses.GET("/:id/materials", a.materialHandler.ListByCourse)

	groups := secured.Group("/groups")
	groups.GET("", a.courseHandler.ListGroups)
	groups.GET("/:id", a.courseHandler.GetGroup)
	groups.POST("", staff, audit(models.AuditActionCreate, "group"), a.courseHandler.CreateGroup)
	groups.PUT("/:id", staff, audit(models.AuditActionUpdate, "group"), a.courseHandler.UpdateGroup)
	groups.GET("/:id/students", staff, a.courseHandler.ListStudents)
	groups.POST("/:id/students", staff, audit(models.AuditActionCreate, "enrollment"), a.courseHandler.Enroll)
	groups.DELETE("/:id/students/:studentId", staff, audit(models.AuditActionDelete, "enrollment"), a.courseHandler.Withdraw)
	groups.GET("/:id/session-charges", staff, a.accountingHandler.SessionCharges)
	groups.GET("/:id/revenue", staff, a.accountingHandler.GroupRevenue)

	assignments := secured.Group("/assignments")
	assignments.GET("", a.assignmentHandler.List)
	assignments.POST("", staff, audit(models.AuditActionCreate, "assignment"), a.assignmentHandler.Create)
	assignments.POST("/bulk/:action", staff, audit(models.AuditActionUpdate, "assignment"), a.assignmentHandler.Bulk)
	assignments.GET("/:id", a.assignmentHandler.Get)
	assignments.PUT("/:id", staff, audit(models.AuditActionUpdate, "assignment"), a.assignmentHandler.Update)
	assignments.DELETE("/:id", staff, audit(models.AuditActionDelete, "assignment"), a.assignmentHandler.Delete)
	assignments.POST("/:id/publish", staff, a.assignmentHandler.Publish)
	assignments.POST("/:id/close", staff, a.assignmentHandler.Close)
	assignments.POST("/:id/graded", staff, a.assignmentHandler.MarkGraded)
	assignments.POST("/:id/clone", staff, audit(models.AuditActionCreate, "assignment"), a.assignmentHandler.Clone)
	assignments.GET("/:id/submissions", staff, a.assignmentHandler.Submissions)
	assignments.GET("/:id/statistics", staff, a.assignmentHandler.Statistics)
	assignments.POST("/:id/submit", student, a.submissionHandler.Submit)
	assignments.GET("/:id/quiz", student, a.submissionHandler.Quiz)
	assignments.POST("/:id/quiz", student, a.submissionHandler.SubmitQuiz)
	assignments.GET("/:id/quiz/results/:submissionId", a.submissionHandler.QuizResult)

	submissions := secured.Group("/submissions")
	submissions.GET("/mine", student, a.submissionHandler.Mine)
	submissions.POST("/bulk-grade", staff, audit(models.AuditActionUpdate, "submission"), a.gradeHandler.BulkGrade)
	submissions.GET("/:id", a.submissionHandler.Get)
	submissions.POST("/:id/grade", staff, audit(models.AuditActionUpdate, "submission"), a.gradeHandler.Grade)
	submissions.POST("/:id/return", staff, audit(models.AuditActionUpdate, "submission"), a.gradeHandler.Return)
	submissions.POST("/:id/waive-penalty", staff, audit(models.AuditActionUpdate, "submission"), a.gradeHandler.WaivePenalty)

	grades := secured.Group("/grades")
	grades.GET("/mine", student, a.gradeHandler.MyGrades)
	grades.GET("/students/:id", middleware.RBAC(roleAdmin, roleTeacher, roleSelf), a.gradeHandler.StudentGrades)

	accounting := secured.Group("/accounting", staff)
	accounting.GET("/summary", a.accountingHandler.Summary)
	accounting.GET("/profit-loss", a.accountingHandler.ProfitAndLoss)
	accounting.GET("/transactions", a.accountingHandler.ListTransactions)
	accounting.GET("/transactions/:id", a.accountingHandler.GetTransaction)
	accounting.POST("/transactions", audit(models.AuditActionCreate, "transaction"), a.accountingHandler.CreateTransaction)
	accounting.PUT("/transactions/:id", audit(models.AuditActionUpdate, "transaction"), a.accountingHandler.UpdateTransaction)
	accounting.DELETE("/transactions/:id", audit(models.AuditActionDelete, "transaction"), a.accountingHandler.DeleteTransaction)

	payments := secured.Group("/payments", staff)
	payments.GET("", a.accountingHandler.ListPayments)
	payments.GET("/stats", a.accountingHandler.PaymentStats)
	payments.POST("", audit(models.AuditActionCreate, "payment"), a.accountingHandler.CreatePayment)
	payments.POST("/session-billing", audit(models.AuditActionCreate, "payment"), a.accountingHandler.GenerateSessionPayments)
	payments.GET("/:id", a.accountingHandler.GetPayment)
	payments.PUT("/:id", audit(models.AuditActionUpdate, "payment"), a.accountingHandler.UpdatePayment)

	attendance := secured.Group("/attendance")
	attendance.GET("", a.attendanceHandler.List)
	attendance.GET("/summary", a.attendanceHandler.Summary)
	attendance.POST("", staff, a.attendanceHandler.Record)
	attendance.POST("/bulk", staff, a.attendanceHandler.RecordBulk)
	attendance.GET("/:id", a.attendanceHandler.Get)
	attendance.PUT("/:id", staff, audit(models.AuditActionUpdate, "attendance"), a.attendanceHandler.Update)
	attendance.POST("/:id/excuse", staff, audit(models.AuditActionUpdate, "attendance"), a.attendanceHandler.Excuse)

	calendar := secured.Group("/calendar")
	calendar.GET("", a.calendarHandler.MyCalendar)
	calendar.GET("/upcoming", a.calendarHandler.Upcoming)
	calendar.GET("/events", a.calendarHandler.ListEvents)
	calendar.GET("/events/:id", a.calendarHandler.GetEvent)
	calendar.POST("/events", staff, audit(models.AuditActionCreate, "calendar_event"), a.calendarHandler.CreateEvent)
	calendar.PUT("/events/:id", staff, audit(models.AuditActionUpdate, "calendar_event"), a.calendarHandler.UpdateEvent)
	calendar.DELETE("/events/:id", staff, audit(models.AuditActionDelete, "calendar_event"), a.calendarHandler.DeleteEvent)

	materials := secured.Group("/materials")
	materials.GET("", a.materialHandler.List)
	materials.GET("/stats", staff, a.materialHandler.Stats)
	materials.POST("", staff, audit(models.AuditActionCreate, "material"), a.materialHandler.Create)
	materials.GET("/:id", a.materialHandler.Get)
	materials.PUT("/:id", staff, audit(models.AuditActionUpdate, "material"), a.materialHandler.Update)
	materials.DELETE("/:id", staff, audit(models.AuditActionDelete, "material"), a.materialHandler.Delete)
	materials.POST("/:id/download", a.materialHandler.Download)

	notifications := secured.Group("/notifications")
	notifications.GET("", a.notificationHandler.List)
	notifications.GET("/unread-count", a.notificationHandler.UnreadCount)
	notifications.PUT("/mark-all-read", a.notificationHandler.MarkAllRead)
	notifications.DELETE("/read", a.notificationHandler.DeleteRead)
	notifications.POST("/announcements", staff, a.notificationHandler.Announce)
	notifications.GET("/:id", a.notificationHandler.Get)
	notifications.PUT("/:id/read", a.notificationHandler.MarkRead)
	notifications.DELETE("/:id", a.notificationHandler.Delete)

	analytics := secured.Group("/analytics", staff)
	analytics.GET("/overview", a.analyticsHandler.TeacherOverview)
	analytics.GET("/courses/:id", a.analyticsHandler.CourseAnalytics)
	analytics.GET("/groups/:id", a.analyticsHandler.GroupPerformance)
	analytics.GET("/grade-trends", a.analyticsHandler.GradeTrends)
	analytics.GET("/system", admin, a.analyticsHandler.System)

	if cfg.Reports.Enabled {
		reports := secured.Group("/reports", staff)
		reports.POST("", a.reportHandler.Generate)
		reports.GET("/:id", a.reportHandler.Status)
	}

	return r
}
