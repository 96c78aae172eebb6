package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/lesson-engine/api/swagger"
	"github.com/noah-isme/lesson-engine/internal/handler"
	"github.com/noah-isme/lesson-engine/internal/middleware"
	"github.com/noah-isme/lesson-engine/internal/models"
	"github.com/noah-isme/lesson-engine/internal/repository"
	"github.com/noah-isme/lesson-engine/internal/service"
	"github.com/noah-isme/lesson-engine/pkg/cache"
	"github.com/noah-isme/lesson-engine/pkg/config"
	"github.com/noah-isme/lesson-engine/pkg/database"
	"github.com/noah-isme/lesson-engine/pkg/jobs"
	"github.com/noah-isme/lesson-engine/pkg/logger"
	"github.com/noah-isme/lesson-engine/pkg/mailer"
	corsmiddleware "github.com/noah-isme/lesson-engine/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lesson-engine/pkg/middleware/requestid"
)

// @title Lesson Engine API
// @version 1.0.0
// @description Class, credit and contract lifecycle back office
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const appName = "Lesson Engine"

var (
	staff     = []string{string(models.RoleAdmin), string(models.RoleManager)}
	allRoles  = []string{string(models.RoleAdmin), string(models.RoleManager), string(models.RoleTeacher), string(models.RoleStudent)}
	staffSelf = append(append([]string{}, staff...), middleware.Self)
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}

	location := service.LoadLocation(cfg.Scheduling.Timezone, logr)
	validate := validator.New()
	metrics := service.NewMetricsService()

	classRepo := repository.NewClassRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	vacationRepo := repository.NewVacationRepository(db)
	creditRepo := repository.NewCreditRepository(db)
	counterRepo := repository.NewRescheduleCounterRepository(db)
	contractRepo := repository.NewContractRepository(db)
	userRepo := repository.NewUserRepository(db)

	var cacheStore *repository.CacheRepository
	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheStore = repository.NewCacheRepository(redisClient, "lesson-engine:", logr)
		defer cacheStore.Close() //nolint:errcheck
		cacheRepo = cacheStore
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.AvailabilityTTL, logr)

	sender, err := mailer.New(cfg.Email, appName, logr)
	if err != nil {
		logr.Fatal("failed to init mailer", zap.Error(err))
	}

	var notifications *service.NotificationService
	router := jobs.NewRouter()
	queue := jobs.NewQueue("notifications", router.Dispatch, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
		OnDrop: func(job jobs.Job, err error) {
			notifications.OnDrop(job, err)
		},
	})
	notifications = service.NewNotificationService(queue, userRepo, sender, metrics, logr)
	router.Handle(service.JobDeliverNotification, notifications.Deliver)
	queue.Start(ctx)
	defer queue.Stop()

	tokens := service.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)
	creditSvc := service.NewCreditService(creditRepo, notifications, metrics, cfg.Credits.MakeupCreditTTL, validate, logr)
	contractSvc := service.NewContractService(contractRepo, notifications, metrics, service.ContractConfig{
		Validity:            cfg.Contracts.Validity,
		NearExpiryWindow:    cfg.Contracts.NearExpiryWindow,
		MinTermBeforeCancel: cfg.Contracts.MinTermBeforeCancel,
	}, validate, logr)
	classSvc := service.NewClassService(classRepo, userRepo, creditSvc, db, notifications, metrics, service.ClassServiceConfig{
		ClassDuration: cfg.Scheduling.ClassDuration,
		Location:      location,
	}, logr)
	rescheduleSvc := service.NewRescheduleService(classRepo, availabilityRepo, vacationRepo, counterRepo, creditSvc, db, notifications, metrics, service.RescheduleConfig{
		LookaheadWeeks: cfg.Scheduling.LookaheadWeeks,
		MinLeadTime:    cfg.Scheduling.MinLeadTime,
		MonthlyQuota:   cfg.Scheduling.MonthlyQuota,
		ClassDuration:  cfg.Scheduling.ClassDuration,
		Location:       location,
	}, logr)
	templateSvc := service.NewTemplateService(templateRepo, classRepo, availabilityRepo, vacationRepo, contractSvc, db, metrics, service.TemplateConfig{
		GenerationWeeks: cfg.Scheduling.GenerationWeeks,
		ClassDuration:   cfg.Scheduling.ClassDuration,
		Location:        location,
	}, validate, logr)
	availabilitySvc := service.NewAvailabilityService(availabilityRepo, cacheSvc, cfg.Cache.AvailabilityTTL, logr)
	vacationSvc := service.NewVacationService(vacationRepo, service.VacationConfig{
		MinAdvance:  cfg.Vacations.MinAdvance,
		MaxDuration: cfg.Vacations.MaxDuration,
		Location:    location,
	}, validate, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, readinessProbes(db, cacheStore))
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokens))

	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(userRepo, logr, action, resource)
	}

	classHandler := handler.NewClassHandler(classSvc, rescheduleSvc)
	templateHandler := handler.NewTemplateHandler(templateSvc)
	availabilityHandler := handler.NewAvailabilityHandler(availabilitySvc)
	creditHandler := handler.NewCreditHandler(creditSvc)
	contractHandler := handler.NewContractHandler(contractSvc)
	vacationHandler := handler.NewVacationHandler(vacationSvc)

	classes := api.Group("/classes")
	{
		classes.GET("/student/:studentId", middleware.RBAC(allRoles...), classHandler.ListByStudent)
		classes.GET("/student/:studentId/calendar.ics", middleware.RBAC(allRoles...), classHandler.Calendar)
		classes.POST("/generate-classes", middleware.RBAC(staff...), audit(models.AuditActionClassesGenerate, "class"), templateHandler.Generate)
		classes.GET("/:id", middleware.RBAC(allRoles...), classHandler.Get)
		classes.PUT("/:id/teacher", middleware.RBAC(staff...), audit(models.AuditActionClassTeacherAssign, "class"), classHandler.AssignTeacher)
		classes.PUT("/:id/status", middleware.RBAC(allRoles...), audit(models.AuditActionClassStatus, "class"), classHandler.UpdateStatus)
		classes.POST("/:id/cancel", middleware.RBAC(allRoles...), audit(models.AuditActionClassCancel, "class"), classHandler.Cancel)
		classes.GET("/:id/reschedule-options", middleware.RBAC(allRoles...), classHandler.RescheduleOptions)
		classes.POST("/:id/reschedule", middleware.RBAC(allRoles...), audit(models.AuditActionClassReschedule, "class"), classHandler.Reschedule)
	}

	templates := api.Group("/class-templates")
	{
		templates.GET("/:studentId", middleware.RBAC(staffSelf...), templateHandler.Get)
		templates.PUT("/:studentId", middleware.RBAC(staff...), audit(models.AuditActionTemplateReplace, "template"), templateHandler.Replace)
		templates.DELETE("/:studentId", middleware.RBAC(staff...), audit(models.AuditActionTemplateDelete, "template"), templateHandler.Delete)
		templates.POST("/:studentId/delete-classes", middleware.RBAC(staff...), audit(models.AuditActionClassesDelete, "class"), templateHandler.DeleteClasses)
	}

	admin := api.Group("/admin")
	{
		admin.POST("/assign-schedule", middleware.RBAC(staff...), audit(models.AuditActionScheduleAssign, "template"), templateHandler.AssignSchedule)
		admin.GET("/teacher-availability/:teacherId", middleware.RBAC(staffSelf...), availabilityHandler.List)
		admin.PUT("/teacher-availability/:teacherId", middleware.RBAC(staffSelf...), audit(models.AuditActionAvailabilityReplace, "availability"), availabilityHandler.Replace)

		credits := admin.Group("/credits")
		credits.POST("/grant", middleware.RBAC(staff...), audit(models.AuditActionCreditGrant, "credit"), creditHandler.Grant)
		credits.POST("/consume", middleware.RBAC(staff...), audit(models.AuditActionCreditConsume, "credit"), creditHandler.Consume)
		credits.GET("/balance/:studentId", middleware.RBAC(staffSelf...), creditHandler.Balance)
		credits.GET("/history/:studentId", middleware.RBAC(staffSelf...), creditHandler.History)
		credits.GET("/history/:studentId/export", middleware.RBAC(staffSelf...), creditHandler.Export)
	}

	contracts := api.Group("/contract")
	{
		contracts.GET("/:userId", middleware.RBAC(staffSelf...), contractHandler.Get)
		contracts.POST("/sign/:userId", middleware.RBAC(staffSelf...), audit(models.AuditActionContractSign, "contract"), contractHandler.Sign)
		contracts.POST("/admin-sign/:userId", middleware.RBAC(staff...), audit(models.AuditActionContractAdminSign, "contract"), contractHandler.AdminSign)
		contracts.GET("/cancel/:userId", middleware.RBAC(staffSelf...), contractHandler.CanCancel)
		contracts.POST("/cancel/:userId", middleware.RBAC(staffSelf...), audit(models.AuditActionContractCancel, "contract"), contractHandler.Cancel)
		contracts.POST("/renew/:userId", middleware.RBAC(staffSelf...), audit(models.AuditActionContractRenew, "contract"), contractHandler.Renew)
	}

	vacations := api.Group("/vacations")
	vacations.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleManager, models.RoleTeacher))
	{
		vacations.POST("", audit(models.AuditActionVacationCreate, "vacation"), vacationHandler.Create)
		vacations.GET("", vacationHandler.List)
		vacations.DELETE("", audit(models.AuditActionVacationDelete, "vacation"), vacationHandler.Delete)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func readinessProbes(db *sqlx.DB, store *repository.CacheRepository) map[string]handler.Pinger {
	probes := map[string]handler.Pinger{"database": db}
	if store != nil {
		probes["redis"] = handler.PingFunc(store.Ping)
	}
	return probes
}
