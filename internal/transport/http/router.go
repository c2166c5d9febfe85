package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"aliasrelay/backend/internal/config"
	"aliasrelay/backend/internal/health"
	"aliasrelay/backend/internal/middleware"
	"aliasrelay/backend/internal/monitoring"
	"aliasrelay/backend/internal/service"
	"aliasrelay/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项，Hub、Metrics、Health 可为空
type RouterDependencies struct {
	Config     *config.Config
	Aliases    *service.AliasService
	Contacts   *service.ContactService
	Activities *service.ActivityService
	Verifier   middleware.TokenVerifier
	Hub        *websocket.Hub
	Metrics    *monitoring.Metrics
	Health     *health.Checker
	Logger     *zap.Logger
}

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	aliases    *service.AliasService
	contacts   *service.ContactService
	activities *service.ActivityService
	log        *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("http")

	router := gin.New()

	if deps.Metrics != nil {
		mm := middleware.NewMonitoringMiddleware(deps.Metrics, log)
		router.Use(mm.PanicRecovery(), mm.HTTPMetrics())
	} else {
		router.Use(gin.Recovery())
	}
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.APIBodyLimit))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// 允许所有来源时不能携带凭证
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	handler := &Handler{
		aliases:    deps.Aliases,
		contacts:   deps.Contacts,
		activities: deps.Activities,
		log:        log,
	}
	jwtAuth := middleware.NewJWTAuth(deps.Verifier, log)

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveHandler()))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyHandler()))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// 一键退订 (RFC 8058)，链接本身即凭证
	dashboard := router.Group("/dashboard")
	{
		dashboard.GET("/unsubscribe/:alias_id", handler.unsubscribeInfo)
		dashboard.POST("/unsubscribe/:alias_id", handler.unsubscribe)
	}

	api := router.Group("/api", jwtAuth.RequireAuth())
	{
		aliases := api.Group("/aliases/:alias_id")
		aliases.GET("/activities", handler.listActivities)
		aliases.GET("/stats", handler.aliasStats)
		aliases.POST("/toggle", handler.toggleAlias)
		aliases.GET("/contacts", handler.listContacts)
		aliases.POST("/contacts", handler.createContact)
	}

	if deps.Hub != nil {
		router.GET("/ws/activity", jwtAuth.RequireAuth(), deps.Hub.Handler())
	}

	return router
}
