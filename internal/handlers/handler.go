package handlers

import (
	"net/http"

	"device_tuner/internal/logger"
	"device_tuner/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	metrics  http.Handler
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
// metrics may be nil, in which case /metrics is not served.
func NewHandler(services *service.Service, metrics http.Handler, log *logger.Logger) *Handler {
	return &Handler{services: services, metrics: metrics, log: logger.OrNop(log)}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", h.health)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// live property stream, same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.operatorIdMiddleware)
	{
		h.registerPropertyRoutes(api)
		h.registerRunRoutes(api)
		h.registerHistoryRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerPropertyRoutes(api *gin.RouterGroup) {
	api.GET("/properties", h.getProperties)
	api.POST("/sequence", h.selectSequence)

	props := api.Group("/properties/:key")
	{
		// Body example: {"value":72.5}
		props.PUT("/test", h.setTestValue)
		props.DELETE("/test", h.clearTestValue)
		// Body example: {"start":60,"end":90,"steps":4,"enabled":true}
		props.PUT("/scan", h.configureScan)
	}
}

func (h *Handler) registerRunRoutes(api *gin.RouterGroup) {
	api.POST("/runs", h.run)

	scans := api.Group("/scans")
	{
		scans.POST("", h.startScan)
		scans.POST("/cancel", h.cancelScan)
	}
}

func (h *Handler) registerHistoryRoutes(api *gin.RouterGroup) {
	hist := api.Group("/history")
	{
		hist.GET("", h.getHistory)
		hist.DELETE("", h.clearHistory)
		hist.PATCH("/:id", h.updateRecord)
		hist.DELETE("/:id", h.removeRecord)
	}
	api.GET("/diff", h.getDiff)
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}
