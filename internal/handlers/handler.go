package handlers

import (
	"sensor_gateway/internal/broadcast"
	"sensor_gateway/internal/logger"
	"sensor_gateway/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// LinkInfo describes the radio link for the status endpoint.
type LinkInfo struct {
	Path     string `json:"path"`
	BaudRate int    `json:"baudRate"`
}

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	hub      *broadcast.Hub
	link     LinkInfo
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies. hub may be nil
// when the push channel is disabled.
func NewHandler(services *service.Service, hub *broadcast.Hub, link LinkInfo, log *logger.Logger) *Handler {
	return &Handler{services: services, hub: hub, link: link, log: log}
}

// authEnabled reports whether operator tokens guard commands.
func (h *Handler) authEnabled() bool {
	return h.services.Authorization != nil
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	if h.authEnabled() {
		h.registerAuthRoutes(router)
	}

	h.registerAPIRoutes(router)

	// Push channel upgrade, same port
	if h.hub != nil {
		router.GET("/ws", h.wsConnect)
	}

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
	api := r.Group("/api")
	{
		api.GET("/nodes", h.listNodes)
		api.GET("/nodes/:id", h.getNode)
		api.GET("/history", h.getHistory)
		api.GET("/daily-stats", h.getDailyStats)
		api.GET("/daily-stats/:nodeId", h.getNodeDailyStats)
		api.GET("/status", h.getStatus)
	}

	control := api.Group("/control")
	if h.authEnabled() {
		control.Use(h.operatorMiddleware)
	}
	control.POST("/relay", h.controlRelay)
}
