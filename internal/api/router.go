package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facefind/internal/api/handlers"
	"github.com/your-org/facefind/internal/api/ws"
	"github.com/your-org/facefind/internal/auth"
	"github.com/your-org/facefind/internal/service"
)

type RouterConfig struct {
	APIKey         string
	MaxUploadBytes int64
	Service        *service.Service
	Hub            *ws.Hub
	// Checks are reported by /readyz, keyed by dependency name.
	Checks map[string]handlers.Pinger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	user := v1.Group("")
	user.Use(auth.CallerMiddleware())

	// WebSocket
	if cfg.Hub != nil {
		user.GET("/ws", cfg.Hub.HandleWS)
	}

	// Faces
	faceH := handlers.NewFaceHandler(cfg.Service, cfg.MaxUploadBytes)
	user.POST("/faces", faceH.Upload)
	user.GET("/faces/:id/matches", faceH.Matches)
	user.DELETE("/faces/:id", faceH.Delete)

	// Files
	fileH := handlers.NewFileHandler(cfg.Service, cfg.MaxUploadBytes)
	user.POST("/files", fileH.Upload)
	user.GET("/files", fileH.List)
	user.GET("/files/:id", fileH.Get)
	user.GET("/files/:id/content", fileH.Content)
	user.DELETE("/files/:id", fileH.Delete)
	user.POST("/files/delete", fileH.DeleteBatch)

	// Duplicates
	dupH := handlers.NewDuplicateHandler(cfg.Service)
	user.GET("/duplicates", dupH.Find)
	user.DELETE("/duplicates", dupH.Delete)

	return r
}
