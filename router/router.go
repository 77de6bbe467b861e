package router

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"CareVault/internal/handler"
	"CareVault/internal/metrics"
	"CareVault/utils"
)

type Deps struct {
	Records            *handler.RecordsHandler
	Shares             *handler.ShareHandler
	Verifier           utils.Verifier
	ShareLimiter       *utils.IPRateLimiter
	Metrics            *metrics.Collector
	Log                *zap.Logger
	AllowedOrigins     []string
	MaxMultipartMemory int64
	MaxUploadBytes     int64
}

// InitRouter builds API routes.
func InitRouter(d Deps) *gin.Engine {
	r := gin.New()
	if d.MaxMultipartMemory > 0 {
		r.MaxMultipartMemory = d.MaxMultipartMemory
	}
	r.Use(
		gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
			d.Log.Error("panic in handler", zap.Any("panic", recovered), zap.String("route", c.FullPath()))
			utils.Fail(c, http.StatusInternalServerError, "internal server error")
		}),
		utils.RequestLogger(d.Log, d.Metrics),
		utils.CORSMiddleware(d.AllowedOrigins),
	)

	r.GET("/healthz", handler.Health)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		auth := api.Group("")
		auth.Use(utils.AuthMiddleware(d.Verifier))

		records := auth.Group("/records")
		{
			records.POST("/upload", limitBody(d.MaxUploadBytes), d.Records.Upload)
			records.GET("", d.Records.List)
			records.GET("/:filename", d.Records.Download)
			records.DELETE("/:filename", d.Records.Delete)
			records.POST("/:filename/share", d.Shares.Create)
			records.DELETE("/:filename/share", d.Shares.Revoke)
		}

		share := api.Group("/share")
		if d.ShareLimiter != nil {
			share.Use(d.ShareLimiter.Middleware())
		}
		share.GET("/:token", d.Shares.Download)
	}
	return r
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
