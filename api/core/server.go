// Package core wires the gin engine: middleware, routes and the http.Server.
package core

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	handlerAuth "github.com/avess/gallery-bed/api/handler/auth"
	handlerGalleries "github.com/avess/gallery-bed/api/handler/galleries"
	handlerImages "github.com/avess/gallery-bed/api/handler/images"
	"github.com/avess/gallery-bed/api/middleware"
	"github.com/avess/gallery-bed/config"
	"github.com/avess/gallery-bed/internal/auth"
	svcGalleries "github.com/avess/gallery-bed/internal/galleries"
	svcImages "github.com/avess/gallery-bed/internal/images"
)

var startTime = time.Now()

// ServerDependencies are the constructed services the router needs.
type ServerDependencies struct {
	JWTService     *auth.JWTService
	LoginService   *auth.LoginService
	GalleryService *svcGalleries.Service
	ImageService   *svcImages.Service
	HealthCheckers []func() (name string, err error)
}

func setupRouter(deps *ServerDependencies) (*gin.Engine, func()) {
	cfg := config.Get()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	router.SetTrustedProxies(nil)
	router.MaxMultipartMemory = cfg.UploadMaxSizeBytes

	rateLimiter := middleware.NewClientRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute)
	cleanup := rateLimiter.Close

	router.GET("/health", func(c *gin.Context) {
		checks := gin.H{}
		httpStatus := http.StatusOK
		for _, check := range deps.HealthCheckers {
			name, err := check()
			if err != nil {
				checks[name] = err.Error()
				httpStatus = http.StatusServiceUnavailable
			} else {
				checks[name] = "ok"
			}
		}
		status := "ok"
		if httpStatus != http.StatusOK {
			status = "degraded"
		}
		c.JSON(httpStatus, gin.H{
			"status": status,
			"uptime": time.Since(startTime).Round(time.Second).String(),
			"checks": checks,
		})
	})

	authHandler := handlerAuth.NewHandler(deps.LoginService)
	galleryHandler := handlerGalleries.NewHandler(deps.GalleryService)
	imageHandler := handlerImages.NewHandler(deps.ImageService)

	apiGroup := router.Group("/api")
	apiGroup.Use(rateLimiter.Middleware())
	apiGroup.Use(func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	})
	{
		authGroup := apiGroup.Group("/auth")
		{
			authGroup.POST("/signup", authHandler.SignupHandler) // POST /api/auth/signup
			authGroup.POST("/login", authHandler.LoginHandler)   // POST /api/auth/login
		}

		v1 := apiGroup.Group("/v1")
		v1.Use(middleware.JWTAuth(deps.JWTService))
		{
			userGroup := v1.Group("/users/:userId")

			userGroup.GET("/images", imageHandler.ListAllHandler) // GET /api/v1/users/{userId}/images

			galleriesGroup := userGroup.Group("/galleries")
			{
				galleriesGroup.POST("", galleryHandler.CreateHandler)                // POST   .../galleries
				galleriesGroup.GET("", galleryHandler.ListHandler)                   // GET    .../galleries
				galleriesGroup.GET("/:galleryId", galleryHandler.GetHandler)         // GET    .../galleries/{galleryId}
				galleriesGroup.PUT("/:galleryId", galleryHandler.RenameHandler)      // PUT    .../galleries/{galleryId}
				galleriesGroup.DELETE("/:galleryId", galleryHandler.DeleteHandler)   // DELETE .../galleries/{galleryId}

				imagesGroup := galleriesGroup.Group("/:galleryId/images")
				{
					imagesGroup.POST("", imageHandler.UploadHandler)                           // POST   .../images (single file)
					imagesGroup.POST("/batch", imageHandler.UploadBatchHandler)                // POST   .../images/batch
					imagesGroup.GET("", imageHandler.ListHandler)                              // GET    .../images
					imagesGroup.GET("/:imageName", imageHandler.GetHandler)                    // GET    .../images/{imageName}
					imagesGroup.GET("/:imageName/thumbnail", imageHandler.ThumbnailHandler)    // GET    .../images/{imageName}/thumbnail
					imagesGroup.PATCH("/:imageName", imageHandler.RenameHandler)               // PATCH  .../images/{imageName}
					imagesGroup.DELETE("/:imageName", imageHandler.DeleteHandler)              // DELETE .../images/{imageName}
				}
			}
		}
	}

	return router, cleanup
}

// StartServer builds the http.Server with the configured timeouts.
func StartServer(deps *ServerDependencies) (*http.Server, func()) {
	cfg := config.Get()
	router, clean := setupRouter(deps)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	return srv, clean
}
