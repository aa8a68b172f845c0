package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/spf13/cobra"

	"github.com/avess/gallery-bed/api/core"
	"github.com/avess/gallery-bed/cache"
	"github.com/avess/gallery-bed/config"
	"github.com/avess/gallery-bed/database"
	galleryrepo "github.com/avess/gallery-bed/database/repo/galleries"
	imagerepo "github.com/avess/gallery-bed/database/repo/images"
	userrepo "github.com/avess/gallery-bed/database/repo/users"
	"github.com/avess/gallery-bed/internal/auth"
	svcGalleries "github.com/avess/gallery-bed/internal/galleries"
	svcImages "github.com/avess/gallery-bed/internal/images"
	"github.com/avess/gallery-bed/internal/locks"
	"github.com/avess/gallery-bed/internal/scanner"
	"github.com/avess/gallery-bed/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start API server",
	Run: func(cmd *cobra.Command, args []string) {
		RunServer()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func RunServer() {
	config.InitConfig()
	cfg := config.Get()

	if err := os.MkdirAll("./data", os.ModePerm); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	vips.LoggingSettings(nil, vips.LogLevelWarning)
	vips.Startup(nil)
	defer vips.Shutdown()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	storageFactory, err := storage.NewFactory(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	store := storageFactory.GetDefault()

	cacheBackend, err := cache.NewCache(cfg)
	if err != nil {
		log.Printf("Cache unavailable, continuing without it: %v", err)
	}
	cacheHelper := cache.NewHelper(cacheBackend, cfg.CacheTTL)

	usersRepo := userrepo.NewRepository(db)
	galleriesRepo := galleryrepo.NewRepository(db)
	imagesRepo := imagerepo.NewRepository(db)

	jwtService, err := auth.NewJWTService(cfg.JWTSecret, cfg.JWTExpiresIn)
	if err != nil {
		log.Fatalf("Failed to initialize JWT service: %v", err)
	}
	loginService := auth.NewLoginService(usersRepo, jwtService, cacheHelper)

	keyed := locks.NewKeyed()
	galleryService := svcGalleries.NewService(galleriesRepo, store, keyed, cacheHelper, cfg.GalleryNameIllegalChars)
	imageService := svcImages.NewService(
		imagesRepo,
		galleriesRepo,
		store,
		svcImages.NewVipsThumbnailer(),
		keyed,
		cacheHelper,
		cfg.UploadMaxSizeBytes,
		cfg.AllowedUploadTypes(),
		cfg.ThumbnailWidth,
		cfg.ThumbnailHeight,
	)

	driftScanner := scanner.NewScanner(imagesRepo, store, cfg.ScanInterval, cfg.ScanBatchSize)
	driftScanner.Start()

	deps := &core.ServerDependencies{
		JWTService:     jwtService,
		LoginService:   loginService,
		GalleryService: galleryService,
		ImageService:   imageService,
		HealthCheckers: []func() (string, error){
			func() (string, error) {
				sqlDB, err := db.DB()
				if err != nil {
					return "database", err
				}
				return "database", sqlDB.Ping()
			},
			func() (string, error) {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				return "storage", store.Health(ctx)
			},
		},
	}

	server, cleanup := core.StartServer(deps)
	go func() {
		log.Printf("Server started on %s", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if cleanup != nil {
		cleanup()
	}
	driftScanner.Stop()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if cacheBackend != nil {
		if err := cacheBackend.Close(); err != nil {
			log.Printf("Error closing cache: %v", err)
		}
	}
	if err := database.Close(db); err != nil {
		log.Printf("Error closing database: %v", err)
	}

	log.Println("Server exited successfully")
}
