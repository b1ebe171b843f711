package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"milestone-escrow-backend/internal/config"
	"milestone-escrow-backend/internal/models"
	"milestone-escrow-backend/internal/routes"
	"milestone-escrow-backend/internal/storage"
	"milestone-escrow-backend/internal/token"
	"milestone-escrow-backend/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config: ", err)
	}

	logger.Init(&logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("database: ", err)
	}

	db.AutoMigrate(
		&models.Bid{},
		&models.Milestone{},
		&models.Proof{},
		&models.ChangeRequest{},
		&models.ChangeResponse{},
		&models.Payment{},
		&models.AuditEvent{},
		&models.AuditAnchor{},
	)

	ctx := context.Background()

	chain, err := token.NewEthereumClient(ctx, cfg.ChainRPCURL, cfg.SignerKey, cfg.Confirmations, cfg.ConfirmTimeout)
	if err != nil {
		log.Fatal("chain client: ", err)
	}

	var blobs *storage.BlobStore
	if cfg.MinioEndpoint != "" {
		blobs, err = storage.NewBlobStore(storage.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatal("blob store: ", err)
		}
		if err := blobs.EnsureBucket(ctx); err != nil {
			log.Fatal("blob store: ", err)
		}
	}

	r := gin.Default()
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-Actor"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	services := routes.RegisterRoutes(r, db, chain, blobs, cfg.ChainNetwork, cfg.ReconcileWindow)

	go services.Payments.RunReconciler(ctx, cfg.ReconcileInterval)
	go services.Audit.RunAnchorLoop(ctx, cfg.AnchorInterval)

	r.Run(fmt.Sprintf(":%d", cfg.Port))
}
