package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"vote-ledger-backend/config"
	"vote-ledger-backend/functions"
	"vote-ledger-backend/ledger"
	"vote-ledger-backend/registry"
	"vote-ledger-backend/storage"
	"vote-ledger-backend/throttle"
)

func setupRoutes(handler *functions.Handler) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/vote", handler.CastVote)
		apiV1.GET("/proposals/:id/approval", handler.GetProposalApproval)
		apiV1.GET("/voters", handler.GetVoters)
		apiV1.POST("/upload", handler.UploadMetadata)
		apiV1.POST("/createProposal", handler.CreateProposal)
		apiV1.GET("/proposals", handler.ListProposals)
	}

	return router
}

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	registryClient, err := registry.NewClient(cfg.RPCURL, cfg.CollectionAddress, cfg.AuthoritySecretKey)
	if err != nil {
		log.Fatal("Failed to create registry client: ", err)
	}

	storeClient := storage.NewClient(cfg.StorageAPIURL, cfg.StorageSecretKey, cfg.StorageGatewayURL)

	collectionCache := throttle.NewCollectionCache(
		registryClient, cfg.CollectionAddress, cfg.ScanRatePerSecond, cfg.SnapshotTTL)

	engine := ledger.NewEngine(registryClient, storeClient, collectionCache)

	db, err := functions.OpenDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}

	handler := functions.NewHandler(engine, storeClient, db)

	router := setupRoutes(handler)

	log.Printf("Server starting on port %s", cfg.ServerPort)
	log.Fatal(router.Run(cfg.ServerPort))
}
