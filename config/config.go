package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries everything the service reads from the environment.
// Constructed once in main and passed down; no package keeps its own
// ambient copy.
type Config struct {
	RPCURL             string
	CollectionAddress  string
	AuthoritySecretKey string // base58 collection authority key, never served over HTTP

	StorageAPIURL     string
	StorageSecretKey  string
	StorageGatewayURL string

	DatabaseURL string
	ServerPort  string

	ScanRatePerSecond float64
	SnapshotTTL       time.Duration
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Load reads the environment. It fails only on settings the service
// cannot run without.
func Load() (Config, error) {
	cfg := Config{
		RPCURL:             getenv("RPC_URL", "https://api.devnet.solana.com"),
		CollectionAddress:  os.Getenv("COLLECTION_ADDRESS"),
		AuthoritySecretKey: os.Getenv("COLLECTION_AUTHORITY_SECRET_KEY"),
		StorageAPIURL:      os.Getenv("STORAGE_API_URL"),
		StorageSecretKey:   os.Getenv("STORAGE_SECRET_KEY"),
		StorageGatewayURL:  getenv("STORAGE_GATEWAY_URL", "https://ipfs.io/ipfs/"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		ServerPort:         getenv("SERVER_PORT", ":8080"),
		ScanRatePerSecond:  getenvFloat("COLLECTION_SCAN_RATE", 5),
		SnapshotTTL:        getenvDuration("COLLECTION_SNAPSHOT_TTL", 5*time.Second),
	}

	if cfg.CollectionAddress == "" {
		return Config{}, fmt.Errorf("COLLECTION_ADDRESS is required")
	}
	if cfg.AuthoritySecretKey == "" {
		return Config{}, fmt.Errorf("COLLECTION_AUTHORITY_SECRET_KEY is required")
	}
	if cfg.StorageAPIURL == "" {
		return Config{}, fmt.Errorf("STORAGE_API_URL is required")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}
