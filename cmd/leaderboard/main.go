package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/mocktest-service/internal/config"
	"github.com/SAP-F-2025/mocktest-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/mocktest-service/internal/services"
	"github.com/SAP-F-2025/mocktest-service/internal/utils"
	"github.com/SAP-F-2025/mocktest-service/pkg"
)

func main() {
	var output string
	flag.StringVar(&output, "out", "", "Output file for export (default leaderboard-YYYYMMDD.xlsx)")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := utils.NewJSONLogger(os.Stderr, cfg.LogLevel)

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		if redisClient, err = pkg.NewRedisClient(cfg); err != nil {
			logger.Warn("Redis unavailable, running without cache", "error", err)
		}
	}

	repoManager := postgres.NewRepositoryManager(postgres.RepositoryConfig{
		DB:            db,
		RedisClient:   redisClient,
		CasdoorConfig: cfg.Casdoor,
	})
	if err := repoManager.Initialize(); err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}
	defer repoManager.Shutdown(context.Background())

	ranks := services.NewRankService(repoManager.GetRepository(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "recalculate":
		processed, err := ranks.RecalculateAll(ctx)
		if err != nil {
			log.Fatalf("Recalculation failed after %d users: %v", processed, err)
		}
		fmt.Printf("Recalculated %d users\n", processed)
	case "export":
		if output == "" {
			output = fmt.Sprintf("leaderboard-%s.xlsx", time.Now().UTC().Format("20060102"))
		}
		data, err := ranks.ExportLeaderboard(ctx)
		if err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			log.Fatalf("Failed to write %s: %v", output, err)
		}
		fmt.Printf("Leaderboard written to %s\n", output)
	default:
		printUsage()
	}
}

func printUsage() {
	fmt.Println("Usage: leaderboard [flags] <command>")
	fmt.Println("Commands: recalculate, export")
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
