package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"warecollabgo/internal/collab"
	"warecollabgo/internal/config"
	"warecollabgo/internal/database/db_client"
	"warecollabgo/internal/http/http_server"
	"warecollabgo/internal/notify"
	"warecollabgo/internal/redis/redis_client"
	"warecollabgo/internal/store/entitystore"
	"warecollabgo/internal/ws"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	var err error
	var cfg *config.Config
	var redisClient *redis.Client

	// 1. Load configuration
	cfg, err = config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Redis (broadcast fan-out bus)
	redisClient, err = redis_client.NewRedisClient(cfg.RedisHost, int(cfg.RedisPort))
	if err != nil {
		Log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()

	// 4. Postgres (persistent entity mirror)
	pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	defer pgDb.Close()
	mirror := entitystore.New(pgDb)

	// 5. Connection registry / fan-out hub
	hub := ws.NewHub()

	// 6. Collaboration coordinator + heartbeat sweeper
	coordinator, err := collab.New(mirror, hub, collab.Options{
		DisconnectTimeout: cfg.DisconnectTimeout(),
		HeartbeatInterval: cfg.HeartbeatInterval(),
	})
	if err != nil {
		Log.Fatal("coordinator", zap.Error(err))
	}
	coordinator.Start(ctx)

	// 7. Broadcast gateway + Redis relay into the hub
	gateway := notify.NewGateway(redisClient)
	go notify.Relay(ctx, redisClient, hub)

	// 8. Initialize the WS server
	wsSrv := ws.NewWsServer(hub, coordinator, gateway, cfg.JwtSecret)

	// 9. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, hub, gateway)
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}
