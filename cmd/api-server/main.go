// Package main API Server 入口
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leave-admin/deployments"
	"leave-admin/internal/apiserver/auth"
	"leave-admin/internal/apiserver/server"
	"leave-admin/internal/config"
	"leave-admin/internal/shared/eventbus"
	redisbus "leave-admin/internal/shared/eventbus/redis"
	"leave-admin/internal/shared/objstore"
	"leave-admin/internal/shared/storage/driver/postgres"
	"leave-admin/internal/shared/storage/driver/sqlite"
	"leave-admin/internal/shared/storage/repository"
)

func main() {
	// 加载配置（自动加载 .env，根据 APP_ENV 切换环境）
	cfg := config.Load()

	log.Printf("Starting API Server... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	// 初始化数据库（业务数据持久化）
	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()
	log.Printf("Connected to database [driver=%s]", cfg.Database.Driver)

	// 初始化 Redis 事件总线（多副本推送转发；未启用时推送只在本副本直投）
	var bus eventbus.Bus
	if cfg.Redis.Enabled {
		b, err := redisbus.NewBus(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer b.Close()
		bus = b
		log.Println("Connected to Redis")
	}

	// 初始化 MinIO（请假支撑材料存储，endpoint 未配置时文档接口返回 501）
	var docs *objstore.Client
	if cfg.MinIO.Endpoint != "" {
		docs, err = objstore.NewClient(cfg.MinIO)
		if err != nil {
			log.Fatalf("Failed to create MinIO client: %v", err)
		}
		if err := docs.EnsureBucket(context.Background()); err != nil {
			log.Fatalf("Failed to ensure MinIO bucket: %v", err)
		}
		log.Println("Connected to MinIO")
	}

	// 引导管理员账号
	if cfg.Auth.AdminEmail != "" && cfg.Auth.AdminPassword != "" {
		if err := auth.EnsureAdminUser(store, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			log.Fatalf("Failed to ensure admin user: %v", err)
		}
	}

	authCfg := auth.Config{
		JWTSecret:       cfg.Auth.JWTSecret,
		AccessTokenTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
	}
	if !authCfg.Enabled() {
		log.Println("WARNING: JWT_SECRET not set, authentication disabled (dev mode)")
	}

	h := server.NewHandler(store, authCfg, bus, docs, cfg.Push.MaxConnsPerUser)

	// 启动推送事件消费循环
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.Gateway().StartBusConsumer(ctx); err != nil {
		log.Fatalf("Failed to start push consumer: %v", err)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 优雅关闭
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("API Server listening on :%s", cfg.APIPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	fmt.Println("Server stopped")
}

// openStore 按配置的驱动打开数据库并构建仓储
func openStore(cfg *config.Config) (*repository.Store, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		dialect := sqlite.NewDialect()
		if err := dialect.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
		return repository.NewStore(db, dialect), nil
	case "postgres", "":
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if _, err := db.Exec(deployments.InitDBSQL); err != nil {
			return nil, fmt.Errorf("init schema: %w", err)
		}
		return repository.NewStore(db, postgres.NewDialect()), nil
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Database.Driver)
	}
}
