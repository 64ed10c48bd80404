package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentcag/internal/app"
	"agentcag/internal/asrclient"
	"agentcag/internal/config"
	"agentcag/internal/llmclient"
	"agentcag/internal/sardaukarclient"
	"agentcag/internal/server"
	"agentcag/internal/ttsclient"
	"agentcag/internal/util"
	"agentcag/pkg/store"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}
	util.InitLogger(cfg.LogLevel)

	conversations, err := store.New(cfg.DeploymentProfile, store.Config{
		SQLitePath:    cfg.SQLitePath,
		Neo4jURI:      cfg.Neo4jURI,
		Neo4jUser:     cfg.Neo4jUser,
		Neo4jPassword: cfg.Neo4jPassword,
		ChromaURL:     cfg.ChromaURL,
	})
	if err != nil {
		fatal("failed to select store backend", "err", err)
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := conversations.Initialize(initCtx); err != nil {
		cancel()
		fatal("failed to initialize store", "err", err, "profile", cfg.DeploymentProfile)
	}
	cancel()
	defer func() {
		if err := conversations.Close(); err != nil {
			slog.Error("store close failed", "err", err)
		}
	}()

	appCfg := app.Config{
		Store:     conversations,
		LLM:       llmclient.NewClient(cfg.LLMServiceURL),
		MaxTokens: cfg.MaxTokens,
	}
	if cfg.SardaukarServiceURL != "" {
		appCfg.Sardaukar = sardaukarclient.NewClient(cfg.SardaukarServiceURL)
	}
	if cfg.TTSServiceURL != "" {
		appCfg.TTS = ttsclient.NewClient(cfg.TTSServiceURL)
	}
	if cfg.ASRServiceURL != "" {
		appCfg.ASR = asrclient.NewClient(cfg.ASRServiceURL)
	}
	appCore, err := app.New(appCfg)
	if err != nil {
		fatal("failed to init app", "err", err)
	}

	httpServer, err := server.New(server.Config{
		App:                     appCore,
		Profile:                 cfg.DeploymentProfile,
		Version:                 version,
		RedisAddr:               cfg.RedisAddr,
		RedisPassword:           cfg.RedisPassword,
		QueryRateLimitPerMinute: cfg.QueryRateLimitPerMinute,
		TrustProxyHeaders:       cfg.TrustProxyHeaders,
	})
	if err != nil {
		fatal("failed to init server", "err", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
		close(done)
	}()

	slog.Info("api server listening", "addr", addr, "profile", cfg.DeploymentProfile)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fatal("server error", "err", err)
	}
	<-done
}

func fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}
