package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatherup/gatherup/internal/ads"
	"github.com/gatherup/gatherup/internal/api"
	"github.com/gatherup/gatherup/internal/chat"
	"github.com/gatherup/gatherup/internal/config"
	"github.com/gatherup/gatherup/internal/database"
	"github.com/gatherup/gatherup/internal/notification"
	"github.com/gatherup/gatherup/internal/stats"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	logger := log.New(os.Stderr, "[gatherup] ", log.LstdFlags)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Fatal("load .env:", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgGatherUpRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if err := dbConn.Migrate(); err != nil {
		logger.Fatal("migrate:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	notifier := notification.NewPushDispatcher(cfg.PushGatewayURL)

	chatServer, err := chat.NewChatServer(logger, dbConn, notifier, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	engine := ads.NewEngine(logger, dbConn, notifier)

	srv := api.NewGatherUpApp(mux, logger, chatServer, engine, dbConn, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
