package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/obaturn/chat-pay-BackEnd/configs"
	"github.com/obaturn/chat-pay-BackEnd/internal/engine"
	"github.com/obaturn/chat-pay-BackEnd/internal/gateway"
	"github.com/obaturn/chat-pay-BackEnd/internal/handlers"
	"github.com/obaturn/chat-pay-BackEnd/internal/logger"
	"github.com/obaturn/chat-pay-BackEnd/internal/notify"
	"github.com/obaturn/chat-pay-BackEnd/internal/routes"
	"github.com/obaturn/chat-pay-BackEnd/internal/seed"
	"github.com/obaturn/chat-pay-BackEnd/internal/store"
	"go.uber.org/zap"
)

func main() {
	logger.Init()
	defer logger.Log.Sync()

	configs.LoadConfig()
	store.NewDB()
	store.DBMigrate()
	seed.Run()

	gw := gateway.NewClient(configs.AppConfig.Paystack.BaseURL, configs.AppConfig.Paystack.SecretKey)
	eng := engine.New(store.DB, gw, notify.LogSink{}, configs.AppConfig.Paystack.SecretKey)

	router := routes.NewRoutes(handlers.New(store.DB, eng))

	srv := &http.Server{
		Addr:         ":8080",
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("server error", zap.Error(err))
		}
	}()

	// Withdrawals whose webhook never arrived stay funds-locked until the
	// sweep settles them against the provider's transfer status.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(configs.AppConfig.Sweep.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if _, err := eng.SweepStuckWithdrawals(sweepCtx, configs.AppConfig.Sweep.StuckAfter); err != nil {
					logger.Log.Error("withdrawal sweep failed", zap.Error(err))
				}
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Log.Info("shutting down server...")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("graceful shutdown failed", zap.Error(err))
	}

	sqlDB, err := store.DB.DB()
	if err != nil {
		logger.Log.Error("db close skipped, reason:", zap.Error(err))
	} else {
		sqlDB.Close()
		logger.Log.Info("db closed")
	}

	logger.Log.Info("server stopped")
}
