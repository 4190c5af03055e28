package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"k8s.io/klog/v2"

	"sale-signature-flow/internal/api"
	"sale-signature-flow/internal/config"
	"sale-signature-flow/internal/orders"
	"sale-signature-flow/internal/storage"
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	cfg, err := config.Load()
	if err != nil {
		klog.Fatalf("load config: %v", err)
	}

	store, err := storage.Open(cfg)
	if err != nil {
		klog.Fatalf("open %s store: %v", cfg.StoreDriver, err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		klog.Fatalf("%s ping: %v", cfg.StoreDriver, err)
	}
	if err := store.Migrate(ctx); err != nil {
		klog.Fatalf("migrate %s store: %v", cfg.StoreDriver, err)
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		klog.Fatalf("connect temporal: %v", err)
	}
	defer temporalClient.Close()

	svc := orders.NewService(cfg, store, temporalClient)
	h := api.NewHandler(cfg, svc, store)
	router := api.NewRouter(h)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		klog.Infof("api listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			klog.Fatalf("http server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		klog.Errorf("graceful shutdown failed: %v", err)
	}
}
