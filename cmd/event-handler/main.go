package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/client"
	"k8s.io/klog/v2"

	"sale-signature-flow/internal/config"
	"sale-signature-flow/internal/events"
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

	inbox, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.MinioInboxBucket)
	if err != nil {
		klog.Fatalf("connect minio: %v", err)
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		klog.Fatalf("connect temporal: %v", err)
	}
	defer temporalClient.Close()

	handler := &events.ChangeHandler{
		Objects: inbox,
		Orders:  orders.NewService(cfg, store, temporalClient),
	}
	source := events.NewMinioOrderChangeSource(inbox.Client(), inbox.Bucket(), "")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	klog.Infof("event-handler listening for order exports on bucket=%s", inbox.Bucket())
	if err := source.Run(ctx, handler.Handle); err != nil {
		klog.Fatalf("event-handler stopped with error: %v", err)
	}
}
