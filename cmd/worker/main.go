package main

import (
	"context"
	"flag"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"k8s.io/klog/v2"

	"sale-signature-flow/internal/config"
	"sale-signature-flow/internal/storage"
	appTemporal "sale-signature-flow/internal/temporal"
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
	if err := store.Migrate(ctx); err != nil {
		cancel()
		klog.Fatalf("migrate %s store: %v", cfg.StoreDriver, err)
	}
	cancel()

	archive, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.MinioArchiveBucket)
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

	activities := &appTemporal.Activities{
		Store:   store,
		Archive: archive,
	}

	w := worker.New(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(appTemporal.SignatureFlowWorkflow, workflow.RegisterOptions{Name: appTemporal.SignatureFlowWorkflowName})
	w.RegisterActivity(activities.SyncSignatureSlotsActivity)
	w.RegisterActivity(activities.RecordSignatureActivity)
	w.RegisterActivity(activities.ArchiveSignedDocumentActivity)
	w.RegisterActivity(activities.CloseSignatureFlowActivity)

	klog.Infof("worker running on task queue %s store=%s archive_bucket=%s", cfg.TemporalTaskQueue, cfg.StoreDriver, cfg.MinioArchiveBucket)
	if err := w.Run(worker.InterruptCh()); err != nil {
		klog.Fatalf("worker stopped with error: %v", err)
	}
}
