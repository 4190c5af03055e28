package events

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/notification"
	"k8s.io/klog/v2"
)

const (
	objectCreatedEvent = "s3:ObjectCreated:*"
	changeObjectSuffix = ".json"
)

// OrderChangeEvent is raised for every order change export dropped into the
// inbox bucket under <orderId>/<name>.json.
type OrderChangeEvent struct {
	OrderID   string
	ObjectKey string
	EventName string
}

type OrderChangeEventSource interface {
	Run(ctx context.Context, handler func(context.Context, OrderChangeEvent) error) error
}

type MinioOrderChangeSource struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinioOrderChangeSource(client *minio.Client, bucket string, prefix string) *MinioOrderChangeSource {
	return &MinioOrderChangeSource{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// Run delivers order change events to handler until ctx is cancelled. A
// handler error or a broken notification stream ends the run.
func (s *MinioOrderChangeSource) Run(ctx context.Context, handler func(context.Context, OrderChangeEvent) error) error {
	notificationCh := s.client.ListenBucketNotification(ctx, s.bucket, s.prefix, changeObjectSuffix, []string{objectCreatedEvent})
	for {
		var info notification.Info
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case info, ok = <-notificationCh:
		}

		switch {
		case ctx.Err() != nil:
			return nil
		case !ok:
			return fmt.Errorf("minio notification stream closed for bucket %s", s.bucket)
		case info.Err != nil:
			return fmt.Errorf("minio notification stream error: %w", info.Err)
		}

		for _, event := range changeEvents(info.Records) {
			if err := handler(ctx, event); err != nil {
				return fmt.Errorf("handle %s: %w", event.ObjectKey, err)
			}
		}
	}
}

// changeEvents maps a notification batch to order change events, dropping
// objects that are not order exports.
func changeEvents(records []notification.Event) []OrderChangeEvent {
	events := make([]OrderChangeEvent, 0, len(records))
	for _, record := range records {
		objectKey, err := decodeObjectKey(record.S3.Object.Key)
		if err != nil {
			klog.V(2).Infof("[events.changeEvents] skipping object: key=%q, error=%v", record.S3.Object.Key, err)
			continue
		}
		orderID, err := parseObjectKey(objectKey)
		if err != nil {
			klog.V(2).Infof("[events.changeEvents] skipping object: key=%q, error=%v", objectKey, err)
			continue
		}
		events = append(events, OrderChangeEvent{
			OrderID:   orderID,
			ObjectKey: objectKey,
			EventName: record.EventName,
		})
	}
	return events
}

func decodeObjectKey(encoded string) (string, error) {
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return "", err
	}
	decoded = strings.TrimSpace(decoded)
	if decoded == "" {
		return "", fmt.Errorf("object key is empty")
	}
	return decoded, nil
}

func parseObjectKey(objectKey string) (string, error) {
	cleaned := strings.Trim(strings.ReplaceAll(objectKey, "\\", "/"), "/")
	parts := strings.SplitN(cleaned, "/", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("object key %q does not match order_id/name.json", objectKey)
	}
	orderID := strings.TrimSpace(parts[0])
	name := strings.TrimSpace(parts[1])
	if orderID == "" || name == "" {
		return "", fmt.Errorf("object key %q missing order id or name", objectKey)
	}
	if path.Ext(name) != changeObjectSuffix {
		return "", fmt.Errorf("object key %q is not a json export", objectKey)
	}
	return orderID, nil
}
