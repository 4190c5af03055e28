package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"sale-signature-flow/internal/domain"
)

const archiveTimeLayout = "20060102T150405Z"

type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(endpoint, accessKey, secretKey string, useSSL bool, bucket string) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

// Client exposes the underlying client for bucket notifications.
func (m *MinioStore) Client() *minio.Client {
	return m.client
}

func (m *MinioStore) Bucket() string {
	return m.bucket
}

// ArchivedDocument is the JSON body written for every fully signed document.
type ArchivedDocument struct {
	OrderID    string         `json:"orderId"`
	ArchivedAt time.Time      `json:"archivedAt"`
	Document   map[string]any `json:"document"`
}

// ArchiveObjectKey names the archive object for doc. The key only depends on
// the document, so re-archiving the same signed state overwrites one object.
func ArchiveObjectKey(orderID string, doc domain.Document) string {
	var latest time.Time
	for _, slot := range doc.Slots {
		if slot.SignedAt != nil && slot.SignedAt.After(latest) {
			latest = *slot.SignedAt
		}
	}
	return path.Join(orderID, string(doc.Type), latest.UTC().Format(archiveTimeLayout)+".json")
}

func (m *MinioStore) PutSignedDocument(ctx context.Context, orderID string, doc domain.Document, archivedAt time.Time) (string, error) {
	body, err := json.Marshal(ArchivedDocument{
		OrderID:    orderID,
		ArchivedAt: archivedAt.UTC(),
		Document:   doc.ToMap(),
	})
	if err != nil {
		return "", fmt.Errorf("encode signed document: %w", err)
	}

	objectKey := ArchiveObjectKey(orderID, doc)
	_, err = m.client.PutObject(ctx, m.bucket, objectKey, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", err
	}
	return objectKey, nil
}

func (m *MinioStore) GetObject(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data := new(bytes.Buffer)
	if _, err := data.ReadFrom(obj); err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data.Bytes(), nil
}
