package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"sale-signature-flow/internal/config"
	"sale-signature-flow/internal/domain"
)

// ErrNotFound is returned by every store when the addressed row does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the record store backing orders, company signer settings, the
// persisted signature slots and the audit log.
type Store interface {
	Ping(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	CreateOrder(ctx context.Context, rec domain.OrderRecord) error
	SaveOrder(ctx context.Context, rec domain.OrderRecord) error
	GetOrder(ctx context.Context, orderID string) (domain.OrderRecord, error)

	UpsertCompanySigners(ctx context.Context, signers domain.CompanySigners) error
	GetCompanySigners(ctx context.Context, companyID string) (domain.CompanySigners, error)

	LoadSignatureDocument(ctx context.Context, orderID string) (domain.Document, error)
	ReplaceSignatureSlots(ctx context.Context, orderID string, doc domain.Document) error
	SaveSlotSignature(ctx context.Context, orderID string, slot domain.Slot) error

	InsertAudit(ctx context.Context, orderID string, event domain.AuditEvent, detail any) error
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*GormStore)(nil)
)

// Open returns the store selected by cfg.StoreDriver.
func Open(cfg config.Config) (Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		return NewPostgresStore(cfg.PostgresDSN)
	case config.StoreDriverSQLite, config.StoreDriverMySQL:
		return NewGormStore(cfg.StoreDriver, cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

func auditPayload(detail any) ([]byte, error) {
	switch v := detail.(type) {
	case nil:
		return []byte("{}"), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}
