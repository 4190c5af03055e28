package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"sale-signature-flow/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	sales_person_id TEXT NOT NULL DEFAULT '',
	partner_id TEXT NOT NULL DEFAULT '',
	company_id TEXT NOT NULL DEFAULT '',
	signature_document_type TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS company_signers (
	company_id TEXT PRIMARY KEY,
	quotation_approver_a_id TEXT NOT NULL DEFAULT '',
	quotation_approver_b_id TEXT NOT NULL DEFAULT '',
	sales_order_company_signer_id TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS signature_lines (
	order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	role TEXT NOT NULL,
	label TEXT NOT NULL,
	signer_id TEXT NOT NULL DEFAULT '',
	required BOOLEAN NOT NULL DEFAULT TRUE,
	signed BOOLEAN NOT NULL DEFAULT FALSE,
	signed_by TEXT,
	signed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (order_id, position)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id BIGSERIAL PRIMARY KEY,
	order_id TEXT NOT NULL,
	event TEXT NOT NULL,
	detail JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS audit_log_order_id_idx ON audit_log (order_id);
`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateOrder(ctx context.Context, rec domain.OrderRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, state, sales_person_id, partner_id, company_id)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.ID, rec.State, rec.SalesPersonID, rec.PartnerID, rec.CompanyID)
	return err
}

func (s *PostgresStore) SaveOrder(ctx context.Context, rec domain.OrderRecord) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET state = $2, sales_person_id = $3, partner_id = $4, company_id = $5, updated_at = NOW()
		WHERE id = $1
	`, rec.ID, rec.State, rec.SalesPersonID, rec.PartnerID, rec.CompanyID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *PostgresStore) GetOrder(ctx context.Context, orderID string) (domain.OrderRecord, error) {
	var rec domain.OrderRecord
	row := s.db.QueryRowContext(ctx, `
		SELECT id, state, sales_person_id, partner_id, company_id, signature_document_type
		FROM orders
		WHERE id = $1
	`, orderID)
	if err := row.Scan(
		&rec.ID,
		&rec.State,
		&rec.SalesPersonID,
		&rec.PartnerID,
		&rec.CompanyID,
		&rec.SignatureDocumentType,
	); err != nil {
		return domain.OrderRecord{}, notFound(err)
	}
	return rec, nil
}

func (s *PostgresStore) UpsertCompanySigners(ctx context.Context, signers domain.CompanySigners) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO company_signers (company_id, quotation_approver_a_id, quotation_approver_b_id, sales_order_company_signer_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (company_id) DO UPDATE SET
			quotation_approver_a_id = EXCLUDED.quotation_approver_a_id,
			quotation_approver_b_id = EXCLUDED.quotation_approver_b_id,
			sales_order_company_signer_id = EXCLUDED.sales_order_company_signer_id,
			updated_at = NOW()
	`, signers.CompanyID, signers.QuotationApproverAID, signers.QuotationApproverBID, signers.SalesOrderCompanySignerID)
	return err
}

func (s *PostgresStore) GetCompanySigners(ctx context.Context, companyID string) (domain.CompanySigners, error) {
	var signers domain.CompanySigners
	row := s.db.QueryRowContext(ctx, `
		SELECT company_id, quotation_approver_a_id, quotation_approver_b_id, sales_order_company_signer_id
		FROM company_signers
		WHERE company_id = $1
	`, companyID)
	if err := row.Scan(
		&signers.CompanyID,
		&signers.QuotationApproverAID,
		&signers.QuotationApproverBID,
		&signers.SalesOrderCompanySignerID,
	); err != nil {
		return domain.CompanySigners{}, notFound(err)
	}
	return signers, nil
}

func (s *PostgresStore) LoadSignatureDocument(ctx context.Context, orderID string) (domain.Document, error) {
	var docType string
	row := s.db.QueryRowContext(ctx, `SELECT signature_document_type FROM orders WHERE id = $1`, orderID)
	if err := row.Scan(&docType); err != nil {
		return domain.Document{}, notFound(err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT position, role, label, signer_id, required, signed, COALESCE(signed_by, ''), signed_at
		FROM signature_lines
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return domain.Document{}, err
	}
	defer rows.Close()

	doc := domain.Document{Type: domain.DocumentType(docType)}
	for rows.Next() {
		var slot domain.Slot
		var signedAt sql.NullTime
		if err := rows.Scan(
			&slot.Position,
			&slot.Role,
			&slot.Label,
			&slot.SignerID,
			&slot.Required,
			&slot.Signed,
			&slot.SignedBy,
			&signedAt,
		); err != nil {
			return domain.Document{}, err
		}
		if signedAt.Valid {
			at := signedAt.Time.UTC()
			slot.SignedAt = &at
		}
		doc.Slots = append(doc.Slots, slot)
	}
	if err := rows.Err(); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

// ReplaceSignatureSlots upserts doc's slots by position and removes stored
// slots whose position is no longer part of doc, in one transaction.
func (s *PostgresStore) ReplaceSignatureSlots(ctx context.Context, orderID string, doc domain.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET signature_document_type = $2, updated_at = NOW()
		WHERE id = $1
	`, orderID, doc.Type)
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	positions := make([]int64, 0, len(doc.Slots))
	for _, slot := range doc.Slots {
		positions = append(positions, int64(slot.Position))
		_, err := tx.ExecContext(ctx, `
			INSERT INTO signature_lines (order_id, position, role, label, signer_id, required, signed, signed_by, signed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (order_id, position) DO UPDATE SET
				role = EXCLUDED.role,
				label = EXCLUDED.label,
				signer_id = EXCLUDED.signer_id,
				required = EXCLUDED.required,
				signed = EXCLUDED.signed,
				signed_by = EXCLUDED.signed_by,
				signed_at = EXCLUDED.signed_at,
				updated_at = NOW()
		`, orderID, slot.Position, slot.Role, slot.Label, slot.SignerID, slot.Required, slot.Signed, nullString(slot.SignedBy), slot.SignedAt)
		if err != nil {
			return fmt.Errorf("upsert slot %d: %w", slot.Position, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM signature_lines
		WHERE order_id = $1 AND NOT (position = ANY($2))
	`, orderID, pq.Array(positions)); err != nil {
		return fmt.Errorf("delete stale slots: %w", err)
	}

	return tx.Commit()
}

func (s *PostgresStore) SaveSlotSignature(ctx context.Context, orderID string, slot domain.Slot) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE signature_lines
		SET signed = $3, signed_by = $4, signed_at = $5, updated_at = NOW()
		WHERE order_id = $1 AND position = $2
	`, orderID, slot.Position, slot.Signed, nullString(slot.SignedBy), slot.SignedAt)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *PostgresStore) InsertAudit(ctx context.Context, orderID string, event domain.AuditEvent, detail any) error {
	payload, err := auditPayload(detail)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (order_id, event, detail)
		VALUES ($1, $2, $3::jsonb)
	`, orderID, event, string(payload))
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
