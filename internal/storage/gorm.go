package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sale-signature-flow/internal/domain"
)

type orderModel struct {
	ID                    string `gorm:"primaryKey;size:64"`
	State                 string `gorm:"size:32;not null"`
	SalesPersonID         string `gorm:"size:128"`
	PartnerID             string `gorm:"size:128"`
	CompanyID             string `gorm:"size:128;index"`
	SignatureDocumentType string `gorm:"size:32"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (orderModel) TableName() string {
	return "orders"
}

type companySignersModel struct {
	CompanyID                 string `gorm:"primaryKey;size:128"`
	QuotationApproverAID      string `gorm:"column:quotation_approver_a_id;size:128"`
	QuotationApproverBID      string `gorm:"column:quotation_approver_b_id;size:128"`
	SalesOrderCompanySignerID string `gorm:"size:128"`
	UpdatedAt                 time.Time
}

func (companySignersModel) TableName() string {
	return "company_signers"
}

type signatureLineModel struct {
	ID        uint       `gorm:"primaryKey"`
	OrderID   string     `gorm:"size:64;not null;uniqueIndex:idx_signature_lines_order_position"`
	Position  int        `gorm:"not null;uniqueIndex:idx_signature_lines_order_position"`
	Role      string     `gorm:"size:32;not null"`
	Label     string     `gorm:"size:128;not null"`
	SignerID  string     `gorm:"size:128"`
	Required  bool       `gorm:"not null"`
	Signed    bool       `gorm:"not null"`
	SignedBy  string     `gorm:"size:128"`
	SignedAt  *time.Time `gorm:"column:signed_at"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (signatureLineModel) TableName() string {
	return "signature_lines"
}

type auditModel struct {
	ID        uint   `gorm:"primaryKey"`
	OrderID   string `gorm:"size:64;not null;index"`
	Event     string `gorm:"size:32;not null"`
	Detail    string `gorm:"type:text"`
	CreatedAt time.Time
}

func (auditModel) TableName() string {
	return "audit_log"
}

// GormStore is the record store for the sqlite and mysql drivers.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(driver, dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// in-memory databases are per connection
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&orderModel{},
		&companySignersModel{},
		&signatureLineModel{},
		&auditModel{},
	)
}

func (s *GormStore) CreateOrder(ctx context.Context, rec domain.OrderRecord) error {
	m := orderModel{
		ID:            rec.ID,
		State:         string(rec.State),
		SalesPersonID: rec.SalesPersonID,
		PartnerID:     rec.PartnerID,
		CompanyID:     rec.CompanyID,
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) SaveOrder(ctx context.Context, rec domain.OrderRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m orderModel
		if err := tx.First(&m, "id = ?", rec.ID).Error; err != nil {
			return gormNotFound(err)
		}
		return tx.Model(&m).Updates(map[string]any{
			"state":           string(rec.State),
			"sales_person_id": rec.SalesPersonID,
			"partner_id":      rec.PartnerID,
			"company_id":      rec.CompanyID,
		}).Error
	})
}

func (s *GormStore) GetOrder(ctx context.Context, orderID string) (domain.OrderRecord, error) {
	var m orderModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", orderID).Error; err != nil {
		return domain.OrderRecord{}, gormNotFound(err)
	}
	return domain.OrderRecord{
		ID:                    m.ID,
		State:                 domain.OrderState(m.State),
		SalesPersonID:         m.SalesPersonID,
		PartnerID:             m.PartnerID,
		CompanyID:             m.CompanyID,
		SignatureDocumentType: domain.DocumentType(m.SignatureDocumentType),
	}, nil
}

func (s *GormStore) UpsertCompanySigners(ctx context.Context, signers domain.CompanySigners) error {
	m := companySignersModel{
		CompanyID:                 signers.CompanyID,
		QuotationApproverAID:      signers.QuotationApproverAID,
		QuotationApproverBID:      signers.QuotationApproverBID,
		SalesOrderCompanySignerID: signers.SalesOrderCompanySignerID,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error
}

func (s *GormStore) GetCompanySigners(ctx context.Context, companyID string) (domain.CompanySigners, error) {
	var m companySignersModel
	if err := s.db.WithContext(ctx).First(&m, "company_id = ?", companyID).Error; err != nil {
		return domain.CompanySigners{}, gormNotFound(err)
	}
	return domain.CompanySigners{
		CompanyID:                 m.CompanyID,
		QuotationApproverAID:      m.QuotationApproverAID,
		QuotationApproverBID:      m.QuotationApproverBID,
		SalesOrderCompanySignerID: m.SalesOrderCompanySignerID,
	}, nil
}

func (s *GormStore) LoadSignatureDocument(ctx context.Context, orderID string) (domain.Document, error) {
	db := s.db.WithContext(ctx)
	var order orderModel
	if err := db.First(&order, "id = ?", orderID).Error; err != nil {
		return domain.Document{}, gormNotFound(err)
	}

	var lines []signatureLineModel
	if err := db.Where("order_id = ?", orderID).Order("position asc").Find(&lines).Error; err != nil {
		return domain.Document{}, err
	}

	doc := domain.Document{Type: domain.DocumentType(order.SignatureDocumentType)}
	for _, line := range lines {
		doc.Slots = append(doc.Slots, line.toSlot())
	}
	return doc, nil
}

func (s *GormStore) ReplaceSignatureSlots(ctx context.Context, orderID string, doc domain.Document) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order orderModel
		if err := tx.First(&order, "id = ?", orderID).Error; err != nil {
			return gormNotFound(err)
		}
		if err := tx.Model(&order).Update("signature_document_type", string(doc.Type)).Error; err != nil {
			return err
		}

		var existing []signatureLineModel
		if err := tx.Where("order_id = ?", orderID).Find(&existing).Error; err != nil {
			return err
		}
		byPosition := make(map[int]signatureLineModel, len(existing))
		for _, line := range existing {
			byPosition[line.Position] = line
		}

		positions := make([]int, 0, len(doc.Slots))
		for _, slot := range doc.Slots {
			positions = append(positions, slot.Position)
			line := newSignatureLine(orderID, slot)
			if prev, ok := byPosition[slot.Position]; ok {
				line.ID = prev.ID
				line.CreatedAt = prev.CreatedAt
				if err := tx.Save(&line).Error; err != nil {
					return fmt.Errorf("update slot %d: %w", slot.Position, err)
				}
				continue
			}
			if err := tx.Create(&line).Error; err != nil {
				return fmt.Errorf("create slot %d: %w", slot.Position, err)
			}
		}

		stale := tx.Where("order_id = ?", orderID)
		if len(positions) > 0 {
			stale = stale.Where("position NOT IN ?", positions)
		}
		if err := stale.Delete(&signatureLineModel{}).Error; err != nil {
			return fmt.Errorf("delete stale slots: %w", err)
		}
		return nil
	})
}

func (s *GormStore) SaveSlotSignature(ctx context.Context, orderID string, slot domain.Slot) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var line signatureLineModel
		if err := tx.First(&line, "order_id = ? AND position = ?", orderID, slot.Position).Error; err != nil {
			return gormNotFound(err)
		}
		line.Signed = slot.Signed
		line.SignedBy = slot.SignedBy
		line.SignedAt = slot.SignedAt
		return tx.Save(&line).Error
	})
}

func (s *GormStore) InsertAudit(ctx context.Context, orderID string, event domain.AuditEvent, detail any) error {
	payload, err := auditPayload(detail)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&auditModel{
		OrderID: orderID,
		Event:   string(event),
		Detail:  string(payload),
	}).Error
}

func newSignatureLine(orderID string, slot domain.Slot) signatureLineModel {
	return signatureLineModel{
		OrderID:  orderID,
		Position: slot.Position,
		Role:     string(slot.Role),
		Label:    slot.Label,
		SignerID: slot.SignerID,
		Required: slot.Required,
		Signed:   slot.Signed,
		SignedBy: slot.SignedBy,
		SignedAt: slot.SignedAt,
	}
}

func (l signatureLineModel) toSlot() domain.Slot {
	slot := domain.Slot{
		Position: l.Position,
		Role:     domain.Role(l.Role),
		Label:    l.Label,
		SignerID: l.SignerID,
		Required: l.Required,
		Signed:   l.Signed,
		SignedBy: l.SignedBy,
	}
	if l.SignedAt != nil {
		at := l.SignedAt.UTC()
		slot.SignedAt = &at
	}
	return slot
}

func gormNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
