package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"k8s.io/klog/v2"

	"sale-signature-flow/internal/domain"
	"sale-signature-flow/internal/storage"
)

type ActivityStore interface {
	GetOrder(ctx context.Context, orderID string) (domain.OrderRecord, error)
	GetCompanySigners(ctx context.Context, companyID string) (domain.CompanySigners, error)
	LoadSignatureDocument(ctx context.Context, orderID string) (domain.Document, error)
	ReplaceSignatureSlots(ctx context.Context, orderID string, doc domain.Document) error
	SaveSlotSignature(ctx context.Context, orderID string, slot domain.Slot) error
	InsertAudit(ctx context.Context, orderID string, event domain.AuditEvent, detail any) error
}

type ArchiveStore interface {
	PutSignedDocument(ctx context.Context, orderID string, doc domain.Document, archivedAt time.Time) (string, error)
}

type Activities struct {
	Store   ActivityStore
	Archive ArchiveStore
	Now     func() time.Time
}

type SyncSignatureSlotsInput struct {
	OrderID string
	Reason  string
}

type SyncSignatureSlotsOutput struct {
	Document domain.Document
}

type RecordSignatureInput struct {
	OrderID string
	Slot    domain.Slot
}

type ArchiveSignedDocumentInput struct {
	OrderID  string
	Document domain.Document
}

type ArchiveSignedDocumentOutput struct {
	ObjectKey string
}

type CloseSignatureFlowInput struct {
	OrderID  string
	Reason   string
	ClosedBy string
}

// SyncSignatureSlotsActivity rebuilds the order's slots from its current
// state, participants and company settings. The stored slots are only
// replaced when the rebuilt document validates.
func (a *Activities) SyncSignatureSlotsActivity(ctx context.Context, input SyncSignatureSlotsInput) (SyncSignatureSlotsOutput, error) {
	order, err := a.Store.GetOrder(ctx, input.OrderID)
	if errors.Is(err, storage.ErrNotFound) {
		return SyncSignatureSlotsOutput{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("order %s not found", input.OrderID), errTypeOrderNotFound, nil)
	}
	if err != nil {
		return SyncSignatureSlotsOutput{}, err
	}

	company, err := a.Store.GetCompanySigners(ctx, order.CompanyID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return SyncSignatureSlotsOutput{}, err
	}

	existing, err := a.Store.LoadSignatureDocument(ctx, input.OrderID)
	if err != nil {
		return SyncSignatureSlotsOutput{}, err
	}

	docType := domain.DocumentTypeForState(order.State)
	doc, err := domain.Rebuild(docType, domain.ParticipantsFor(order, company), existing.Slots)
	if err != nil {
		if kind, ok := domain.KindOf(err); ok {
			klog.Warningf("[temporal.SyncSignatureSlotsActivity] slots rejected: orderID=%s, kind=%s, error=%v", input.OrderID, kind, err)
			if auditErr := a.Store.InsertAudit(ctx, input.OrderID, domain.AuditSlotsRejected, map[string]any{
				"document_type": docType,
				"kind":          kind,
				"error":         err.Error(),
				"reason":        input.Reason,
			}); auditErr != nil {
				klog.Errorf("[temporal.SyncSignatureSlotsActivity] audit rejection failed: orderID=%s, error=%v", input.OrderID, auditErr)
			}
			return SyncSignatureSlotsOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), string(kind), nil)
		}
		return SyncSignatureSlotsOutput{}, err
	}

	if err := a.Store.ReplaceSignatureSlots(ctx, input.OrderID, doc); err != nil {
		return SyncSignatureSlotsOutput{}, err
	}
	if err := a.Store.InsertAudit(ctx, input.OrderID, domain.AuditSlotsSynced, map[string]any{
		"document_type": doc.Type,
		"slots":         len(doc.Slots),
		"reason":        input.Reason,
	}); err != nil {
		return SyncSignatureSlotsOutput{}, err
	}
	klog.V(2).Infof("[temporal.SyncSignatureSlotsActivity] slots synced: orderID=%s, documentType=%s", input.OrderID, doc.Type)
	return SyncSignatureSlotsOutput{Document: doc}, nil
}

// RecordSignatureActivity persists one signature. It refuses when the stored
// slots belong to another phase than the order's current state, which happens
// after a state change whose rebuild was rejected.
func (a *Activities) RecordSignatureActivity(ctx context.Context, input RecordSignatureInput) error {
	order, err := a.Store.GetOrder(ctx, input.OrderID)
	if errors.Is(err, storage.ErrNotFound) {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("order %s not found", input.OrderID), errTypeOrderNotFound, nil)
	}
	if err != nil {
		return err
	}
	stored, err := a.Store.LoadSignatureDocument(ctx, input.OrderID)
	if err != nil {
		return err
	}
	if want := domain.DocumentTypeForState(order.State); stored.Type != want {
		klog.Warningf("[temporal.RecordSignatureActivity] slots out of date: orderID=%s, stored=%s, want=%s", input.OrderID, stored.Type, want)
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("order %s is in state %s but its slots are for a %s", input.OrderID, order.State, stored.Type),
			errTypeSlotsOutOfDate, nil)
	}

	err = a.Store.SaveSlotSignature(ctx, input.OrderID, input.Slot)
	if errors.Is(err, storage.ErrNotFound) {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("slot %d of order %s not found", input.Slot.Position, input.OrderID), errTypeSlotNotFound, nil)
	}
	if err != nil {
		return err
	}
	return a.Store.InsertAudit(ctx, input.OrderID, domain.AuditSlotSigned, map[string]any{
		"position":  input.Slot.Position,
		"role":      input.Slot.Role,
		"signed_by": input.Slot.SignedBy,
	})
}

func (a *Activities) ArchiveSignedDocumentActivity(ctx context.Context, input ArchiveSignedDocumentInput) (ArchiveSignedDocumentOutput, error) {
	objectKey, err := a.Archive.PutSignedDocument(ctx, input.OrderID, input.Document, a.now())
	if err != nil {
		return ArchiveSignedDocumentOutput{}, err
	}
	if err := a.Store.InsertAudit(ctx, input.OrderID, domain.AuditDocumentSigned, map[string]any{
		"document_type": input.Document.Type,
		"object_key":    objectKey,
	}); err != nil {
		return ArchiveSignedDocumentOutput{}, err
	}
	klog.Infof("[temporal.ArchiveSignedDocumentActivity] signed document archived: orderID=%s, key=%s", input.OrderID, objectKey)
	return ArchiveSignedDocumentOutput{ObjectKey: objectKey}, nil
}

func (a *Activities) CloseSignatureFlowActivity(ctx context.Context, input CloseSignatureFlowInput) error {
	return a.Store.InsertAudit(ctx, input.OrderID, domain.AuditFlowClosed, map[string]any{
		"reason":    input.Reason,
		"closed_by": input.ClosedBy,
	})
}

func (a *Activities) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}
