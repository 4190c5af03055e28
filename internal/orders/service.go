package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"k8s.io/klog/v2"

	"sale-signature-flow/internal/config"
	"sale-signature-flow/internal/domain"
	"sale-signature-flow/internal/storage"
	appTemporal "sale-signature-flow/internal/temporal"
)

var (
	// ErrInvalidInput marks requests rejected before anything is persisted.
	ErrInvalidInput = errors.New("invalid input")
	// ErrFlowNotRunning is returned when a signal targets an order whose
	// signature flow has already finished or was never started.
	ErrFlowNotRunning = errors.New("signature flow is not running")
	// ErrSlotsOutOfDate is returned for signatures on an order whose stored
	// slots were built for another phase than its current state.
	ErrSlotsOutOfDate = errors.New("signature slots do not match the order state")
)

type Store interface {
	CreateOrder(ctx context.Context, rec domain.OrderRecord) error
	SaveOrder(ctx context.Context, rec domain.OrderRecord) error
	GetOrder(ctx context.Context, orderID string) (domain.OrderRecord, error)
	UpsertCompanySigners(ctx context.Context, signers domain.CompanySigners) error
	GetCompanySigners(ctx context.Context, companyID string) (domain.CompanySigners, error)
	LoadSignatureDocument(ctx context.Context, orderID string) (domain.Document, error)
	InsertAudit(ctx context.Context, orderID string, event domain.AuditEvent, detail any) error
}

// WorkflowClient is the subset of client.Client used to drive signature flows.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	SignalWorkflow(ctx context.Context, workflowID string, runID string, signalName string, arg interface{}) error
	SignalWithStartWorkflow(ctx context.Context, workflowID string, signalName string, signalArg interface{},
		options client.StartWorkflowOptions, workflow interface{}, workflowArgs ...interface{}) (client.WorkflowRun, error)
}

type Service struct {
	cfg       config.Config
	store     Store
	workflows WorkflowClient
	now       func() time.Time
}

func NewService(cfg config.Config, store Store, workflows WorkflowClient) *Service {
	return &Service{cfg: cfg, store: store, workflows: workflows, now: time.Now}
}

type NewOrder struct {
	ID            string            `json:"id,omitempty"`
	State         domain.OrderState `json:"state,omitempty"`
	SalesPersonID string            `json:"salesPersonId"`
	PartnerID     string            `json:"partnerId"`
	CompanyID     string            `json:"companyId"`
}

type Created struct {
	OrderID    string `json:"order_id"`
	WorkflowID string `json:"workflow_id"`
}

func (s *Service) WorkflowID(orderID string) string {
	return s.cfg.WorkflowID(orderID)
}

// CreateOrder stores a new order and starts its signature flow.
func (s *Service) CreateOrder(ctx context.Context, in NewOrder) (Created, error) {
	if in.State == "" {
		in.State = domain.OrderStateDraft
	}
	if !domain.ValidOrderState(in.State) {
		return Created{}, fmt.Errorf("%w: unknown order state %q", ErrInvalidInput, in.State)
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	rec := domain.OrderRecord{
		ID:            in.ID,
		State:         in.State,
		SalesPersonID: in.SalesPersonID,
		PartnerID:     in.PartnerID,
		CompanyID:     in.CompanyID,
	}
	if err := s.store.CreateOrder(ctx, rec); err != nil {
		return Created{}, fmt.Errorf("create order: %w", err)
	}
	if err := s.store.InsertAudit(ctx, rec.ID, domain.AuditOrderCreated, rec); err != nil {
		return Created{}, fmt.Errorf("audit order: %w", err)
	}

	workflowID := s.WorkflowID(rec.ID)
	_, err := s.workflows.ExecuteWorkflow(ctx, s.startOptions(workflowID), appTemporal.SignatureFlowWorkflowName, appTemporal.WorkflowInput{
		OrderID: rec.ID,
	})
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if !errors.As(err, &alreadyStarted) {
			return Created{}, fmt.Errorf("start signature flow: %w", err)
		}
		klog.Infof("[orders.CreateOrder] signature flow already running: workflowID=%s", workflowID)
	}

	klog.V(2).Infof("[orders.CreateOrder] order created: orderID=%s, state=%s", rec.ID, rec.State)
	return Created{OrderID: rec.ID, WorkflowID: workflowID}, nil
}

// ApplyChange persists change and, when a field governing signer assignment
// moved, asks the order's flow to rebuild its slots. The flow is started if
// it is not running. A change whose rebuilt slots would not validate is
// rejected with the domain.ValidationError and nothing is stored.
func (s *Service) ApplyChange(ctx context.Context, orderID string, change domain.OrderChange) (domain.OrderRecord, bool, error) {
	if change.State != nil && !domain.ValidOrderState(*change.State) {
		return domain.OrderRecord{}, false, fmt.Errorf("%w: unknown order state %q", ErrInvalidInput, *change.State)
	}

	before, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return domain.OrderRecord{}, false, err
	}
	after, changed := change.Apply(before)
	if !changed {
		return before, false, nil
	}
	if err := s.checkSlots(ctx, after); err != nil {
		klog.Warningf("[orders.ApplyChange] change rejected: orderID=%s, error=%v", orderID, err)
		return domain.OrderRecord{}, false, err
	}

	if err := s.store.SaveOrder(ctx, after); err != nil {
		return domain.OrderRecord{}, false, fmt.Errorf("save order: %w", err)
	}
	fields := changedFields(before, after)
	if err := s.store.InsertAudit(ctx, orderID, domain.AuditOrderChanged, map[string]any{"fields": fields}); err != nil {
		return domain.OrderRecord{}, false, fmt.Errorf("audit order change: %w", err)
	}

	workflowID := s.WorkflowID(orderID)
	_, err = s.workflows.SignalWithStartWorkflow(ctx, workflowID, appTemporal.OrderChangedSignalName,
		appTemporal.OrderChangedSignal{Reason: strings.Join(fields, ",")},
		s.startOptions(workflowID), appTemporal.SignatureFlowWorkflowName, appTemporal.WorkflowInput{OrderID: orderID})
	if err != nil {
		klog.Errorf("[orders.ApplyChange] signal order change failed: orderID=%s, error=%v", orderID, err)
		return domain.OrderRecord{}, false, fmt.Errorf("signal order change: %w", err)
	}

	klog.V(2).Infof("[orders.ApplyChange] order changed: orderID=%s, fields=%v", orderID, fields)
	return after, true, nil
}

// RequestSignature forwards a signature to the order's running flow. The
// position is checked against the stored slots first so unknown positions
// fail synchronously.
func (s *Service) RequestSignature(ctx context.Context, orderID string, position int, signedBy string) error {
	if strings.TrimSpace(signedBy) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidInput, domain.ErrActorRequired)
	}

	doc, err := s.store.LoadSignatureDocument(ctx, orderID)
	if err != nil {
		return err
	}
	if _, ok := doc.Slot(position); !ok {
		return fmt.Errorf("%w: position %d", domain.ErrSlotNotFound, position)
	}
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if want := domain.DocumentTypeForState(order.State); doc.Type != want {
		return fmt.Errorf("%w: order is %s, slots are for a %s", ErrSlotsOutOfDate, order.State, doc.Type)
	}

	signedAt := s.now().UTC()
	err = s.workflows.SignalWorkflow(ctx, s.WorkflowID(orderID), "", appTemporal.MarkSignedSignalName, appTemporal.MarkSignedSignal{
		Position: position,
		SignedBy: signedBy,
		SignedAt: &signedAt,
	})
	return flowSignalError(err)
}

func (s *Service) Close(ctx context.Context, orderID string, reason string, closedBy string) error {
	if _, err := s.store.GetOrder(ctx, orderID); err != nil {
		return err
	}
	err := s.workflows.SignalWorkflow(ctx, s.WorkflowID(orderID), "", appTemporal.CloseSignatureSignalName, appTemporal.CloseSignatureSignal{
		Reason:   reason,
		ClosedBy: closedBy,
	})
	return flowSignalError(err)
}

func (s *Service) Order(ctx context.Context, orderID string) (domain.OrderRecord, error) {
	return s.store.GetOrder(ctx, orderID)
}

func (s *Service) SignatureDocument(ctx context.Context, orderID string) (domain.Document, error) {
	return s.store.LoadSignatureDocument(ctx, orderID)
}

// PutCompanySigners stores the company signer settings. Running flows pick
// the new values up on their next order change.
func (s *Service) PutCompanySigners(ctx context.Context, signers domain.CompanySigners) error {
	if strings.TrimSpace(signers.CompanyID) == "" {
		return fmt.Errorf("%w: company id is required", ErrInvalidInput)
	}
	return s.store.UpsertCompanySigners(ctx, signers)
}

func (s *Service) CompanySigners(ctx context.Context, companyID string) (domain.CompanySigners, error) {
	return s.store.GetCompanySigners(ctx, companyID)
}

// checkSlots rebuilds the slots rec would get, keeping the stored signatures,
// without persisting them.
func (s *Service) checkSlots(ctx context.Context, rec domain.OrderRecord) error {
	company, err := s.store.GetCompanySigners(ctx, rec.CompanyID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load company signers: %w", err)
	}
	existing, err := s.store.LoadSignatureDocument(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("load signature slots: %w", err)
	}
	_, err = domain.Rebuild(domain.DocumentTypeForState(rec.State), domain.ParticipantsFor(rec, company), existing.Slots)
	return err
}

func (s *Service) startOptions(workflowID string) client.StartWorkflowOptions {
	return client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: s.cfg.TemporalTaskQueue,
	}
}

func flowSignalError(err error) error {
	if err == nil {
		return nil
	}
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return ErrFlowNotRunning
	}
	return err
}

func changedFields(before, after domain.OrderRecord) []string {
	var fields []string
	if before.State != after.State {
		fields = append(fields, "state")
	}
	if before.SalesPersonID != after.SalesPersonID {
		fields = append(fields, "user_id")
	}
	if before.PartnerID != after.PartnerID {
		fields = append(fields, "partner_id")
	}
	if before.CompanyID != after.CompanyID {
		fields = append(fields, "company_id")
	}
	return fields
}
