package temporal

import (
	"errors"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"sale-signature-flow/internal/domain"
)

const SignatureFlowWorkflowName = "SignatureFlowWorkflow"

// maxSignalsPerRun bounds the signals one run handles before it continues
// as new with a fresh history.
var maxSignalsPerRun = 1000

type WorkflowInput struct {
	OrderID string

	// Carried over when a run continues as new so a document that was
	// already archived is not archived again.
	DocumentType domain.DocumentType `json:",omitempty"`
	FullySigned  bool                `json:",omitempty"`
	ArchivedKey  string              `json:",omitempty"`
}

type WorkflowResult struct {
	OrderID     string
	Status      domain.FlowStatus
	Document    domain.Document
	ArchivedKey string
}

// SignatureFlowWorkflow owns the signature slots of one order. Slot rebuilds
// and signatures arrive as signals and are applied one at a time.
func SignatureFlowWorkflow(ctx workflow.Context, input WorkflowInput) (WorkflowResult, error) {
	logger := workflow.GetLogger(ctx)

	status := SignatureStatus{
		OrderID:     input.OrderID,
		Document:    domain.Document{Type: input.DocumentType},
		FullySigned: input.FullySigned,
		ArchivedKey: input.ArchivedKey,
	}
	if err := workflow.SetQueryHandler(ctx, SignatureStatusQueryName, func() (SignatureStatus, error) {
		out := status
		out.Document = status.Document.Clone()
		return out, nil
	}); err != nil {
		return WorkflowResult{}, err
	}

	ctxSync := mustActivityContext(ctx, ActivityPolicySyncSignatureSlots)
	ctxRecord := mustActivityContext(ctx, ActivityPolicyRecordSignature)
	ctxArchive := mustActivityContext(ctx, ActivityPolicyArchiveSignedDocument)
	ctxClose := mustActivityContext(ctx, ActivityPolicyCloseSignatureFlow)

	setErr := func(err error) {
		status.LastError, status.LastErrorKind = describeError(err)
		logger.Warn("signature flow step failed", "OrderID", input.OrderID, "Error", status.LastError)
	}
	clearErr := func() {
		status.LastError, status.LastErrorKind = "", ""
	}

	// syncFailed holds while the stored slots may lag behind the order.
	syncFailed := false
	syncSlots := func(reason string) {
		var out SyncSignatureSlotsOutput
		if err := workflow.ExecuteActivity(ctxSync, (*Activities).SyncSignatureSlotsActivity, SyncSignatureSlotsInput{
			OrderID: input.OrderID,
			Reason:  reason,
		}).Get(ctx, &out); err != nil {
			syncFailed = true
			setErr(err)
			return
		}
		syncFailed = false
		if out.Document.Type != status.Document.Type {
			status.FullySigned = false
		}
		status.Document = out.Document
		clearErr()
	}

	// archiveIfSigned archives the document on a transition to fully signed
	// and reports whether the flow is finished.
	archiveIfSigned := func() bool {
		fully := status.Document.IsFullySigned()
		if !fully {
			status.FullySigned = false
			return false
		}
		if status.FullySigned {
			return false
		}
		var out ArchiveSignedDocumentOutput
		if err := workflow.ExecuteActivity(ctxArchive, (*Activities).ArchiveSignedDocumentActivity, ArchiveSignedDocumentInput{
			OrderID:  input.OrderID,
			Document: status.Document,
		}).Get(ctx, &out); err != nil {
			setErr(err)
			return false
		}
		status.FullySigned = true
		status.ArchivedKey = out.ObjectKey
		logger.Info("document fully signed", "OrderID", input.OrderID, "DocumentType", status.Document.Type)
		return status.Document.Type == domain.DocumentTypeSalesOrder
	}

	result := func(flowStatus domain.FlowStatus) WorkflowResult {
		return WorkflowResult{
			OrderID:     input.OrderID,
			Status:      flowStatus,
			Document:    status.Document,
			ArchivedKey: status.ArchivedKey,
		}
	}

	syncSlots("flow started")
	if archiveIfSigned() {
		return result(domain.FlowStatusCompleted), nil
	}

	changedCh := workflow.GetSignalChannel(ctx, OrderChangedSignalName)
	signCh := workflow.GetSignalChannel(ctx, MarkSignedSignalName)
	closeCh := workflow.GetSignalChannel(ctx, CloseSignatureSignalName)

	var closed *CloseSignatureSignal
	done := false
	handled := 0

	selector := workflow.NewSelector(ctx)
	selector.AddReceive(changedCh, func(c workflow.ReceiveChannel, _ bool) {
		var sig OrderChangedSignal
		c.Receive(ctx, &sig)
		handled++
		syncSlots(sig.Reason)
		done = archiveIfSigned()
	})
	selector.AddReceive(signCh, func(c workflow.ReceiveChannel, _ bool) {
		var sig MarkSignedSignal
		c.Receive(ctx, &sig)
		handled++

		at := workflow.Now(ctx)
		if sig.SignedAt != nil {
			at = *sig.SignedAt
		}
		before, _ := status.Document.Slot(sig.Position)
		signed, err := domain.MarkSigned(status.Document, sig.Position, sig.SignedBy, at)
		if err != nil {
			setErr(err)
			return
		}
		if before.Signed {
			if !syncFailed {
				clearErr()
			}
			return
		}
		slot, _ := signed.Slot(sig.Position)
		if err := workflow.ExecuteActivity(ctxRecord, (*Activities).RecordSignatureActivity, RecordSignatureInput{
			OrderID: input.OrderID,
			Slot:    slot,
		}).Get(ctx, nil); err != nil {
			setErr(err)
			return
		}
		status.Document = signed
		clearErr()
		done = archiveIfSigned()
	})
	selector.AddReceive(closeCh, func(c workflow.ReceiveChannel, _ bool) {
		var sig CloseSignatureSignal
		c.Receive(ctx, &sig)
		closed = &sig
	})

	for !done && closed == nil {
		if !selector.HasPending() && (handled >= maxSignalsPerRun || workflow.GetInfo(ctx).GetContinueAsNewSuggested()) {
			logger.Info("continuing signature flow as new", "OrderID", input.OrderID, "Signals", handled)
			return WorkflowResult{}, workflow.NewContinueAsNewError(ctx, SignatureFlowWorkflowName, WorkflowInput{
				OrderID:      input.OrderID,
				DocumentType: status.Document.Type,
				FullySigned:  status.FullySigned,
				ArchivedKey:  status.ArchivedKey,
			})
		}
		selector.Select(ctx)
	}

	if closed != nil {
		if err := workflow.ExecuteActivity(ctxClose, (*Activities).CloseSignatureFlowActivity, CloseSignatureFlowInput{
			OrderID:  input.OrderID,
			Reason:   closed.Reason,
			ClosedBy: closed.ClosedBy,
		}).Get(ctx, nil); err != nil {
			return WorkflowResult{}, err
		}
		return result(domain.FlowStatusClosed), nil
	}
	return result(domain.FlowStatusCompleted), nil
}

func describeError(err error) (string, string) {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Error(), appErr.Type()
	}
	if kind, ok := domain.KindOf(err); ok {
		return err.Error(), string(kind)
	}
	switch {
	case errors.Is(err, domain.ErrSlotNotFound):
		return err.Error(), errTypeSlotNotFound
	case errors.Is(err, domain.ErrActorRequired):
		return err.Error(), "actor_required"
	}
	return err.Error(), ""
}
