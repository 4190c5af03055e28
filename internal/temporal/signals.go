package temporal

import (
	"time"

	"sale-signature-flow/internal/domain"
)

const (
	OrderChangedSignalName   = "order-changed"
	MarkSignedSignalName     = "mark-signed"
	CloseSignatureSignalName = "close-signature-flow"

	SignatureStatusQueryName = "signature-status"
)

// OrderChangedSignal asks the flow to rebuild the slots from the stored order.
type OrderChangedSignal struct {
	Reason string `json:"reason,omitempty"`
}

type MarkSignedSignal struct {
	Position int        `json:"position"`
	SignedBy string     `json:"signedBy"`
	SignedAt *time.Time `json:"signedAt,omitempty"`
}

type CloseSignatureSignal struct {
	Reason   string `json:"reason,omitempty"`
	ClosedBy string `json:"closedBy,omitempty"`
}

// SignatureStatus is the answer to the signature-status query.
type SignatureStatus struct {
	OrderID       string          `json:"orderId"`
	Document      domain.Document `json:"document"`
	FullySigned   bool            `json:"fullySigned"`
	ArchivedKey   string          `json:"archivedKey,omitempty"`
	LastError     string          `json:"lastError,omitempty"`
	LastErrorKind string          `json:"lastErrorKind,omitempty"`
}
