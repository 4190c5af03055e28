package domain

type DocumentType string

const (
	DocumentTypeQuotation  DocumentType = "quotation"
	DocumentTypeSalesOrder DocumentType = "sales_order"
)

type Role string

const (
	RoleSalesPerson Role = "sales_person"
	RoleApproverA   Role = "approver_a"
	RoleApproverB   Role = "approver_b"
	RoleCompany     Role = "company"
	RoleCustomer    Role = "customer"
)

type OrderState string

const (
	OrderStateDraft  OrderState = "draft"
	OrderStateSent   OrderState = "sent"
	OrderStateSale   OrderState = "sale"
	OrderStateDone   OrderState = "done"
	OrderStateCancel OrderState = "cancel"
)

type AuditEvent string

const (
	AuditOrderCreated   AuditEvent = "ORDER_CREATED"
	AuditOrderChanged   AuditEvent = "ORDER_CHANGED"
	AuditSlotsSynced    AuditEvent = "SLOTS_SYNCED"
	AuditSlotsRejected  AuditEvent = "SLOTS_REJECTED"
	AuditSlotSigned     AuditEvent = "SLOT_SIGNED"
	AuditDocumentSigned AuditEvent = "DOCUMENT_SIGNED"
	AuditFlowClosed     AuditEvent = "FLOW_CLOSED"
)

type FlowStatus string

const (
	FlowStatusCompleted FlowStatus = "COMPLETED"
	FlowStatusClosed    FlowStatus = "CLOSED"
)

// DocumentTypeForState reports which signature template governs an order in
// the given state. Confirmed orders carry the sales order template; every other
// state, including cancel, keeps the quotation template.
func DocumentTypeForState(state OrderState) DocumentType {
	switch state {
	case OrderStateSale, OrderStateDone:
		return DocumentTypeSalesOrder
	default:
		return DocumentTypeQuotation
	}
}

func ValidOrderState(state OrderState) bool {
	switch state {
	case OrderStateDraft, OrderStateSent, OrderStateSale, OrderStateDone, OrderStateCancel:
		return true
	default:
		return false
	}
}

func ValidDocumentType(docType DocumentType) bool {
	_, ok := slotTemplates[docType]
	return ok
}
