package domain

import "time"

// Slot is one signature requirement on a document. Only Signed, SignedBy and
// SignedAt change after construction.
type Slot struct {
	Position int        `json:"position"`
	Role     Role       `json:"role"`
	Label    string     `json:"label"`
	SignerID string     `json:"userId"`
	Required bool       `json:"required"`
	Signed   bool       `json:"signed"`
	SignedBy string     `json:"signedBy,omitempty"`
	SignedAt *time.Time `json:"signedAt,omitempty"`
}

func NewSlot(position int, role Role, label string, signerID string) Slot {
	return Slot{
		Position: position,
		Role:     role,
		Label:    label,
		SignerID: signerID,
		Required: true,
	}
}

func (s Slot) ToMap() map[string]any {
	m := map[string]any{
		"position": s.Position,
		"role":     string(s.Role),
		"label":    s.Label,
		"userId":   s.SignerID,
		"required": s.Required,
		"signed":   s.Signed,
	}
	if s.Signed {
		m["signedBy"] = s.SignedBy
		if s.SignedAt != nil {
			m["signedAt"] = s.SignedAt.UTC().Format(time.RFC3339)
		}
	}
	return m
}

// Document owns an ordered slot sequence for one sales document.
type Document struct {
	Type  DocumentType `json:"documentType"`
	Slots []Slot       `json:"signatures"`
}

func NewDocument(docType DocumentType, slots []Slot) Document {
	return Document{Type: docType, Slots: cloneSlots(slots)}
}

// IsFullySigned is true when at least one slot is required and every
// required slot is signed.
func (d Document) IsFullySigned() bool {
	required := 0
	for _, s := range d.Slots {
		if !s.Required {
			continue
		}
		required++
		if !s.Signed {
			return false
		}
	}
	return required > 0
}

// Slot returns the slot stored at position.
func (d Document) Slot(position int) (Slot, bool) {
	for _, s := range d.Slots {
		if s.Position == position {
			return s, true
		}
	}
	return Slot{}, false
}

func (d Document) Clone() Document {
	return Document{Type: d.Type, Slots: cloneSlots(d.Slots)}
}

func (d Document) ToMap() map[string]any {
	signatures := make([]map[string]any, 0, len(d.Slots))
	for _, s := range d.Slots {
		signatures = append(signatures, s.ToMap())
	}
	return map[string]any{
		"documentType": string(d.Type),
		"signatures":   signatures,
	}
}

type Participants struct {
	SalesPersonID   string `json:"salesPersonId,omitempty"`
	ApproverAID     string `json:"approverAId,omitempty"`
	ApproverBID     string `json:"approverBId,omitempty"`
	CompanySignerID string `json:"companySignerId,omitempty"`
	CustomerID      string `json:"customerId,omitempty"`
}

func (p Participants) signerFor(role Role) string {
	switch role {
	case RoleSalesPerson:
		return p.SalesPersonID
	case RoleApproverA:
		return p.ApproverAID
	case RoleApproverB:
		return p.ApproverBID
	case RoleCompany:
		return p.CompanySignerID
	case RoleCustomer:
		return p.CustomerID
	default:
		return ""
	}
}

type OrderRecord struct {
	ID                    string       `json:"id"`
	State                 OrderState   `json:"state"`
	SalesPersonID         string       `json:"salesPersonId"`
	PartnerID             string       `json:"partnerId"`
	CompanyID             string       `json:"companyId"`
	SignatureDocumentType DocumentType `json:"signatureDocumentType,omitempty"`
}

// CompanySigners holds the company-wide signer settings used by the templates.
type CompanySigners struct {
	CompanyID                 string `json:"companyId"`
	QuotationApproverAID      string `json:"quotationApproverAId"`
	QuotationApproverBID      string `json:"quotationApproverBId"`
	SalesOrderCompanySignerID string `json:"salesOrderCompanySignerId"`
}

func ParticipantsFor(order OrderRecord, company CompanySigners) Participants {
	return Participants{
		SalesPersonID:   order.SalesPersonID,
		ApproverAID:     company.QuotationApproverAID,
		ApproverBID:     company.QuotationApproverBID,
		CompanySignerID: company.SalesOrderCompanySignerID,
		CustomerID:      order.PartnerID,
	}
}

// OrderChange carries new values for the fields that govern signer
// assignment. Nil fields are left untouched.
type OrderChange struct {
	State         *OrderState `json:"state,omitempty"`
	SalesPersonID *string     `json:"salesPersonId,omitempty"`
	PartnerID     *string     `json:"partnerId,omitempty"`
	CompanyID     *string     `json:"companyId,omitempty"`
}

// Apply returns the updated record and whether any tracked field changed.
func (c OrderChange) Apply(rec OrderRecord) (OrderRecord, bool) {
	changed := false
	if c.State != nil && *c.State != rec.State {
		rec.State = *c.State
		changed = true
	}
	if c.SalesPersonID != nil && *c.SalesPersonID != rec.SalesPersonID {
		rec.SalesPersonID = *c.SalesPersonID
		changed = true
	}
	if c.PartnerID != nil && *c.PartnerID != rec.PartnerID {
		rec.PartnerID = *c.PartnerID
		changed = true
	}
	if c.CompanyID != nil && *c.CompanyID != rec.CompanyID {
		rec.CompanyID = *c.CompanyID
		changed = true
	}
	return rec, changed
}

func cloneSlots(slots []Slot) []Slot {
	if slots == nil {
		return nil
	}
	out := make([]Slot, len(slots))
	for i, s := range slots {
		if s.SignedAt != nil {
			at := *s.SignedAt
			s.SignedAt = &at
		}
		out[i] = s
	}
	return out
}
