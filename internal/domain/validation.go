package domain

import "strings"

const (
	RuleDocumentTypeKnown          = "document.type_known"
	RulePositionsContiguous        = "document.positions_contiguous"
	RuleQuotationSlotCount         = "quotation.slot_count"
	RuleQuotationSlot1SalesPerson  = "quotation.slot1_sales_person"
	RuleQuotationApproverRole      = "quotation.slot_approver_role"
	RuleQuotationApproversDistinct = "quotation.approvers_distinct"
	RuleSalesOrderSlotCount        = "sales_order.slot_count"
	RuleSalesOrderSlot1Company     = "sales_order.slot1_company"
	RuleSalesOrderSlot2Customer    = "sales_order.slot2_customer"
)

// Validate checks the slot list against the fixed template of its document
// type. Rules run in a fixed order and the first failure is returned:
// empty, ordering, missing signer, structure. The document is not modified.
func (d Document) Validate() error {
	if len(d.Slots) == 0 {
		return &EmptyDocumentError{DocumentType: d.Type}
	}

	for i := 1; i < len(d.Slots); i++ {
		if d.Slots[i].Position <= d.Slots[i-1].Position {
			return &OrderingError{Index: i, Position: d.Slots[i].Position, Previous: d.Slots[i-1].Position}
		}
	}

	for _, s := range d.Slots {
		if s.Required && strings.TrimSpace(s.SignerID) == "" {
			return &MissingSignerError{Position: s.Position, Role: s.Role}
		}
	}

	return d.validateStructure()
}

func (d Document) validateStructure() error {
	tmpl, ok := slotTemplates[d.Type]
	if !ok {
		return &StructuralMismatchError{DocumentType: d.Type, Rule: RuleDocumentTypeKnown}
	}

	if len(d.Slots) != len(tmpl) {
		rule := RuleQuotationSlotCount
		if d.Type == DocumentTypeSalesOrder {
			rule = RuleSalesOrderSlotCount
		}
		return &StructuralMismatchError{DocumentType: d.Type, Rule: rule}
	}

	for i, s := range d.Slots {
		if s.Position != i+1 {
			return d.mismatch(RulePositionsContiguous, s)
		}
	}

	switch d.Type {
	case DocumentTypeQuotation:
		if d.Slots[0].Role != RoleSalesPerson {
			return d.mismatch(RuleQuotationSlot1SalesPerson, d.Slots[0])
		}
		for _, s := range d.Slots[1:] {
			if s.Role != RoleApproverA && s.Role != RoleApproverB {
				return d.mismatch(RuleQuotationApproverRole, s)
			}
		}
		if d.Slots[1].Role == d.Slots[2].Role {
			return d.mismatch(RuleQuotationApproversDistinct, d.Slots[2])
		}
	case DocumentTypeSalesOrder:
		if d.Slots[0].Role != RoleCompany {
			return d.mismatch(RuleSalesOrderSlot1Company, d.Slots[0])
		}
		if d.Slots[1].Role != RoleCustomer {
			return d.mismatch(RuleSalesOrderSlot2Customer, d.Slots[1])
		}
	}
	return nil
}

func (d Document) mismatch(rule string, s Slot) *StructuralMismatchError {
	return &StructuralMismatchError{DocumentType: d.Type, Rule: rule, Position: s.Position, Role: s.Role}
}
