package domain

import "fmt"

type slotTemplate struct {
	Position int
	Role     Role
	Label    string
}

// slotTemplates is the fixed slot layout per document type. Stored data in
// the record store depends on these exact positions and role strings.
var slotTemplates = map[DocumentType][]slotTemplate{
	DocumentTypeQuotation: {
		{Position: 1, Role: RoleSalesPerson, Label: "Sales Person"},
		{Position: 2, Role: RoleApproverA, Label: "Approver 1"},
		{Position: 3, Role: RoleApproverB, Label: "Approver 2"},
	},
	DocumentTypeSalesOrder: {
		{Position: 1, Role: RoleCompany, Label: "Company"},
		{Position: 2, Role: RoleCustomer, Label: "Customer"},
	},
}

func BuildSlots(docType DocumentType, p Participants) ([]Slot, error) {
	tmpl, ok := slotTemplates[docType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocumentType, docType)
	}
	slots := make([]Slot, 0, len(tmpl))
	for _, t := range tmpl {
		slots = append(slots, NewSlot(t.Position, t.Role, t.Label, p.signerFor(t.Role)))
	}
	return slots, nil
}

func BuildQuotationSlots(salesPersonID, approverAID, approverBID string) []Slot {
	slots, _ := BuildSlots(DocumentTypeQuotation, Participants{
		SalesPersonID: salesPersonID,
		ApproverAID:   approverAID,
		ApproverBID:   approverBID,
	})
	return slots
}

func BuildSalesOrderSlots(companySignerID, customerID string) []Slot {
	slots, _ := BuildSlots(DocumentTypeSalesOrder, Participants{
		CompanySignerID: companySignerID,
		CustomerID:      customerID,
	})
	return slots
}

func BuildQuotationDocument(salesPersonID, approverAID, approverBID string) (Document, error) {
	doc := Document{Type: DocumentTypeQuotation, Slots: BuildQuotationSlots(salesPersonID, approverAID, approverBID)}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func BuildSalesOrderDocument(companySignerID, customerID string) (Document, error) {
	doc := Document{Type: DocumentTypeSalesOrder, Slots: BuildSalesOrderSlots(companySignerID, customerID)}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}
