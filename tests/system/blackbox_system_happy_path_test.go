//go:build system

package system_test

import (
	"context"
	"database/sql"
	"os"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"sale-signature-flow/internal/domain"
	appTemporal "sale-signature-flow/internal/temporal"
)

var _ = Describe("System blackbox happy path", Ordered, func() {
	var cfg systemTestConfig

	BeforeAll(func() {
		if os.Getenv("RUN_BLACKBOX_SYSTEM_TEST") != "1" {
			Skip("set RUN_BLACKBOX_SYSTEM_TEST=1 to run real blackbox system test")
		}

		cfg = loadSystemTestConfig()

		By("failing fast if api, worker or infrastructure is unreachable")
		Expect(preflight(cfg)).To(Succeed())
	})

	It("takes a quotation through confirmation and completes the sales order signatures", func() {
		suffix := uuid.NewString()[:8]
		companyID := "company-" + suffix

		By("configuring the company signers")
		Expect(putCompanySigners(cfg, companyID, domain.CompanySigners{
			QuotationApproverAID:      "approver-a",
			QuotationApproverBID:      "approver-b",
			SalesOrderCompanySignerID: "company-signer",
		})).To(Succeed())

		By("creating a draft order")
		created, err := createOrder(cfg, orderRequest{
			ID:            "so-" + suffix,
			SalesPersonID: "sales-1",
			PartnerID:     "customer-1",
			CompanyID:     companyID,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(created.OrderID).To(Equal("so-" + suffix))
		Expect(created.WorkflowID).ToNot(BeEmpty())

		currentSignatures := func() signaturesResponse {
			sigs, sigErr := getSignatures(cfg, created.OrderID)
			Expect(sigErr).ToNot(HaveOccurred())
			return sigs
		}

		By("waiting for the quotation slots")
		Eventually(currentSignatures, cfg.WorkflowTimeout, cfg.PollInterval).Should(
			HaveField("Document.Slots", HaveLen(3)))
		quotation := currentSignatures().Document
		Expect(quotation.Type).To(Equal(domain.DocumentTypeQuotation))
		Expect(quotation.Slots[0].SignerID).To(Equal("sales-1"))
		Expect(quotation.Slots[1].SignerID).To(Equal("approver-a"))
		Expect(quotation.Slots[2].SignerID).To(Equal("approver-b"))

		By("confirming the order")
		Expect(patchOrder(cfg, created.OrderID, `{"state":"sale"}`)).To(Succeed())
		Eventually(currentSignatures, cfg.WorkflowTimeout, cfg.PollInterval).Should(
			HaveField("Document.Type", Equal(domain.DocumentTypeSalesOrder)))
		Expect(currentSignatures().Document.Slots).To(HaveLen(2))

		By("signing both sales order slots")
		Expect(signSlot(cfg, created.OrderID, 1, "company-signer")).To(Succeed())
		Expect(signSlot(cfg, created.OrderID, 2, "customer-1")).To(Succeed())
		Eventually(currentSignatures, cfg.WorkflowTimeout, cfg.PollInterval).Should(
			HaveField("FullySigned", BeTrue()))

		signed := currentSignatures().Document
		Expect(signed.Slots[0].SignedBy).To(Equal("company-signer"))
		Expect(signed.Slots[1].SignedBy).To(Equal("customer-1"))

		By("reading the workflow result and history from Temporal")
		temporalClient, err := dialTemporal(cfg)
		Expect(err).ToNot(HaveOccurred())
		defer temporalClient.Close()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.WorkflowTimeout)
		defer cancel()

		var result appTemporal.WorkflowResult
		Expect(temporalClient.GetWorkflow(ctx, created.WorkflowID, "").Get(ctx, &result)).To(Succeed())
		Expect(result.Status).To(Equal(domain.FlowStatusCompleted))
		Expect(result.ArchivedKey).To(HavePrefix(created.OrderID + "/sales_order/"))

		history, err := readWorkflowHistory(ctx, temporalClient, created.WorkflowID)
		Expect(err).ToNot(HaveOccurred())
		Expect(history.Scheduled[0]).To(Equal("SyncSignatureSlotsActivity"))
		Expect(history.Completed).To(ContainElement("ArchiveSignedDocumentActivity"))
		Expect(history.Signals).To(ContainElements(appTemporal.OrderChangedSignalName, appTemporal.MarkSignedSignalName))

		var recordIn appTemporal.RecordSignatureInput
		Expect(history.firstInput("RecordSignatureActivity", &recordIn)).To(Succeed())
		Expect(recordIn.OrderID).To(Equal(created.OrderID))
		Expect(recordIn.Slot.Position).To(Equal(1))
		Expect(recordIn.Slot.SignedBy).To(Equal("company-signer"))

		By("verifying the audit trail and stored slots in Postgres")
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()

		events, err := fetchStringRows(db, `SELECT event FROM audit_log WHERE order_id = $1 ORDER BY id`, created.OrderID)
		Expect(err).ToNot(HaveOccurred())
		Expect(events).To(ContainElements(
			string(domain.AuditOrderCreated),
			string(domain.AuditOrderChanged),
			string(domain.AuditSlotsSynced),
			string(domain.AuditSlotSigned),
			string(domain.AuditDocumentSigned),
		))

		signedBy, err := fetchStringRows(db, `SELECT signed_by FROM signature_lines WHERE order_id = $1 ORDER BY position`, created.OrderID)
		Expect(err).ToNot(HaveOccurred())
		Expect(signedBy).To(Equal([]string{"company-signer", "customer-1"}))
	})
})
