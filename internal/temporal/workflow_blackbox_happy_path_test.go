package temporal

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/testsuite"

	"sale-signature-flow/internal/domain"
)

type activityTrace struct {
	mu sync.Mutex

	startedOrder   []string
	completedOrder []string

	syncIn    *SyncSignatureSlotsInput
	syncOut   *SyncSignatureSlotsOutput
	recordIn  []RecordSignatureInput
	archiveIn *ArchiveSignedDocumentInput
}

func (t *activityTrace) recordStarted(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startedOrder = append(t.startedOrder, name)
}

func (t *activityTrace) recordCompleted(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completedOrder = append(t.completedOrder, name)
}

func registerSignatureFlow(env *testsuite.TestWorkflowEnvironment, acts *Activities) {
	env.RegisterWorkflow(SignatureFlowWorkflow)
	env.RegisterActivity(acts.SyncSignatureSlotsActivity)
	env.RegisterActivity(acts.RecordSignatureActivity)
	env.RegisterActivity(acts.ArchiveSignedDocumentActivity)
	env.RegisterActivity(acts.CloseSignatureFlowActivity)
}

var _ = Describe("SignatureFlowWorkflow blackbox happy path", func() {
	It("builds the sales order slots, records both signatures, archives and completes", func() {
		var suite testsuite.WorkflowTestSuite
		env := suite.NewTestWorkflowEnvironment()

		store := newFakeStore()
		store.putOrder(domain.OrderRecord{ID: "so-1", State: domain.OrderStateSale, SalesPersonID: "u-sales", PartnerID: "p-1", CompanyID: "c-1"})
		store.putCompany(domain.CompanySigners{CompanyID: "c-1", SalesOrderCompanySignerID: "s-1"})
		archive := newFakeArchive()
		acts := &Activities{Store: store, Archive: archive}

		trace := &activityTrace{}

		env.SetOnActivityStartedListener(func(info *activity.Info, _ context.Context, args converter.EncodedValues) {
			trace.recordStarted(info.ActivityType.Name)

			switch info.ActivityType.Name {
			case "SyncSignatureSlotsActivity":
				var in SyncSignatureSlotsInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.syncIn = &in
				trace.mu.Unlock()
			case "RecordSignatureActivity":
				var in RecordSignatureInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.recordIn = append(trace.recordIn, in)
				trace.mu.Unlock()
			case "ArchiveSignedDocumentActivity":
				var in ArchiveSignedDocumentInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.archiveIn = &in
				trace.mu.Unlock()
			}
		})

		env.SetOnActivityCompletedListener(func(info *activity.Info, result converter.EncodedValue, _ error) {
			trace.recordCompleted(info.ActivityType.Name)

			if info.ActivityType.Name == "SyncSignatureSlotsActivity" {
				var out SyncSignatureSlotsOutput
				_ = result.Get(&out)
				trace.mu.Lock()
				trace.syncOut = &out
				trace.mu.Unlock()
			}
		})

		registerSignatureFlow(env, acts)

		companySignedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		customerSignedAt := time.Date(2026, 3, 2, 11, 30, 0, 0, time.UTC)

		var midway SignatureStatus

		By("signing the company slot, checking progress, then signing the customer slot")
		env.RegisterDelayedCallback(func() {
			env.SignalWorkflow(MarkSignedSignalName, MarkSignedSignal{Position: 1, SignedBy: "s-1", SignedAt: &companySignedAt})
		}, time.Second)
		env.RegisterDelayedCallback(func() {
			val, err := env.QueryWorkflow(SignatureStatusQueryName)
			Expect(err).ToNot(HaveOccurred())
			Expect(val.Get(&midway)).To(Succeed())
		}, 2*time.Second)
		env.RegisterDelayedCallback(func() {
			env.SignalWorkflow(MarkSignedSignalName, MarkSignedSignal{Position: 2, SignedBy: "p-1", SignedAt: &customerSignedAt})
		}, 3*time.Second)

		By("triggering the workflow execution")
		env.ExecuteWorkflow(SignatureFlowWorkflow, WorkflowInput{OrderID: "so-1"})

		By("validating workflow completes successfully")
		Expect(env.IsWorkflowCompleted()).To(BeTrue())
		Expect(env.GetWorkflowError()).ToNot(HaveOccurred())

		var wfResult WorkflowResult
		Expect(env.GetWorkflowResult(&wfResult)).To(Succeed())
		Expect(wfResult.OrderID).To(Equal("so-1"))
		Expect(wfResult.Status).To(Equal(domain.FlowStatusCompleted))
		Expect(wfResult.Document.IsFullySigned()).To(BeTrue())
		Expect(wfResult.ArchivedKey).To(Equal("so-1/sales_order/20260302T113000Z.json"))

		By("validating the intermediate query answer")
		Expect(midway.OrderID).To(Equal("so-1"))
		Expect(midway.FullySigned).To(BeFalse())
		Expect(midway.LastError).To(BeEmpty())
		Expect(midway.Document.Slots).To(HaveLen(2))
		Expect(midway.Document.Slots[0].Signed).To(BeTrue())
		Expect(midway.Document.Slots[1].Signed).To(BeFalse())

		By("validating each activity input and output")
		Expect(trace.startedOrder).To(Equal([]string{
			"SyncSignatureSlotsActivity",
			"RecordSignatureActivity",
			"RecordSignatureActivity",
			"ArchiveSignedDocumentActivity",
		}))
		Expect(trace.completedOrder).To(Equal(trace.startedOrder))

		Expect(trace.syncIn).ToNot(BeNil())
		Expect(trace.syncIn.OrderID).To(Equal("so-1"))
		Expect(trace.syncOut).ToNot(BeNil())
		Expect(trace.syncOut.Document.Type).To(Equal(domain.DocumentTypeSalesOrder))
		Expect(trace.syncOut.Document.Slots[0].SignerID).To(Equal("s-1"))
		Expect(trace.syncOut.Document.Slots[1].SignerID).To(Equal("p-1"))

		Expect(trace.recordIn).To(HaveLen(2))
		Expect(trace.recordIn[0].Slot.Position).To(Equal(1))
		Expect(trace.recordIn[0].Slot.SignedBy).To(Equal("s-1"))
		Expect(trace.recordIn[1].Slot.Position).To(Equal(2))
		Expect(trace.recordIn[1].Slot.SignedAt.Equal(customerSignedAt)).To(BeTrue())

		Expect(trace.archiveIn).ToNot(BeNil())
		Expect(trace.archiveIn.Document.IsFullySigned()).To(BeTrue())

		By("validating persisted side effects")
		stored := store.storedDocument("so-1")
		Expect(stored.IsFullySigned()).To(BeTrue())
		Expect(store.auditEvents("so-1")).To(Equal([]domain.AuditEvent{
			domain.AuditSlotsSynced,
			domain.AuditSlotSigned,
			domain.AuditSlotSigned,
			domain.AuditDocumentSigned,
		}))
		Expect(archive.keys()).To(ConsistOf("so-1/sales_order/20260302T113000Z.json"))
	})
})
