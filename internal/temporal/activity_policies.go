package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"sale-signature-flow/internal/domain"
)

const (
	ActivityPolicySyncSignatureSlots    = "sync_signature_slots"
	ActivityPolicyRecordSignature       = "record_signature"
	ActivityPolicyArchiveSignedDocument = "archive_signed_document"
	ActivityPolicyCloseSignatureFlow    = "close_signature_flow"
)

const (
	errTypeOrderNotFound  = "order_not_found"
	errTypeSlotNotFound   = "slot_not_found"
	errTypeSlotsOutOfDate = "slots_out_of_date"
)

type activityPolicy struct {
	StartToCloseTimeout time.Duration
	RetryPolicy         temporal.RetryPolicy
}

// backoff doubles from initial up to maxInterval for at most attempts tries.
func backoff(timeout, initial, maxInterval time.Duration, attempts int32, nonRetryable ...string) activityPolicy {
	return activityPolicy{
		StartToCloseTimeout: timeout,
		RetryPolicy: temporal.RetryPolicy{
			InitialInterval:        initial,
			BackoffCoefficient:     2,
			MaximumInterval:        maxInterval,
			MaximumAttempts:        attempts,
			NonRetryableErrorTypes: nonRetryable,
		},
	}
}

// Store-bound steps fail fast on missing rows and rejected slot sets; the
// archive upload rides out longer object storage outages.
var activityPolicies = map[string]activityPolicy{
	ActivityPolicySyncSignatureSlots: backoff(time.Minute, time.Second, 10*time.Second, 3,
		errTypeOrderNotFound,
		string(domain.KindEmptyDocument),
		string(domain.KindOrdering),
		string(domain.KindMissingSigner),
		string(domain.KindStructuralMismatch),
	),
	ActivityPolicyRecordSignature: backoff(time.Minute, time.Second, 10*time.Second, 3,
		errTypeOrderNotFound,
		errTypeSlotNotFound,
		errTypeSlotsOutOfDate,
	),
	ActivityPolicyArchiveSignedDocument: backoff(2*time.Minute, 2*time.Second, 30*time.Second, 5),
	ActivityPolicyCloseSignatureFlow:    backoff(30*time.Second, time.Second, 10*time.Second, 3),
}

func ActivityOptionsFor(policyName string) (workflow.ActivityOptions, error) {
	policy, ok := activityPolicies[policyName]
	if !ok {
		return workflow.ActivityOptions{}, fmt.Errorf("unknown activity policy: %s", policyName)
	}

	retry := policy.RetryPolicy
	retry.NonRetryableErrorTypes = append([]string(nil), policy.RetryPolicy.NonRetryableErrorTypes...)
	return workflow.ActivityOptions{
		StartToCloseTimeout: policy.StartToCloseTimeout,
		RetryPolicy:         &retry,
	}, nil
}

func mustActivityContext(ctx workflow.Context, policyName string) workflow.Context {
	ao, err := ActivityOptionsFor(policyName)
	if err != nil {
		panic(err)
	}
	return workflow.WithActivityOptions(ctx, ao)
}
