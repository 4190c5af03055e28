package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"k8s.io/klog/v2"

	"sale-signature-flow/internal/domain"
	"sale-signature-flow/internal/orders"
	"sale-signature-flow/internal/storage"
)

var errMalformedChange = errors.New("malformed order change")

type ObjectReader interface {
	GetObject(ctx context.Context, objectKey string) ([]byte, error)
}

type ChangeApplier interface {
	ApplyChange(ctx context.Context, orderID string, change domain.OrderChange) (domain.OrderRecord, bool, error)
}

// ChangeHandler turns exported order change objects into order updates.
type ChangeHandler struct {
	Objects ObjectReader
	Orders  ChangeApplier
}

// Handle applies the change carried by event. Exports that can never be
// applied are logged and skipped; transient failures stop the stream.
func (h *ChangeHandler) Handle(ctx context.Context, event OrderChangeEvent) error {
	data, err := h.Objects.GetObject(ctx, event.ObjectKey)
	if err != nil {
		return fmt.Errorf("read order change %s: %w", event.ObjectKey, err)
	}

	change, err := decodeOrderChange(data)
	if err == nil {
		var changed bool
		_, changed, err = h.Orders.ApplyChange(ctx, event.OrderID, change)
		if err == nil {
			klog.V(2).Infof("[events.Handle] order change applied: orderID=%s, object=%s, changed=%t", event.OrderID, event.ObjectKey, changed)
			return nil
		}
	}

	if _, rejected := domain.KindOf(err); rejected ||
		errors.Is(err, errMalformedChange) || errors.Is(err, orders.ErrInvalidInput) || errors.Is(err, storage.ErrNotFound) {
		klog.Warningf("[events.Handle] skipping order change: orderID=%s, object=%s, error=%v", event.OrderID, event.ObjectKey, err)
		return nil
	}
	return fmt.Errorf("apply order change %s: %w", event.ObjectKey, err)
}

func decodeOrderChange(data []byte) (domain.OrderChange, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var change domain.OrderChange
	if err := dec.Decode(&change); err != nil {
		return domain.OrderChange{}, fmt.Errorf("%w: %v", errMalformedChange, err)
	}
	return change, nil
}
