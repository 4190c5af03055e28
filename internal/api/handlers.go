package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"k8s.io/klog/v2"

	"sale-signature-flow/internal/config"
	"sale-signature-flow/internal/domain"
	"sale-signature-flow/internal/orders"
	"sale-signature-flow/internal/storage"
)

type OrderService interface {
	CreateOrder(ctx context.Context, in orders.NewOrder) (orders.Created, error)
	ApplyChange(ctx context.Context, orderID string, change domain.OrderChange) (domain.OrderRecord, bool, error)
	RequestSignature(ctx context.Context, orderID string, position int, signedBy string) error
	Close(ctx context.Context, orderID string, reason string, closedBy string) error
	Order(ctx context.Context, orderID string) (domain.OrderRecord, error)
	SignatureDocument(ctx context.Context, orderID string) (domain.Document, error)
	PutCompanySigners(ctx context.Context, signers domain.CompanySigners) error
	CompanySigners(ctx context.Context, companyID string) (domain.CompanySigners, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	cfg    config.Config
	orders OrderService
	store  Pinger
}

type changeResponse struct {
	Order   domain.OrderRecord `json:"order"`
	Changed bool               `json:"changed"`
}

type signaturesResponse struct {
	OrderID     string         `json:"order_id"`
	Document    map[string]any `json:"document"`
	FullySigned bool           `json:"fully_signed"`
}

type signRequest struct {
	SignedBy string `json:"signed_by"`
}

type closeRequest struct {
	Reason   string `json:"reason,omitempty"`
	ClosedBy string `json:"closed_by,omitempty"`
}

type signersRequest struct {
	QuotationApproverAID      string `json:"quotationApproverAId"`
	QuotationApproverBID      string `json:"quotationApproverBId"`
	SalesOrderCompanySignerID string `json:"salesOrderCompanySignerId"`
}

func NewHandler(cfg config.Config, svc OrderService, store Pinger) *Handler {
	return &Handler{cfg: cfg, orders: svc, store: store}
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	var req orders.NewOrder
	if !h.decode(w, r, &req) {
		return
	}

	created, err := h.orders.CreateOrder(ctx, req)
	if err != nil {
		h.writeError(w, "create order", err)
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request, orderID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, err := h.orders.Order(ctx, orderID)
	if err != nil {
		h.writeError(w, "fetch order", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) PatchOrder(w http.ResponseWriter, r *http.Request, orderID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	var change domain.OrderChange
	if !h.decode(w, r, &change) {
		return
	}

	rec, changed, err := h.orders.ApplyChange(ctx, orderID, change)
	if err != nil {
		h.writeError(w, "update order", err)
		return
	}
	writeJSON(w, http.StatusOK, changeResponse{Order: rec, Changed: changed})
}

func (h *Handler) GetSignatures(w http.ResponseWriter, r *http.Request, orderID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	doc, err := h.orders.SignatureDocument(ctx, orderID)
	if err != nil {
		h.writeError(w, "fetch signatures", err)
		return
	}
	writeJSON(w, http.StatusOK, signaturesResponse{
		OrderID:     orderID,
		Document:    doc.ToMap(),
		FullySigned: doc.IsFullySigned(),
	})
}

func (h *Handler) SignSlot(w http.ResponseWriter, r *http.Request, orderID string, rawPosition string) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	position, err := strconv.Atoi(rawPosition)
	if err != nil || position < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "position must be a positive integer"})
		return
	}

	var req signRequest
	if !h.decode(w, r, &req) {
		return
	}

	// The signal is applied asynchronously by the order's signature flow.
	if err := h.orders.RequestSignature(ctx, orderID, position, req.SignedBy); err != nil {
		h.writeError(w, "sign slot", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"order_id": orderID,
		"position": position,
		"status":   "signature_signal_sent",
	})
}

func (h *Handler) CloseFlow(w http.ResponseWriter, r *http.Request, orderID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	var req closeRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	if err := h.orders.Close(ctx, orderID, req.Reason, req.ClosedBy); err != nil {
		h.writeError(w, "close signature flow", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"order_id": orderID, "status": "close_signal_sent"})
}

func (h *Handler) PutCompanySigners(w http.ResponseWriter, r *http.Request, companyID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req signersRequest
	if !h.decode(w, r, &req) {
		return
	}

	signers := domain.CompanySigners{
		CompanyID:                 companyID,
		QuotationApproverAID:      req.QuotationApproverAID,
		QuotationApproverBID:      req.QuotationApproverBID,
		SalesOrderCompanySignerID: req.SalesOrderCompanySignerID,
	}
	if err := h.orders.PutCompanySigners(ctx, signers); err != nil {
		h.writeError(w, "store company signers", err)
		return
	}
	writeJSON(w, http.StatusOK, signers)
}

func (h *Handler) GetCompanySigners(w http.ResponseWriter, r *http.Request, companyID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	signers, err := h.orders.CompanySigners(ctx, companyID)
	if err != nil {
		h.writeError(w, "fetch company signers", err)
		return
	}
	writeJSON(w, http.StatusOK, signers)
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decodeBody(w, r, dst, false)
}

// decodeOptional leaves dst untouched when the body is empty, whatever the
// request's Content-Length says.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decodeBody(w, r, dst, true)
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	limit := h.cfg.MaxBodyBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	body := http.MaxBytesReader(w, r.Body, limit)
	err := json.NewDecoder(body).Decode(dst)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
	return false
}

func (h *Handler) writeError(w http.ResponseWriter, action string, err error) {
	status, msg := classifyError(err)
	if status >= http.StatusInternalServerError {
		klog.Errorf("[api.Handler] %s failed: error=%v", action, err)
		msg = fmt.Sprintf("failed to %s", action)
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func classifyError(err error) (int, string) {
	var validation domain.ValidationError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrSlotNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, orders.ErrFlowNotRunning), errors.Is(err, orders.ErrSlotsOutOfDate):
		return http.StatusConflict, err.Error()
	case errors.Is(err, orders.ErrInvalidInput), errors.As(err, &validation):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
