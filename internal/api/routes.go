package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/orders", h.CreateOrder)
		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				h.GetOrder(w, r, chi.URLParam(r, "orderId"))
			})
			r.Patch("/", func(w http.ResponseWriter, r *http.Request) {
				h.PatchOrder(w, r, chi.URLParam(r, "orderId"))
			})
			r.Get("/signatures", func(w http.ResponseWriter, r *http.Request) {
				h.GetSignatures(w, r, chi.URLParam(r, "orderId"))
			})
			r.Post("/signatures/{position}/sign", func(w http.ResponseWriter, r *http.Request) {
				h.SignSlot(w, r, chi.URLParam(r, "orderId"), chi.URLParam(r, "position"))
			})
			r.Post("/close", func(w http.ResponseWriter, r *http.Request) {
				h.CloseFlow(w, r, chi.URLParam(r, "orderId"))
			})
		})
		r.Route("/companies/{companyId}/signers", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				h.GetCompanySigners(w, r, chi.URLParam(r, "companyId"))
			})
			r.Put("/", func(w http.ResponseWriter, r *http.Request) {
				h.PutCompanySigners(w, r, chi.URLParam(r, "companyId"))
			})
		})
	})

	return r
}
