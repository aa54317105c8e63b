package handlers

import (
	"github.com/gorilla/mux"
)

// RegisterBillingRoutes registers all billing-related routes
func RegisterBillingRoutes(h *Handler, r *mux.Router) {
	r.HandleFunc("/api/billing/plans", h.GetBillingPlans).Methods("GET")
	r.HandleFunc("/api/billing/subscription/user/{userId}", h.GetUserSubscription).Methods("GET")
	r.HandleFunc("/api/billing/subscription/user/{userId}", h.CreateSubscription).Methods("POST")
	r.HandleFunc("/api/billing/subscription/{id}/verify", h.VerifySubscription).Methods("PUT")
	r.HandleFunc("/api/billing/subscription/{id}", h.DeleteSubscription).Methods("DELETE")

	// Stripe webhook endpoint
	r.HandleFunc("/webhook/stripe", h.StripeWebhook).Methods("POST")
}
