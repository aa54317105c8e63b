package handlers

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/QuoteArtHQ/quoteart-backend/internal/models"
)

// Stripe client instance
var stripeClient *client.API

func initStripe() {
	if stripeClient != nil {
		return
	}

	secretKey := os.Getenv("STRIPE_SECRET_KEY")
	if secretKey == "" {
		log.Printf("[Billing] STRIPE_SECRET_KEY not set, Stripe features disabled")
		return
	}

	stripeClient = &client.API{}
	stripeClient.Init(secretKey, nil)
}

// requestUserID returns the caller identity set by the frontend session cookie.
func requestUserID(r *http.Request) string {
	if c, err := r.Cookie("qa_user"); err == nil {
		return c.Value
	}
	return ""
}

func isAdmin(r *http.Request) bool {
	c, err := r.Cookie("qa_role")
	return err == nil && c.Value == "admin"
}

// GetBillingPlans returns available billing plans
func (h *Handler) GetBillingPlans(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.Query(`
		SELECT id, name, description, price_cents, currency, interval, tier, is_active
		FROM public.billing_plans
		WHERE is_active = true
		ORDER BY price_cents ASC
	`)
	if err != nil {
		log.Printf("[Billing][Plans] query error: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	plans := []models.BillingPlan{}
	for rows.Next() {
		var p models.BillingPlan
		var desc sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &desc, &p.PriceCents, &p.Currency, &p.Interval, &p.Tier, &p.IsActive); err != nil {
			log.Printf("[Billing][Plans] scan error: %v", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if desc.Valid {
			p.Description = &desc.String
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		log.Printf("[Billing][Plans] rows error: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, plans)
}

// GetUserSubscription returns the subscription visible to the caller: the
// owner or an admin. The active row wins over newer pending checkouts; a
// lapsed or missing subscription reads as the free plan.
func (h *Handler) GetUserSubscription(w http.ResponseWriter, r *http.Request) {
	userID := pathVar(r, "userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if requestUserID(r) != userID && !isAdmin(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var sub models.Subscription
	var txID sql.NullString
	var periodEnd sql.NullTime
	err := h.db.QueryRow(`
		SELECT id, user_id, plan_id, tier, status, transaction_id, amount_cents, currency,
		       current_period_end, created_at, updated_at
		FROM public.subscriptions
		WHERE user_id = $1
		ORDER BY (status = 'active') DESC, created_at DESC
		LIMIT 1
	`, userID).Scan(&sub.ID, &sub.UserID, &sub.PlanID, &sub.Tier, &sub.Status, &txID,
		&sub.AmountCents, &sub.Currency, &periodEnd, &sub.CreatedAt, &sub.UpdatedAt)

	if err == sql.ErrNoRows {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"planId":   "free",
			"tier":     "free",
			"status":   models.SubStatusActive,
			"isActive": true,
		})
		return
	}
	if err != nil {
		log.Printf("[Billing][Subscription] query error userId=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if txID.Valid {
		sub.TransactionID = &txID.String
	}
	if periodEnd.Valid {
		t := periodEnd.Time
		sub.CurrentPeriodEnd = &t
	}

	// Lapsed subscriptions are reported as free without mutating the row; the
	// stored record stays for billing history.
	lapsed := sub.Status == models.SubStatusCanceled ||
		sub.Status == models.SubStatusExpired ||
		sub.Status == models.SubStatusRejected ||
		(sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.Before(time.Now()))
	if lapsed {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"planId":       "free",
			"tier":         "free",
			"status":       sub.Status,
			"isActive":     false,
			"subscription": sub,
		})
		return
	}

	writeJSON(w, http.StatusOK, sub)
}

// CreateSubscription creates or upgrades the caller's subscription. The free
// plan activates immediately; paid plans open a Stripe PaymentIntent and park
// the subscription in pending until payment confirmation (webhook or admin).
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	userID := pathVar(r, "userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if requestUserID(r) != userID && !isAdmin(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req struct {
		PlanID string `json:"planId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PlanID == "" {
		writeError(w, http.StatusBadRequest, "planId is required")
		return
	}

	if req.PlanID == "free" {
		if err := h.activateFreePlan(userID); err != nil {
			log.Printf("[Billing][CreateSubscription] free plan error userId=%s: %v", userID, err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": models.SubStatusActive, "planId": "free"})
		return
	}

	var plan models.BillingPlan
	err := h.db.QueryRow(`
		SELECT id, name, price_cents, currency, tier
		FROM public.billing_plans
		WHERE id = $1 AND is_active = true
	`, req.PlanID).Scan(&plan.ID, &plan.Name, &plan.PriceCents, &plan.Currency, &plan.Tier)
	if err != nil {
		log.Printf("[Billing][CreateSubscription] plan lookup error userId=%s planId=%s: %v", userID, req.PlanID, err)
		writeError(w, http.StatusBadRequest, "Invalid plan")
		return
	}

	initStripe()
	if stripeClient == nil {
		writeError(w, http.StatusServiceUnavailable, "Stripe not configured")
		return
	}

	pi, err := stripeClient.PaymentIntents.New(&stripe.PaymentIntentParams{
		Amount:   stripe.Int64(plan.PriceCents),
		Currency: stripe.String(plan.Currency),
		Params: stripe.Params{
			Metadata: map[string]string{
				"user_id": userID,
				"plan_id": plan.ID,
			},
		},
	})
	if err != nil {
		log.Printf("[Billing][CreateSubscription] payment intent error userId=%s planId=%s: %v", userID, plan.ID, err)
		writeError(w, http.StatusBadGateway, "payment_provider_error")
		return
	}

	// The provider order id doubles as the transaction id so the webhook can
	// find the pending row later.
	var subID string
	err = h.db.QueryRow(`
		INSERT INTO public.subscriptions
		  (id, user_id, plan_id, tier, status, transaction_id, amount_cents, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7, NOW(), NOW())
		RETURNING id
	`, randHex(16), userID, plan.ID, plan.Tier, pi.ID, plan.PriceCents, plan.Currency).Scan(&subID)
	if err != nil {
		log.Printf("[Billing][CreateSubscription] insert error userId=%s planId=%s: %v", userID, plan.ID, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Printf("[Billing][CreateSubscription] pending userId=%s planId=%s paymentIntent=%s", userID, plan.ID, pi.ID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"subscriptionId": subID,
		"status":         models.SubStatusPending,
		"transactionId":  pi.ID,
		"clientSecret":   pi.ClientSecret,
	})
}

func (h *Handler) activateFreePlan(userID string) error {
	res, err := h.db.Exec(`
		UPDATE public.subscriptions
		   SET plan_id = 'free', tier = 'free', amount_cents = 0, updated_at = NOW()
		 WHERE user_id = $1 AND status = 'active'
	`, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = h.db.Exec(`
		INSERT INTO public.subscriptions
		  (id, user_id, plan_id, tier, status, amount_cents, currency, created_at, updated_at)
		VALUES ($1, $2, 'free', 'free', 'active', 0, 'usd', NOW(), NOW())
	`, randHex(16), userID)
	return err
}

// VerifySubscription is the admin decision on a pending subscription:
// activate grants the plan, reject refuses it. Activation expires any
// previously active subscription first so the one-active-per-user index holds.
func (h *Handler) VerifySubscription(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		writeError(w, http.StatusForbidden, "admin_only")
		return
	}

	id := pathVar(r, "id")
	var req struct {
		Action string `json:"action"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch req.Action {
	case "activate":
		if err := h.activatePendingSubscription(id); err != nil {
			if err == sql.ErrNoRows {
				writeError(w, http.StatusNotFound, "pending_subscription_not_found")
				return
			}
			log.Printf("[Billing][Verify] activate error id=%s: %v", id, err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": models.SubStatusActive})
	case "reject":
		res, err := h.db.Exec(`
			UPDATE public.subscriptions
			   SET status = 'rejected', updated_at = NOW()
			 WHERE id = $1 AND status = 'pending'
		`, id)
		if err != nil {
			log.Printf("[Billing][Verify] reject error id=%s: %v", id, err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if n, _ := res.RowsAffected(); n == 0 {
			writeError(w, http.StatusNotFound, "pending_subscription_not_found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": models.SubStatusRejected})
	default:
		writeError(w, http.StatusBadRequest, "invalid_action")
	}
}

func (h *Handler) activatePendingSubscription(id string) error {
	tx, err := h.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var userID string
	if err := tx.QueryRow(`
		SELECT user_id FROM public.subscriptions WHERE id = $1 AND status = 'pending'
	`, id).Scan(&userID); err != nil {
		return err
	}

	// The partial unique index allows one active row per user, so the old
	// active subscription expires before the pending one activates.
	if _, err := tx.Exec(`
		UPDATE public.subscriptions
		   SET status = 'expired', updated_at = NOW()
		 WHERE user_id = $1 AND status = 'active'
	`, userID); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		UPDATE public.subscriptions
		   SET status = 'active',
		       current_period_end = NOW() + INTERVAL '1 month',
		       updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'
	`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteSubscription removes a subscription record. Admin-only.
func (h *Handler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		writeError(w, http.StatusForbidden, "admin_only")
		return
	}

	id := pathVar(r, "id")
	res, err := h.db.Exec(`DELETE FROM public.subscriptions WHERE id = $1`, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeError(w, http.StatusNotFound, "Subscription not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// StripeWebhook confirms or refuses pending subscriptions from payment events.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read_error")
		return
	}

	webhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	var event stripe.Event
	if webhookSecret != "" {
		event, err = webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), webhookSecret)
		if err != nil {
			log.Printf("[Billing][Webhook] signature verification failed: %v", err)
			writeError(w, http.StatusBadRequest, "invalid_signature")
			return
		}
	} else if err := json.Unmarshal(payload, &event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload")
		return
	}

	switch event.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			log.Printf("[Billing][Webhook] payment_intent parse error: %v", err)
			break
		}
		var subID string
		if err := h.db.QueryRow(`
			SELECT id FROM public.subscriptions WHERE transaction_id = $1 AND status = 'pending'
		`, pi.ID).Scan(&subID); err != nil {
			log.Printf("[Billing][Webhook] no pending subscription for paymentIntent=%s: %v", pi.ID, err)
			break
		}
		if err := h.activatePendingSubscription(subID); err != nil {
			log.Printf("[Billing][Webhook] activate error subscriptionId=%s: %v", subID, err)
			break
		}
		log.Printf("[Billing][Webhook] activated subscriptionId=%s paymentIntent=%s", subID, pi.ID)
	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			log.Printf("[Billing][Webhook] payment_intent parse error: %v", err)
			break
		}
		if _, err := h.db.Exec(`
			UPDATE public.subscriptions
			   SET status = 'rejected', updated_at = NOW()
			 WHERE transaction_id = $1 AND status = 'pending'
		`, pi.ID); err != nil {
			log.Printf("[Billing][Webhook] reject error paymentIntent=%s: %v", pi.ID, err)
		}
	default:
		log.Printf("[Billing][Webhook] ignored event type=%s", event.Type)
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
