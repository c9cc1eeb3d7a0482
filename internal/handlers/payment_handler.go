package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"

	"github.com/songsmith/backend/internal/config"
	"github.com/songsmith/backend/internal/middleware"
	"github.com/songsmith/backend/internal/services"
)

// PaymentHandler exposes the purchase flow over HTTP: checkout opens a
// session, the webhook and return endpoints both feed the same reconciler.
type PaymentHandler struct {
	service       *services.PaymentService
	gatewayCfg    *config.GatewayConfig
	statusPageURL string
	validator     *services.ValidationHelper
}

func NewPaymentHandler(service *services.PaymentService, gatewayCfg *config.GatewayConfig, statusPageURL string) *PaymentHandler {
	return &PaymentHandler{
		service:       service,
		gatewayCfg:    gatewayCfg,
		statusPageURL: statusPageURL,
		validator:     services.NewValidationHelper(),
	}
}

// Checkout opens a payment session for a credit package
// @Summary Start a credit purchase
// @Description Open a payment session and return the gateway redirect URL with a QR code
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{packageId=string} true "Checkout request"
// @Success 201 {object} object{reference=string,redirectUrl=string,qrImage=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /payments/checkout [post]
func (h *PaymentHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		PackageID string `json:"packageId" validate:"required"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.service.OpenSession(r.Context(), userID, req.PackageID)
	if err != nil {
		if err == services.ErrUnknownPackage {
			services.SendErrorResponse(w, "Unknown credit package", http.StatusBadRequest, nil)
			return
		}
		log.Printf("[PAYMENT] Checkout failed for user %d: %v", userID, err)
		services.SendErrorResponse(w, "Failed to start payment", http.StatusBadGateway, nil)
		return
	}

	// QR of the redirect URL lets a desktop user finish the purchase in the
	// wallet app on their phone.
	qrImage, err := encodeQRImage(result.RedirectURL)
	if err != nil {
		log.Printf("[PAYMENT] QR generation failed for %s: %v", result.Reference, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"reference":   result.Reference,
		"redirectUrl": result.RedirectURL,
		"qrImage":     qrImage,
	})
}

// Webhook receives gateway payment notifications
// @Summary Gateway webhook
// @Description Receive a signed payment notification and reconcile the session
// @Tags payments
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer HMAC signature of the raw body"
// @Success 200 {object} object{outcome=string}
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /payments/webhook [post]
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	// Signature first. A notification that fails verification must cause no
	// state change at all, so nothing below runs until this passes.
	signature := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !services.VerifyWebhookSignature(body, signature, []byte(h.gatewayCfg.WebhookSecret)) {
		log.Printf("[PAYMENT] Webhook signature rejected from %s", r.RemoteAddr)
		services.SendErrorResponse(w, "Invalid signature", http.StatusUnauthorized, nil)
		return
	}

	var payload struct {
		Reference string `json:"reference"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Reference == "" {
		services.SendErrorResponse(w, "Invalid payload", http.StatusBadRequest, nil)
		return
	}

	outcome, err := h.service.Reconcile(r.Context(), payload.Reference)
	if err != nil {
		if err == services.ErrUnknownReference {
			services.SendErrorResponse(w, "Unknown reference", http.StatusNotFound, nil)
			return
		}
		// The notification will be redelivered; reconciliation is idempotent
		// so a retry against a session that since completed is harmless.
		log.Printf("[PAYMENT] Webhook reconcile failed for %s: %v", payload.Reference, err)
		services.SendErrorResponse(w, "Reconciliation failed", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"outcome": string(outcome)})
}

// Return handles the user landing back from the gateway
// @Summary Gateway return URL
// @Description Reconcile the session the user just finished and redirect to the status page
// @Tags payments
// @Param reference query string true "Payment reference"
// @Success 303 "Redirect to the purchase status page"
// @Failure 400 {object} services.ErrorResponse
// @Router /payments/return [get]
func (h *PaymentHandler) Return(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	if reference == "" {
		services.SendErrorResponse(w, "Missing reference", http.StatusBadRequest, nil)
		return
	}

	outcome, err := h.service.Reconcile(r.Context(), reference)
	if err != nil && err != services.ErrUnknownReference {
		// The user still gets a status page; the webhook retry path will
		// finish the job.
		log.Printf("[PAYMENT] Return reconcile failed for %s: %v", reference, err)
	}
	if err == services.ErrUnknownReference {
		outcome = services.OutcomeError
	}

	dest := h.statusPageURL + "?reference=" + url.QueryEscape(reference) + "&outcome=" + url.QueryEscape(string(outcome))
	http.Redirect(w, r, dest, http.StatusSeeOther)
}

// GetSession returns the status of one payment session
// @Summary Get payment session
// @Description Get the current status of a payment session owned by the caller
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Param reference path string true "Payment reference"
// @Success 200 {object} models.PaymentSession
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /payments/sessions/{reference} [get]
func (h *PaymentHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	reference := chi.URLParam(r, "reference")
	session, err := h.service.GetSession(r.Context(), reference)
	if err != nil {
		if err == services.ErrUnknownReference {
			services.SendErrorResponse(w, "Unknown reference", http.StatusNotFound, nil)
			return
		}
		log.Printf("[PAYMENT] Session lookup failed for %s: %v", reference, err)
		services.SendErrorResponse(w, "Failed to fetch session", http.StatusInternalServerError, nil)
		return
	}

	if session.UserID != userID {
		services.SendErrorResponse(w, "Unknown reference", http.StatusNotFound, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

func encodeQRImage(data string) (string, error) {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func authedUserID(r *http.Request) (int, bool) {
	id, ok := middleware.UserID(r.Context())
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(id)
	if err != nil {
		return 0, false
	}
	return n, true
}
