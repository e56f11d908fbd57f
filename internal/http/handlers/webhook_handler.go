// Webhook HTTP handlers.
//
// This file exposes the payment gateway callback:
//   - POST /webhooks/paystack
//
// The webhook is the authoritative verification trigger. Its HMAC-SHA512
// signature (X-Paystack-Signature over the raw body, keyed with the API
// secret) authenticates the gateway, so the handler verifies the ledger row
// without a second gateway round-trip.
//
// Delivery semantics: Paystack retries until it sees a 2xx, so the handler
// acknowledges every authenticated, well-formed event even when the ledger
// declines it (unknown reference, already verified). Only a bad signature is
// rejected.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-store-backend/internal/payment"
	"github.com/tbourn/go-store-backend/internal/services"
)

// HeaderPaystackSignature carries the gateway's HMAC over the raw body.
const HeaderPaystackSignature = "X-Paystack-Signature"

// PaystackWebhook godoc
// @ID          paystackWebhook
// @Summary     Payment gateway callback
// @Description Verifies the delivery signature and, for successful charge events, marks
// @Description the referenced transaction verified. Duplicate deliveries are harmless.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Param       X-Paystack-Signature  header  string  true  "HMAC-SHA512 of the raw body"
//
// @Success     200  {string}  string "OK"
// @Failure     401  {object}  handlers.ErrorResponse "Bad signature"
// @Router      /webhooks/paystack [post]
func (h *Handlers) PaystackWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cannot read body")
		return
	}

	if h.webhook == nil || !h.webhook.VerifySignature(body, c.GetHeader(HeaderPaystackSignature)) {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid webhook signature")
		return
	}

	event, err := payment.ParseWebhook(body)
	if err != nil {
		// Authenticated but unparseable; acknowledge so the gateway stops retrying.
		c.Status(http.StatusOK)
		return
	}

	if event.Event != "charge.success" || event.Data.Reference == "" {
		c.Status(http.StatusOK)
		return
	}

	// Signature already authenticates the gateway: no confirm round-trip.
	if _, err := h.ledger.Verify(c.Request.Context(), event.Data.Reference, false); err != nil {
		if !errors.Is(err, services.ErrTransactionNotFound) {
			log.Error().Str("reference", event.Data.Reference).Err(err).Msg("webhook verify")
		}
		// Acknowledge regardless; retrying the same delivery cannot help.
	}
	c.Status(http.StatusOK)
}
