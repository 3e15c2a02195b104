package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"nearexpiry/internal/line"
)

const maxWebhookBody = 1 << 20

// LineWebhook receives platform deliveries. The body is read raw because the
// signature covers its exact bytes. Any non-2xx answer makes the platform
// redeliver.
func (h *Handlers) LineWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		WriteError(w, "Unreadable request body", http.StatusBadRequest)
		return
	}

	err = h.Webhook.ProcessWebhook(r.Context(), body, r.Header.Get(line.SignatureHeader))
	switch {
	case err == nil:
		WriteSuccess(w, MessageResponse{Message: "ok"}, http.StatusOK)
	case errors.Is(err, line.ErrSignatureInvalid):
		WriteError(w, "Invalid signature", http.StatusUnauthorized)
	case errors.Is(err, line.ErrMalformedPayload):
		WriteError(w, "Malformed payload", http.StatusBadRequest)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("webhook delivery failed")
		WriteError(w, "Processing failed", http.StatusInternalServerError)
	}
}
