package workflow

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxWebhookBody bounds the payload read from third-party callers.
const maxWebhookBody = 1 << 20

// GoogleFormPayload is what the form's Apps Script posts on submit.
type GoogleFormPayload struct {
	FormID          string         `json:"formId"`
	FormTitle       string         `json:"formTitle"`
	ResponseID      string         `json:"responseId"`
	Timestamp       string         `json:"timestamp"`
	RespondentEmail string         `json:"respondentEmail"`
	Responses       map[string]any `json:"responses"`
}

// StripeEvent holds the fields of a Stripe webhook event the workflow sees
// directly. The full event stays available under raw.
type StripeEvent struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Created  int64  `json:"created"`
	Livemode bool   `json:"livemode"`
}

// HandleGoogleFormWebhook starts the workflow named by ?workflowId= with the
// form submission under the googleForm key.
func (s *Service) HandleGoogleFormWebhook(w http.ResponseWriter, r *http.Request) {
	workflowID, raw, ok := readWebhook(w, r)
	if !ok {
		return
	}

	var p GoogleFormPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form payload")
		return
	}
	slog.Debug("Google Form submission received", "workflowId", workflowID, "formId", p.FormID)

	s.trigger(r.Context(), w, workflowID, map[string]any{
		"googleForm": googleFormData(p, raw),
	})
}

// HandleStripeWebhook starts the workflow named by ?workflowId= with the
// Stripe event under the stripe key.
func (s *Service) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	workflowID, raw, ok := readWebhook(w, r)
	if !ok {
		return
	}

	var ev StripeEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid stripe event")
		return
	}
	if ev.Type == "" {
		writeError(w, http.StatusBadRequest, errMissing("type").Error())
		return
	}
	slog.Debug("Stripe event received", "workflowId", workflowID, "type", ev.Type)

	s.trigger(r.Context(), w, workflowID, map[string]any{
		"stripe": stripeData(ev, raw),
	})
}

func readWebhook(w http.ResponseWriter, r *http.Request) (string, json.RawMessage, bool) {
	workflowID := r.URL.Query().Get("workflowId")
	if workflowID == "" {
		writeError(w, http.StatusBadRequest, errMissing("workflowId").Error())
		return "", nil, false
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read body")
		return "", nil, false
	}
	if !json.Valid(raw) {
		writeError(w, http.StatusBadRequest, "body must be JSON")
		return "", nil, false
	}
	return workflowID, raw, true
}

func googleFormData(p GoogleFormPayload, raw json.RawMessage) map[string]any {
	responses := p.Responses
	if responses == nil {
		responses = map[string]any{}
	}
	return map[string]any{
		"formId":          p.FormID,
		"formTitle":       p.FormTitle,
		"responseId":      p.ResponseID,
		"timestamp":       p.Timestamp,
		"respondentEmail": p.RespondentEmail,
		"responses":       responses,
		"raw":             decodeRaw(raw),
	}
}

func stripeData(ev StripeEvent, raw json.RawMessage) map[string]any {
	ts := ""
	if ev.Created > 0 {
		ts = time.Unix(ev.Created, 0).UTC().Format(time.RFC3339)
	}
	return map[string]any{
		"eventId":   ev.ID,
		"eventType": ev.Type,
		"timestamp": ts,
		"livemode":  ev.Livemode,
		"raw":       decodeRaw(raw),
	}
}

func decodeRaw(raw json.RawMessage) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
