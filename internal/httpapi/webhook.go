package httpapi

import (
	"encoding/json"
	"log"
	"net/http"

	"warungpos/internal/wa"
)

// handleWebhook serves the WhatsApp Cloud API webhook. GET is Meta's
// subscription verification handshake; POST delivers inbound messages.
// Deliveries are always acknowledged with 200 so Meta does not retry
// messages we already consumed; handling failures are logged instead.
func (a *API) handleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.handleWebhookVerify(w, r)
	case http.MethodPost:
		a.handleWebhookDelivery(w, r)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("hub.mode") != "subscribe" || query.Get("hub.verify_token") != a.verifyToken || a.verifyToken == "" {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(query.Get("hub.challenge")))
}

func (a *API) handleWebhookDelivery(w http.ResponseWriter, r *http.Request) {
	var payload wa.WebhookPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&payload); err != nil {
		log.Printf("[webhook] WARN: bad payload: %v", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			names := make(map[string]string, len(change.Value.Contacts))
			for _, contact := range change.Value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}
			for i := range change.Value.Messages {
				msg := change.Value.Messages[i]
				if err := a.engine.HandleMessage(r.Context(), &msg, names[msg.From]); err != nil {
					log.Printf("[webhook] ERROR: handle message %s from %s: %v", msg.ID, msg.From, err)
				}
			}
		}
	}
	w.WriteHeader(http.StatusOK)
}
