package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jonwraymond/offlinekit/auth"
	"github.com/jonwraymond/offlinekit/bus"
)

// maxPushPayload bounds a push body; larger bodies are rejected.
const maxPushPayload = 4 << 10

type pushReceiver interface {
	PushReceived(ctx context.Context, payload []byte) error
}

type installReceiver interface {
	InstallOffered(ctx context.Context, prompt bus.InstallPrompt) error
}

// pushHandler turns a platform push into a notification. The body is the
// notification text; no schema is enforced.
func pushHandler(agent pushReceiver) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPushPayload))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := agent.PushReceived(r.Context(), payload); err != nil {
			http.Error(w, "agent unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
}

// installOfferHandler holds a platform install offer for later replay. An
// empty body is a valid offer.
func installOfferHandler(agent installReceiver) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var prompt bus.InstallPrompt
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPushPayload))
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(string(body)) != "" {
			if err := json.Unmarshal(body, &prompt); err != nil {
				http.Error(w, "invalid install offer", http.StatusBadRequest)
				return
			}
		}
		if prompt.ID == "" {
			prompt.ID = uuid.NewString()
		}
		if err := agent.InstallOffered(r.Context(), prompt); err != nil {
			http.Error(w, "agent unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(prompt)
	})
}

// controlAuthenticator accepts either a platform API key or a bus token.
// It returns nil, leaving the routes open, when neither is configured.
func controlAuthenticator(apiKeys []string, busAuth auth.Authenticator) (auth.Authenticator, error) {
	var auths []auth.Authenticator
	if len(apiKeys) > 0 {
		store := auth.NewMemoryAPIKeyStore()
		for i, key := range apiKeys {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			if err := store.AddKey(fmt.Sprintf("platform-%d", i+1), key, "platform"); err != nil {
				return nil, err
			}
		}
		auths = append(auths, auth.NewAPIKeyAuthenticator(auth.APIKeyConfig{}, store))
	}
	if busAuth != nil {
		auths = append(auths, busAuth)
	}
	if len(auths) == 0 {
		return nil, nil
	}
	return auth.NewCompositeAuthenticator(auths...), nil
}
