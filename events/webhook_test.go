package events

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	sig := Sign("secret", body)

	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, sig)
	assert.True(t, VerifySignature("secret", body, sig))
	assert.False(t, VerifySignature("other", body, sig))
	assert.False(t, VerifySignature("secret", []byte(`{}`), sig))
	assert.False(t, VerifySignature("secret", body, ""))
}

func TestEnvelope(t *testing.T) {
	at := time.Date(2024, time.June, 17, 10, 0, 0, 0, time.UTC)
	evt := NewIntakeEvent(LeadCreated, 7, at, map[string]string{"contact": "a@b.c"})
	require.NotEmpty(t, evt.ID)

	env := evt.Envelope()
	assert.Equal(t, evt.ID, env.Meta.ID)
	assert.Equal(t, "widget.lead.created", env.Meta.Type)
	assert.Equal(t, "widgethub", env.Meta.Producer)
	assert.EqualValues(t, 7, env.Meta.ProjectID)
	assert.True(t, at.Equal(env.Meta.Time))

	other := NewIntakeEvent(LeadCreated, 7, at, nil)
	assert.NotEqual(t, evt.ID, other.ID)
}

func TestWebhookDeliver(t *testing.T) {
	type captured struct {
		header http.Header
		body   []byte
	}
	got := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- captured{header: r.Header.Clone(), body: body}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	evt := NewIntakeEvent(CallbackCreated, 3, time.Now(), map[string]string{"phone": "+15550100"})
	client := NewWebhookClient(2 * time.Second)
	require.NoError(t, client.Deliver(srv.URL, "shh", evt))

	req := <-got
	assert.Equal(t, "application/json", req.header.Get("Content-Type"))
	assert.Equal(t, string(CallbackCreated), req.header.Get(EventHeader))
	assert.Equal(t, evt.ID, req.header.Get(DeliveryHeader))
	assert.True(t, VerifySignature("shh", req.body, req.header.Get(SignatureHeader)))

	var env struct {
		Meta Meta              `json:"meta"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(req.body, &env))
	assert.Equal(t, evt.ID, env.Meta.ID)
	assert.Equal(t, "+15550100", env.Data["phone"])
}

func TestWebhookDeliverWithoutSecret(t *testing.T) {
	var sigHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sigHeader = r.Header.Get(SignatureHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, NewWebhookClient(0).Deliver(srv.URL, "", NewIntakeEvent(ChatStarted, 1, time.Now(), nil)))
	assert.Empty(t, sigHeader)
}

func TestWebhookDeliverRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookClient(time.Second).Deliver(srv.URL, "", NewIntakeEvent(ChatMessage, 1, time.Now(), nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestDiscardNotifier(t *testing.T) {
	assert.NotPanics(t, func() { Discard.Notify(NewIntakeEvent(LeadCreated, 1, time.Now(), nil)) })
}
