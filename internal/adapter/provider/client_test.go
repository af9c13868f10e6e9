package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"einvoice-dispatch/config"
	"einvoice-dispatch/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *KolaysoftClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewKolaysoftClient(config.ProviderConfig{
		BaseURL:  srv.URL,
		Username: "acct",
		Password: "secret",
		Timeout:  5 * time.Second,
	})
}

func TestKolaysoftClient_SendDocumentAccepted(t *testing.T) {
	var gotReq sendDocumentRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sendDocument", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "acct", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(sendDocumentResponse{Code: "000", Explanation: "accepted"})
	})

	res, err := client.SendDocument(context.Background(), ports.ProviderSendRequest{
		DocID:       "EFT2026000000001",
		ETTN:        "a7c9e1f0-0000-0000-0000-000000000001",
		Payload:     []byte("<Invoice/>"),
		TargetAlias: "urn:mail:defaultpk",
	})
	require.NoError(t, err)
	assert.True(t, res.Accepted())
	assert.Equal(t, "EFT2026000000001", gotReq.DocID)
	assert.Equal(t, "urn:mail:defaultpk", gotReq.TargetAlias)
}

func TestKolaysoftClient_SendDocumentRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(sendDocumentResponse{
			Code:        "102",
			Explanation: "recipient alias not registered",
		})
	})

	res, err := client.SendDocument(context.Background(), ports.ProviderSendRequest{DocID: "EFT2026000000002"})
	require.NoError(t, err, "a provider rejection is a result, not a transport error")
	assert.False(t, res.Accepted())
	assert.Equal(t, "102", res.Code)
	assert.Equal(t, "recipient alias not registered", res.Explanation)
}

func TestKolaysoftClient_SendDocumentTransportError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	res, err := client.SendDocument(context.Background(), ports.ProviderSendRequest{DocID: "EFT2026000000003"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "unexpected status 502")
}

func TestKolaysoftClient_SendDespatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sendDespatch", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	ok, err := client.SendDespatch(context.Background(), ports.ProviderSendRequest{DocID: "EFT2026000000004"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKolaysoftClient_Validate(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/validate", r.URL.Path)
			json.NewEncoder(w).Encode(sendDocumentResponse{Code: "000"})
		})
		assert.NoError(t, client.Validate(context.Background(), []byte("<Invoice/>")))
	})

	t.Run("schema failure", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(sendDocumentResponse{Code: "101", Explanation: "invalid xml"})
		})
		err := client.Validate(context.Background(), []byte("<bad"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validation failed")
	})
}

func TestKolaysoftClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	client := NewKolaysoftClient(config.ProviderConfig{
		BaseURL: srv.URL,
		Timeout: 50 * time.Millisecond,
	})

	_, err := client.SendDocument(context.Background(), ports.ProviderSendRequest{DocID: "EFT2026000000005"})
	require.Error(t, err)
}
