package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/caffeinepub/openframe-education/backend/services/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_ForwardsHeadersAndRequestID(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	pc := NewPaymentsClient(srv.URL, time.Second)
	ctx := logger.WithRequestID(context.Background(), "req-42")
	body, err := JSONBody(map[string]int{"plan_id": 2})
	require.NoError(t, err)

	resp, err := pc.Do(ctx, http.MethodPost, "/payments/orders", url.Values{"x": {"1"}}, http.Header{"Authorization": {"Bearer tok"}}, body)
	require.NoError(t, err)

	var out map[string]bool
	require.NoError(t, DecodeJSON(resp, &out))
	assert.True(t, out["ok"])
	assert.Equal(t, "/payments/orders", got.URL.Path)
	assert.Equal(t, "1", got.URL.Query().Get("x"))
	assert.Equal(t, "Bearer tok", got.Header.Get("Authorization"))
	assert.Equal(t, "req-42", got.Header.Get(logger.RequestIDHeader))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
}

func TestDo_NotConfigured(t *testing.T) {
	pc := NewPaymentsClient("", time.Second)
	assert.False(t, pc.Configured())

	_, err := pc.Do(context.Background(), http.MethodGet, "/plans", nil, nil, nil)
	assert.Error(t, err)
}

func TestDecodeJSON_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"confirmed":false,"error":"Payment not yet captured"}`))
	}))
	defer srv.Close()

	resp, err := NewPaymentsClient(srv.URL, time.Second).Do(context.Background(), http.MethodPost, "/payments/confirm", nil, nil, nil)
	require.NoError(t, err)

	err = DecodeJSON(resp, nil)
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusConflict, upErr.StatusCode)
	assert.Equal(t, "Payment not yet captured", upErr.Message)
}

func TestCopyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Plan not found"}`))
	}))
	defer srv.Close()

	resp, err := NewPaymentsClient(srv.URL, time.Second).Do(context.Background(), http.MethodGet, "/plans/9", nil, nil, nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	require.NoError(t, CopyResponse(w, resp))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Plan not found"}`, w.Body.String())
}
