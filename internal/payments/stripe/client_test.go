package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCardPaymentMethods(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_methods", r.URL.Path)
		assert.Equal(t, "cus_123", r.URL.Query().Get("customer"))
		assert.Equal(t, "card", r.URL.Query().Get("type"))
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":[{"id":"pm_1","customer":"cus_123","type":"card"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test", http.DefaultClient)
	methods, err := c.ListCardPaymentMethods(context.Background(), "cus_123")
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.Equal(t, "pm_1", methods[0].ID)
}

func TestDetachPaymentMethod_FormEncoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_methods/pm_1/detach", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"id":"pm_1","customer":null,"type":"card","card":{"brand":"visa"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test", http.DefaultClient)
	pm, err := c.DetachPaymentMethod(context.Background(), "pm_1")
	require.NoError(t, err)
	assert.Equal(t, "pm_1", pm.ID)

	// The raw Stripe object survives for pass-through responses.
	assert.Contains(t, string(pm.Raw), `"brand":"visa"`)
}
