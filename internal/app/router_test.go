package app

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRelay struct {
	name    string
	updates []string
}

func (f *fakeRelay) Name() string     { return f.name }
func (f *fakeRelay) Username() string { return strings.ToLower(f.name) + "_bot" }

func (f *fakeRelay) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.updates = append(f.updates, string(body))
		w.WriteHeader(http.StatusOK)
	}
}

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_Health(t *testing.T) {
	r := NewRouter(false, nil)

	w := serve(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	w = serve(r, http.MethodGet, "/", "")
	assert.Equal(t, "Support bot is running (mode: polling)", w.Body.String())

	w = serve(NewRouter(true, nil), http.MethodGet, "/", "")
	assert.Equal(t, "Support bot is running (mode: webhook)", w.Body.String())
}

func TestRouter_Bots(t *testing.T) {
	r := NewRouter(false, []Relay{&fakeRelay{name: "SUPPORT"}, &fakeRelay{name: "SALES"}})

	w := serve(r, http.MethodGet, "/bots", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Bots []botInfo `json:"bots"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []botInfo{
		{Name: "SUPPORT", Username: "support_bot"},
		{Name: "SALES", Username: "sales_bot"},
	}, resp.Bots)
	assert.NotContains(t, w.Body.String(), "admin_group")
}

func TestRouter_Webhook(t *testing.T) {
	support := &fakeRelay{name: "SUPPORT"}
	sales := &fakeRelay{name: "SALES"}
	r := NewRouter(true, []Relay{support, sales})

	w := serve(r, http.MethodPost, "/telegram-webhook/SALES", `{"update_id":1}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{`{"update_id":1}`}, sales.updates)
	assert.Empty(t, support.updates)

	w = serve(r, http.MethodPost, "/telegram-webhook/OTHER", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(r, http.MethodGet, "/telegram-webhook/SALES", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_NoWebhookWhenPolling(t *testing.T) {
	support := &fakeRelay{name: "SUPPORT"}
	r := NewRouter(false, []Relay{support})

	w := serve(r, http.MethodPost, "/telegram-webhook/SUPPORT",
		`{"update_id":1,"message":{"chat":{"id":-100},"text":"/ban"}}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, support.updates)
}
