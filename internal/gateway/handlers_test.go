package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dirgate/internal/extensions"
)

const testExtAppID = "11112222-3333-4444-5555-666677778888"

func newTestServer(t *testing.T, idp *stubIdP, dir *stubDirectory) http.Handler {
	t.Helper()
	svc := newTestService(t, idp, dir)
	ns, err := extensions.New(testExtAppID)
	require.NoError(t, err)
	r := chi.NewRouter()
	NewServer(zap.NewNop().Sugar(), svc, ns).Register(r)
	return r
}

func TestLoginRoutes(t *testing.T) {
	idp := newStubIdP(t)
	dir := newStubDirectory(t)
	h := newTestServer(t, idp, dir)

	t.Run("GET /login redirects to the authorization URL", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
		require.Equal(t, http.StatusFound, rec.Code)
		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "code", loc.Query().Get("response_type"))
		assert.NotEmpty(t, loc.Query().Get("state"))
	})

	t.Run("callback completes the login", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
		require.Equal(t, http.StatusFound, rec.Code)
		state := stateFromAuthURL(t, rec.Header().Get("Location"))
		idp.issueCode("cb-1", "user-42")

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?state="+state+"&code=cb-1", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "user-42", body["account_id"])
	})

	t.Run("callback without params is a bad request", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("callback with forged state is unauthorized", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?state=forged&code=x", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("callback with bad code is unauthorized", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
		state := stateFromAuthURL(t, rec.Header().Get("Location"))

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?state="+state+"&code=never-issued", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestUserRoutes(t *testing.T) {
	idp := newStubIdP(t)
	dir := newStubDirectory(t)
	h := newTestServer(t, idp, dir)

	physicalCustomer := "extension_11112222333344445555666677778888_Customer"

	t.Run("create namespaces extension attributes", func(t *testing.T) {
		payload := map[string]any{
			"userPrincipalName": "ada@contoso.com",
			"displayName":       "Ada",
			"extensions":        map[string]any{"Customer": "Acme"},
		}
		b, _ := json.Marshal(payload)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users", bytes.NewReader(b)))
		require.Equal(t, http.StatusCreated, rec.Code)

		dir.mu.Lock()
		created := dir.users["ada@contoso.com"]
		dir.mu.Unlock()
		require.NotNil(t, created)
		assert.Equal(t, "Acme", created[physicalCustomer])
		assert.NotContains(t, created, "Customer")
		assert.NotContains(t, created, "extensions")
	})

	t.Run("get folds extension attributes back", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/ada@contoso.com", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Ada", body["displayName"])
		ext, ok := body["extensions"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "Acme", ext["Customer"])
		assert.NotContains(t, body, physicalCustomer)
	})

	t.Run("list folds every record", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Value []map[string]any `json:"value"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Value, 1)
		assert.Contains(t, body.Value[0], "extensions")
	})

	t.Run("update returns no content", func(t *testing.T) {
		b, _ := json.Marshal(map[string]any{"surname": "Lovelace"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/users/ada@contoso.com", bytes.NewReader(b)))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("delete returns no content", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/users/ada@contoso.com", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("missing user maps to not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/ghost@contoso.com", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad json is a bad request", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users", bytes.NewReader([]byte("{"))))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
