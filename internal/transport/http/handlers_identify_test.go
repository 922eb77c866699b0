package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unify/internal/identity"
	"unify/internal/platform/logger"
	"unify/pkg/domerrors"
)

func newTestRouter(t *testing.T, svc Service) http.Handler {
	t.Helper()
	log := logger.New()
	return NewRouter(NewIdentifyHandler(svc, log), log, nil)
}

func postIdentify(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/identify", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestIdentifyRejectsBadInput(t *testing.T) {
	router := newTestRouter(t, identity.NewResolver(identity.NewInMemoryStore(), nil, nil, nil, nil))

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{`},
		{name: "both fields absent", body: `{}`},
		{name: "both fields empty", body: `{"email":"  ","phoneNumber":""}`},
		{name: "malformed email", body: `{"email":"not-an-email"}`},
		{name: "phone with letters", body: `{"phoneNumber":"12345abc"}`},
		{name: "phone too short", body: `{"phoneNumber":"123"}`},
		{name: "phone too long", body: `{"phoneNumber":"1234567890123456"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postIdentify(t, router, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, string(domerrors.CodeInvalidInput), resp["error"])
		})
	}
}

func TestIdentifyConsolidatesContacts(t *testing.T) {
	store := identity.NewInMemoryStore()
	router := newTestRouter(t, identity.NewResolver(store, nil, nil, nil, nil))

	rec := postIdentify(t, router, `{"email":"first@x.com","phoneNumber":"1234567890"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var first IdentifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, []string{"first@x.com"}, first.Contact.Emails)
	assert.Equal(t, []string{"1234567890"}, first.Contact.PhoneNumbers)
	assert.Empty(t, first.Contact.SecondaryContactIDs)

	// Same phone with a new email links a secondary under the same primary.
	rec = postIdentify(t, router, `{"email":"second@x.com","phoneNumber":"1234567890"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var second IdentifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, first.Contact.PrimaryContactID, second.Contact.PrimaryContactID)
	assert.Equal(t, []string{"first@x.com", "second@x.com"}, second.Contact.Emails)
	assert.Len(t, second.Contact.SecondaryContactIDs, 1)
}

func TestIdentifyTrimsWhitespaceBeforeResolving(t *testing.T) {
	router := newTestRouter(t, identity.NewResolver(identity.NewInMemoryStore(), nil, nil, nil, nil))

	rec := postIdentify(t, router, `{"email":"  padded@x.com  "}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp IdentifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"padded@x.com"}, resp.Contact.Emails)
}

type failingService struct{}

func (failingService) Resolve(context.Context, identity.Observation) (identity.ConsolidatedContact, error) {
	return identity.ConsolidatedContact{}, domerrors.New(domerrors.CodeInternal, "store exploded")
}

func TestIdentifyMapsResolverFailureToOpaque500(t *testing.T) {
	router := newTestRouter(t, failingService{})

	rec := postIdentify(t, router, `{"email":"boom@x.com"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(domerrors.CodeInternal), resp["error"])
	// Internal detail never crosses the boundary.
	assert.NotContains(t, resp["message"], "exploded")
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, failingService{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
