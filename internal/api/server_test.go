package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Divvy/internal/ledger"
	"Divvy/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "0xowner"

type testAPI struct {
	srv *Server
	now time.Time
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ta := &testAPI{now: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	l, err := ledger.New(owner, ledger.Options{Clock: ledger.ClockFunc(func() time.Time { return ta.now })})
	require.NoError(t, err)
	ta.srv = NewServer(l)
	return ta
}

func (ta *testAPI) do(t *testing.T, method, path, caller, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if caller != "" {
		req.Header.Set(CallerHeader, caller)
	}
	rec := httptest.NewRecorder()
	ta.srv.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestAPI_FullCycle(t *testing.T) {
	ta := newTestAPI(t)

	for caller, amount := range map[string]string{"0xalice": "8", "0xbob": "4", "0xcarol": "1"} {
		rec, _ := ta.do(t, http.MethodPost, "/contributions", caller, `{"amount":`+amount+`}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, body := ta.do(t, http.MethodGet, "/status", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(13), body["total"])
	assert.Equal(t, float64(8), body["highest_contribution"])
	assert.Equal(t, string(model.PhaseContributing), body["phase"])
	assert.NotContains(t, body, "withdrawal_opened_at")

	rec, body = ta.do(t, http.MethodPost, "/windows/withdrawal", owner, "")
	assert.Equal(t, http.StatusTooEarly, rec.Code)
	assert.Equal(t, string(ledger.CodeTooEarly), body["code"])

	ta.now = ta.now.Add(14 * 24 * time.Hour)
	rec, body = ta.do(t, http.MethodPost, "/windows/withdrawal", owner, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["withdrawable"])
	assert.Equal(t, float64(4), body["payout_share"])

	for _, caller := range []string{"0xalice", "0xbob", "0xcarol"} {
		rec, body = ta.do(t, http.MethodPost, "/withdrawals", caller, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(4), body["paid"])
	}

	rec, body = ta.do(t, http.MethodPost, "/withdrawals", "0xalice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(ledger.CodeNotAParticipant), body["code"])

	_, body = ta.do(t, http.MethodGet, "/status", "", "")
	assert.Equal(t, float64(1), body["holdings"])
}

func TestAPI_Rejections(t *testing.T) {
	ta := newTestAPI(t)

	rec, body := ta.do(t, http.MethodPost, "/contributions", "0xalice", `{"amount":11}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, string(ledger.CodeLimitExceeded), body["code"])

	rec, _ = ta.do(t, http.MethodPost, "/contributions", "0xalice", `{"amount":3}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, body = ta.do(t, http.MethodPost, "/contributions", "0xalice", `{"amount":3}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(ledger.CodeDuplicateContribution), body["code"])

	rec, body = ta.do(t, http.MethodPost, "/contributions", "", `{"amount":3}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, string(ledger.CodeInvalidAddress), body["code"])

	rec, body = ta.do(t, http.MethodPost, "/contributions", "0xbob", `{"amount":"lots"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", body["code"])

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodPut, "/owner", `{"owner":"0xmallory"}`},
		{http.MethodPut, "/max-contribution", `{"max":5}`},
		{http.MethodPost, "/windows/withdrawal", ""},
		{http.MethodPost, "/windows/contribution", ""},
	} {
		rec, body = ta.do(t, tc.method, tc.path, "0xmallory", tc.body)
		assert.Equal(t, http.StatusForbidden, rec.Code, tc.path)
		assert.Equal(t, string(ledger.CodeUnauthorized), body["code"], tc.path)
	}
	assert.Equal(t, model.Address(owner), ta.srv.Ledger.Owner())
}

func TestAPI_OwnerOperations(t *testing.T) {
	ta := newTestAPI(t)

	rec, body := ta.do(t, http.MethodPut, "/max-contribution", owner, `{"max":25}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(25), body["max_contribution"])

	rec, body = ta.do(t, http.MethodPut, "/max-contribution", owner, `{"max":0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, string(ledger.CodeInvalidLimit), body["code"])

	rec, body = ta.do(t, http.MethodPost, "/windows/contribution", owner, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(ledger.CodeAlreadyOpen), body["code"])

	rec, body = ta.do(t, http.MethodPut, "/owner", owner, `{"owner":"0xalice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0xalice", body["owner"])
	assert.Equal(t, model.Address("0xalice"), ta.srv.Ledger.Owner())
}

func TestAPI_Reads(t *testing.T) {
	ta := newTestAPI(t)
	require.NoError(t, ta.srv.Ledger.Contribute("0xalice", 6))

	_, body := ta.do(t, http.MethodGet, "/balances/0xalice", "", "")
	assert.Equal(t, float64(6), body["amount"])

	_, body = ta.do(t, http.MethodGet, "/balances/0xunknown", "", "")
	assert.Equal(t, float64(0), body["amount"])

	_, body = ta.do(t, http.MethodGet, "/participants", "", "")
	list, ok := body["participants"].([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, "0xalice", list[0].(map[string]any)["participant"])
}
