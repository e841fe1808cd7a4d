package rpc_test

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/energywebfoundation/worker-contract-sub000/events"
	"github.com/energywebfoundation/worker-contract-sub000/greenproof"
	"github.com/energywebfoundation/worker-contract-sub000/rpc"
	"github.com/energywebfoundation/worker-contract-sub000/rpc/mocks"
)

type httpStatus struct {
	Code    codes.Code `json:"code"`
	Message string     `json:"message"`
}

func newHandler(t *testing.T, ledger rpc.Ledger, origins []string) http.Handler {
	t.Helper()
	auth, err := rpc.NewAuthenticator(0)
	require.NoError(t, err)
	h, err := rpc.NewHandler(ledger, auth, origins)
	require.NoError(t, err)
	return h
}

func post(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	return rec
}

func signed(t *testing.T, key ed25519.PrivateKey, op string, args any) *rpc.CallRequest {
	t.Helper()
	in, err := rpc.NewCallRequest(key, op, args, time.Now())
	require.NoError(t, err)
	return in
}

func errorStatus(t *testing.T, rec *httptest.ResponseRecorder) httpStatus {
	t.Helper()
	var st httpStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	return st
}

func TestHandlerCall(t *testing.T) {
	ledger := mocks.NewMockLedger(gomock.NewController(t))
	h := newHandler(t, ledger, nil)

	ledger.EXPECT().Call(gomock.Any(), owner, greenproof.OpPause, gomock.Any()).
		Return(&greenproof.Receipt{Op: greenproof.OpPause, Events: []events.Record{record(1)}}, nil)
	rec := post(t, h, "/v1/call", signed(t, ownerKey, greenproof.OpPause, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var receipt greenproof.Receipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	require.Equal(t, greenproof.OpPause, receipt.Op)
	require.Equal(t, []events.Record{record(1)}, receipt.Events)

	ledger.EXPECT().Call(gomock.Any(), worker, greenproof.OpPause, gomock.Any()).
		Return(nil, errNotAuthorized.With("Owner", worker))
	rec = post(t, h, "/v1/call", signed(t, workerKey, greenproof.OpPause, nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, httpStatus{
		Code:    codes.PermissionDenied,
		Message: `NotAuthorized("Owner", "` + worker.Hex() + `")`,
	}, errorStatus(t, rec))

	// a worker cannot borrow the owner's identity
	forged := signed(t, workerKey, greenproof.OpPause, nil)
	forged.PublicKey = ownerKey.Public().(ed25519.PublicKey)
	rec = post(t, h, "/v1/call", forged)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, codes.Unauthenticated, errorStatus(t, rec).Code)

	rec = post(t, h, "/v1/call", map[string]any{"operation": "pause", "caller": owner})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, codes.InvalidArgument, errorStatus(t, rec).Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/unknown", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerReadAndEvents(t *testing.T) {
	ledger := mocks.NewMockLedger(gomock.NewController(t))
	h := newHandler(t, ledger, []string{"http://dashboard"})

	ledger.EXPECT().Read(gomock.Any(), "numberOfWorkers", gomock.Any()).Return(uint64(3), nil)
	rec := post(t, h, "/v1/read", rpc.ReadRequest{Operation: "numberOfWorkers"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `3`, rec.Body.String())

	ledger.EXPECT().Events(gomock.Any(), uint64(7), 2).Return(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/events?since=7&limit=2", nil)
	req.Header.Set("Origin", "http://dashboard")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())
	require.Equal(t, "http://dashboard", rec.Header().Get("Access-Control-Allow-Origin"))

	ledger.EXPECT().Events(gomock.Any(), uint64(0), greenproof.MaxEventsPage).Return([]events.Record{record(1)}, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var records []events.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Equal(t, []events.Record{record(1)}, records)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events?since=x", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/operations", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var ops rpc.OperationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ops))
	require.Contains(t, ops.Mutating, greenproof.OpVote)
}
