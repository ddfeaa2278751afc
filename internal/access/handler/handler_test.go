package handler

import (
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"flowledger/internal/access/service"
	"flowledger/internal/access/store"
	"flowledger/internal/platform/config"
	"flowledger/internal/platform/serial"
	dErrors "flowledger/pkg/domain-errors"
	"flowledger/pkg/domain"
	"flowledger/pkg/testutil"
)

func addr(last byte) domain.Address {
	var a domain.Address
	a[19] = last
	return a
}

var (
	governance = addr(0xA0)
	guardian   = addr(0xA1)
)

func newRouter(t *testing.T) chi.Router {
	t.Helper()
	roles := config.Roles{Governance: governance, Sentinel: guardian, Oracle: addr(0xA2), FeeSink: addr(0xA3)}
	svc := service.New(roles, store.NewInMemoryReporters(), store.NewInMemoryState(big.NewInt(100)), serial.NewGate())
	h := New(svc, slog.Default())
	r := chi.NewRouter()
	h.Register(r)
	h.RegisterReads(r)
	return r
}

func reporterPath(last byte) string {
	return fmt.Sprintf("/reporters/%s", addr(last).Hex())
}

func TestHandleSetReporter(t *testing.T) {
	t.Run("activates and reports membership", func(t *testing.T) {
		router := newRouter(t)
		req := testutil.WithCaller(testutil.NewJSONRequest(t, http.MethodPut, reporterPath(1), map[string]any{"active": true}), governance)
		testutil.AssertStatus(t, testutil.DoRequest(router, req), http.StatusNoContent)

		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, reporterPath(1)))
		testutil.AssertStatus(t, rr, http.StatusOK)
		require.True(t, testutil.UnmarshalResponse[MembershipResponse](t, rr).Reporter)
	})

	t.Run("double activation is a conflict", func(t *testing.T) {
		router := newRouter(t)
		req := testutil.WithCaller(testutil.NewJSONRequest(t, http.MethodPut, reporterPath(1), map[string]any{"active": true}), governance)
		testutil.AssertStatus(t, testutil.DoRequest(router, req), http.StatusNoContent)

		req = testutil.WithCaller(testutil.NewJSONRequest(t, http.MethodPut, reporterPath(1), map[string]any{"active": true}), governance)
		testutil.AssertStatusAndError(t, testutil.DoRequest(router, req), http.StatusConflict, string(dErrors.CodeAlreadyReporter))
	})

	t.Run("non-governance is rejected", func(t *testing.T) {
		router := newRouter(t)
		req := testutil.WithCaller(testutil.NewJSONRequest(t, http.MethodPut, reporterPath(1), map[string]any{"active": true}), guardian)
		testutil.AssertStatusAndError(t, testutil.DoRequest(router, req), http.StatusForbidden, string(dErrors.CodeNotGovernance))
	})

	t.Run("zero address is rejected", func(t *testing.T) {
		router := newRouter(t)
		req := testutil.WithCaller(testutil.NewJSONRequest(t, http.MethodPut, "/reporters/"+domain.ZeroAddress.Hex(), map[string]any{"active": true}), governance)
		testutil.AssertStatusAndError(t, testutil.DoRequest(router, req), http.StatusBadRequest, string(dErrors.CodeZeroAddress))
	})
}

func TestHandleSetFee(t *testing.T) {
	router := newRouter(t)

	t.Run("updates the fee", func(t *testing.T) {
		req := testutil.WithCaller(testutil.NewJSONRequest(t, http.MethodPut, "/fee", map[string]any{"fee_wei": "2500"}), governance)
		testutil.AssertStatus(t, testutil.DoRequest(router, req), http.StatusNoContent)

		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/state"))
		require.Equal(t, "2500", testutil.UnmarshalResponse[StateResponse](t, rr).SnapshotFeeWei)
	})

	t.Run("fee above the cap is rejected", func(t *testing.T) {
		req := testutil.WithCaller(testutil.NewJSONRequest(t, http.MethodPut, "/fee", map[string]any{"fee_wei": "500000000000000001"}), governance)
		testutil.AssertStatusAndError(t, testutil.DoRequest(router, req), http.StatusBadRequest, string(dErrors.CodeFeeTooHigh))
	})

	t.Run("malformed fee is rejected at the edge", func(t *testing.T) {
		req := testutil.WithCaller(testutil.NewJSONRequest(t, http.MethodPut, "/fee", map[string]any{"fee_wei": "lots"}), governance)
		testutil.AssertStatusAndError(t, testutil.DoRequest(router, req), http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})
}

func TestHandleToggleHalt(t *testing.T) {
	router := newRouter(t)

	t.Run("guardian toggles the flag", func(t *testing.T) {
		req := testutil.WithCaller(testutil.NewJSONRequest(t, http.MethodPut, "/halt", map[string]any{"halted": true}), guardian)
		testutil.AssertStatus(t, testutil.DoRequest(router, req), http.StatusNoContent)

		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/state"))
		require.True(t, testutil.UnmarshalResponse[StateResponse](t, rr).Halted)
	})

	t.Run("governance may not", func(t *testing.T) {
		req := testutil.WithCaller(testutil.NewJSONRequest(t, http.MethodPut, "/halt", map[string]any{"halted": false}), governance)
		testutil.AssertStatusAndError(t, testutil.DoRequest(router, req), http.StatusForbidden, string(dErrors.CodeNotSentinel))
	})
}
