package http_test

import (
	"log/slog"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	accesshandler "flowledger/internal/access/handler"
	accessservice "flowledger/internal/access/service"
	accessstore "flowledger/internal/access/store"
	"flowledger/internal/fees"
	insthandler "flowledger/internal/institution/handler"
	instservice "flowledger/internal/institution/service"
	inststore "flowledger/internal/institution/store"
	"flowledger/internal/jwtauth"
	"flowledger/internal/platform/config"
	"flowledger/internal/platform/serial"
	trendhandler "flowledger/internal/trend/handler"
	trendservice "flowledger/internal/trend/service"
	trendstore "flowledger/internal/trend/store"
	httptransport "flowledger/internal/transport/http"
	"flowledger/pkg/domain"
	"flowledger/pkg/testutil"
)

func addr(last byte) domain.Address {
	var a domain.Address
	a[19] = last
	return a
}

func TestRouterScaffold(t *testing.T) {
	roles := config.Roles{
		Governance: addr(0xA0),
		Sentinel:   addr(0xA1),
		Oracle:     addr(0xA2),
		FeeSink:    addr(0xA3),
	}
	gate := serial.NewGate()
	log := slog.Default()
	validator := jwtauth.NewValidator("router-test-key")

	access := accessservice.New(roles, accessstore.NewInMemoryReporters(), accessstore.NewInMemoryState(big.NewInt(0)), gate)
	institutions := instservice.New(inststore.NewInMemoryDirectory(), access, gate)
	trend := trendservice.New(trendstore.NewInMemoryLedger(), access, institutions, fees.Noop{}, gate)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:       log,
		Validator:    validator,
		Access:       accesshandler.New(access, log),
		Institutions: insthandler.New(institutions, log),
		Trend:        trendhandler.New(trend, log),
	})

	testutil.Given(t, "the assembled router", func(t *testing.T) {
		testutil.When(t, "probing process health", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))

			testutil.Then(t, "it reports ok", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusOK)
			})
		})

		testutil.When(t, "mutating without a bearer token", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPut, "/v1/halt", map[string]any{"halted": true})
			rr := testutil.DoRequest(router, req)

			testutil.Then(t, "the write is rejected", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusUnauthorized)
			})
		})

		testutil.When(t, "the guardian halts with a valid token", func(t *testing.T) {
			token, err := validator.Issue(roles.Sentinel, time.Minute)
			require.NoError(t, err)

			req := testutil.NewJSONRequest(t, http.MethodPut, "/v1/halt", map[string]any{"halted": true})
			req.Header.Set("Authorization", "Bearer "+token)
			rr := testutil.DoRequest(router, req)

			testutil.Then(t, "the halt is applied", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusNoContent)
			})
		})

		testutil.When(t, "reading state without a token", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/v1/state"))

			testutil.Then(t, "the halted flag is visible", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusOK)
				resp := testutil.UnmarshalResponse[accesshandler.StateResponse](t, rr)
				require.True(t, resp.Halted)
			})
		})
	})
}
