package fees

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowledger/pkg/domain"
)

func TestHTTPForwarderPostsTransfer(t *testing.T) {
	var got forwardRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink, _ := domain.ParseAddress("0x2222222222222222222222222222222222222222")
	f := NewHTTPForwarder(srv.URL)
	err := f.Forward(context.Background(), sink, big.NewInt(1500))
	require.NoError(t, err)
	assert.Equal(t, sink.Hex(), got.To)
	assert.Equal(t, "1500", got.AmountWei)
}

func TestHTTPForwarderReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink, _ := domain.ParseAddress("0x2222222222222222222222222222222222222222")
	err := NewHTTPForwarder(srv.URL).Forward(context.Background(), sink, big.NewInt(1))
	assert.Error(t, err)
}
