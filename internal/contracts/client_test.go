package contracts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubmitScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/contracts/submit-score", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "101", req["domainTokenId"])
		assert.Equal(t, float64(85), req["score"])

		fmt.Fprint(w, `{"success": true, "txHash": "0xsubmitted"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testLogger())
	txHash, err := client.SubmitScore(context.Background(), "101", 85)
	require.NoError(t, err)
	assert.Equal(t, "0xsubmitted", txHash)
}

func TestLiquidateLoan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contracts/liquidate-loan", r.URL.Path)

		var req LiquidationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "loan-1", req.LoanID)

		fmt.Fprint(w, `{"success": true, "txHash": "0xliq", "auctionId": "auction-7"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testLogger())
	result, err := client.LiquidateLoan(context.Background(), LiquidationRequest{
		LoanID:          "loan-1",
		DomainTokenID:   "101",
		BorrowerAddress: "0xborrower",
	})
	require.NoError(t, err)
	assert.Equal(t, "0xliq", result.TxHash)
	assert.Equal(t, "auction-7", result.AuctionID)
}

func TestLiquidateLoan_RejectionIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"success": false, "error": "loan not defaulted"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testLogger())
	_, err := client.LiquidateLoan(context.Background(), LiquidationRequest{LoanID: "loan-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loan not defaulted")
}

func TestSubmitScore_HTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "signer unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, testLogger())
	_, err := client.SubmitScore(context.Background(), "101", 85)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http status 502")
}
