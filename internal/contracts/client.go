// Package contracts wraps the signing/submission service that writes to
// the lending contracts. Unlike the scoring bridge these calls do not
// degrade: a failed submission is surfaced so the caller can record or
// compensate.
package contracts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/metrics"
)

const defaultTimeout = 60 * time.Second

// LiquidationRequest identifies the loan to liquidate.
type LiquidationRequest struct {
	LoanID          string `json:"loanId"`
	DomainTokenID   string `json:"domainTokenId"`
	BorrowerAddress string `json:"borrowerAddress"`
}

// LiquidationResult is the executor's confirmation.
type LiquidationResult struct {
	TxHash    string
	AuctionID string
}

// Executor triggers on-chain liquidation of a defaulted loan.
type Executor interface {
	LiquidateLoan(ctx context.Context, req LiquidationRequest) (LiquidationResult, error)
}

// ScoreSubmitter pushes a backend score on chain.
type ScoreSubmitter interface {
	SubmitScore(ctx context.Context, domainTokenID string, score int) (txHash string, err error)
}

// Client is the HTTP client for the contract submission service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

func NewClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.With("component", "contracts"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type submitScoreRequest struct {
	DomainTokenID string `json:"domainTokenId"`
	Score         int    `json:"score"`
}

type submissionResponse struct {
	Success   bool   `json:"success"`
	TxHash    string `json:"txHash"`
	AuctionID string `json:"auctionId"`
	Error     string `json:"error"`
}

func (c *Client) SubmitScore(ctx context.Context, domainTokenID string, score int) (string, error) {
	resp, err := c.post(ctx, "/contracts/submit-score", submitScoreRequest{
		DomainTokenID: domainTokenID,
		Score:         score,
	})
	if err != nil {
		metrics.ContractSubmissionsTotal.WithLabelValues("submit_score", "error").Inc()
		return "", err
	}
	metrics.ContractSubmissionsTotal.WithLabelValues("submit_score", "ok").Inc()
	return resp.TxHash, nil
}

func (c *Client) LiquidateLoan(ctx context.Context, req LiquidationRequest) (LiquidationResult, error) {
	resp, err := c.post(ctx, "/contracts/liquidate-loan", req)
	if err != nil {
		metrics.ContractSubmissionsTotal.WithLabelValues("liquidate_loan", "error").Inc()
		return LiquidationResult{}, err
	}
	metrics.ContractSubmissionsTotal.WithLabelValues("liquidate_loan", "ok").Inc()
	return LiquidationResult{TxHash: resp.TxHash, AuctionID: resp.AuctionID}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (*submissionResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}

	var sr submissionResponse
	if err := json.Unmarshal(respBody, &sr); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if !sr.Success {
		return nil, fmt.Errorf("submission rejected: %s", sr.Error)
	}
	return &sr, nil
}
