// Package explorer fetches recent account activity from an
// Etherscan-compatible block explorer.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL = "https://api.etherscan.io/api"

	etherscanTxURL  = "https://etherscan.io/tx/"
	etherscanAddURL = "https://etherscan.io/address/"
	debankURL       = "https://debank.com/profile/"
)

// APIError is a non-2xx explorer response.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("explorer: status=%d body=%s", e.StatusCode, string(e.Body))
}

// Transaction is one normalized explorer transaction.
type Transaction struct {
	Hash         string `json:"hash"`
	From         string `json:"from"`
	To           string `json:"to"`
	Value        string `json:"value"` // wei, decimal string
	Timestamp    int64  `json:"timestamp"`
	BlockNumber  uint64 `json:"block_number"`
	MethodID     string `json:"method_id"`
	FunctionName string `json:"function_name,omitempty"`
	IsError      bool   `json:"is_error"`
}

// Time returns the transaction's block time.
func (t Transaction) Time() time.Time {
	return time.Unix(t.Timestamp, 0).UTC()
}

type txListResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type rawTx struct {
	Hash         string `json:"hash"`
	From         string `json:"from"`
	To           string `json:"to"`
	Value        string `json:"value"`
	TimeStamp    string `json:"timeStamp"`
	BlockNumber  string `json:"blockNumber"`
	MethodID     string `json:"methodId"`
	FunctionName string `json:"functionName"`
	Input        string `json:"input"`
	IsError      string `json:"isError"`
}

// Client talks to the explorer's account API.
type Client struct {
	http     *http.Client
	baseURL  string
	apiKey   string
	pipeline failsafe.Executor[*http.Response]
	logger   zerolog.Logger
}

// NewClient creates an explorer client with retry on network errors, 5xx
// and 429, and a circuit breaker on repeated 5xx.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	retryPolicy := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled)
			}
			return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		}).
		WithBackoff(100*time.Millisecond, 2*time.Second).
		WithMaxRetries(3).
		Build()

	breaker := circuitbreaker.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode >= 500
		}).
		WithFailureThresholdRatio(5, 10).
		WithDelay(10 * time.Second).
		Build()

	return &Client{
		http:     &http.Client{Timeout: timeout},
		baseURL:  baseURL,
		apiKey:   apiKey,
		pipeline: failsafe.With[*http.Response](retryPolicy, breaker),
		logger:   logger,
	}
}

// RecentTransactions returns the newest transactions for address, newest
// first. A response whose status is not "1" yields an empty list.
func (c *Client) RecentTransactions(ctx context.Context, address string, page, offset int) ([]Transaction, error) {
	if page <= 0 {
		page = 1
	}
	if offset <= 0 {
		offset = 10
	}

	params := url.Values{
		"module":     {"account"},
		"action":     {"txlist"},
		"address":    {address},
		"startblock": {"0"},
		"endblock":   {"99999999"},
		"page":       {strconv.Itoa(page)},
		"offset":     {strconv.Itoa(offset)},
		"sort":       {"desc"},
	}
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp txListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode txlist: %w", err)
	}
	if resp.Status != "1" {
		c.logger.Debug().
			Str("address", address).
			Str("message", resp.Message).
			Msg("explorer returned no transactions")
		return []Transaction{}, nil
	}

	var raws []rawTx
	if err := json.Unmarshal(resp.Result, &raws); err != nil {
		// Status "1" with a non-array result is treated as empty.
		return []Transaction{}, nil
	}

	out := make([]Transaction, 0, len(raws))
	for _, r := range raws {
		out = append(out, normalize(r))
	}
	return out, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.pipeline.GetWithExecution(func(exec failsafe.Execution[*http.Response]) (*http.Response, error) {
		return c.http.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("explorer request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read explorer response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: body}
	}
	return body, nil
}

func normalize(r rawTx) Transaction {
	ts, _ := strconv.ParseInt(r.TimeStamp, 10, 64)
	block, _ := strconv.ParseUint(r.BlockNumber, 10, 64)

	methodID := r.MethodID
	if methodID == "" && len(r.Input) >= 10 {
		methodID = r.Input[:10]
	} else if methodID == "" {
		methodID = r.Input
	}

	fn, _, _ := strings.Cut(r.FunctionName, "(")

	return Transaction{
		Hash:         r.Hash,
		From:         r.From,
		To:           r.To,
		Value:        r.Value,
		Timestamp:    ts,
		BlockNumber:  block,
		MethodID:     methodID,
		FunctionName: fn,
		IsError:      r.IsError == "1",
	}
}

// TxURL links to a transaction on etherscan.io.
func TxURL(hash string) string { return etherscanTxURL + hash }

// AddressURL links to an address on etherscan.io.
func AddressURL(address string) string { return etherscanAddURL + address }

// DeBankURL links to an address's DeBank profile.
func DeBankURL(address string) string { return debankURL + address }
