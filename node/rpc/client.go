package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"smartcoin.dev/node/consensus"
	"smartcoin.dev/node/node"
	"smartcoin.dev/node/node/store"
)

// Client talks to a Server. It satisfies wallet.Node.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// RemoteError is a non-2xx answer from the server.
type RemoteError struct {
	Status int
	Msg    string
	Code   consensus.ErrorCode
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("rpc %d: %s: %s", e.Status, e.Code, e.Msg)
	}
	return fmt.Sprintf("rpc %d: %s", e.Status, e.Msg)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode/100 != 2 {
		var e errorResponse
		if jerr := json.Unmarshal(raw, &e); jerr != nil || e.Error == "" {
			return &RemoteError{Status: resp.StatusCode, Msg: strings.TrimSpace(string(raw))}
		}
		return &RemoteError{Status: resp.StatusCode, Msg: e.Error, Code: consensus.ErrorCode(e.ErrorCode)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, "application/json", body, out)
}

// PushTx submits a bundle. A rejected bundle comes back as StatusFailed with a
// *consensus.TxError.
func (c *Client) PushTx(ctx context.Context, bundle *consensus.SpendBundle) (node.InclusionStatus, error) {
	raw, err := bundle.Bytes()
	if err != nil {
		return node.StatusFailed, err
	}
	var resp PushTxResponse
	if err := c.do(ctx, http.MethodPost, "/push_tx", ContentTypeCBOR, raw, &resp); err != nil {
		return node.StatusFailed, err
	}
	if resp.Error != "" {
		return resp.Status, &consensus.TxError{Code: consensus.ErrorCode(resp.ErrorCode), Msg: resp.Error}
	}
	return resp.Status, nil
}

func (c *Client) GetCoinRecordsByPuzzleHash(ctx context.Context, ph consensus.Hash, includeSpent bool) ([]consensus.CoinRecord, error) {
	var resp coinRecordsResponse
	err := c.postJSON(ctx, "/get_coin_records_by_puzzle_hash", coinRecordsByPuzzleHashRequest{PuzzleHash: ph, IncludeSpentCoins: includeSpent}, &resp)
	return resp.CoinRecords, err
}

// GetCoinRecordByName reports ok=false when the coin is unknown.
func (c *Client) GetCoinRecordByName(ctx context.Context, id consensus.Hash) (consensus.CoinRecord, bool, error) {
	var resp coinRecordResponse
	err := c.postJSON(ctx, "/get_coin_record_by_name", coinNameRequest{Name: id}, &resp)
	var re *RemoteError
	if errors.As(err, &re) && re.Status == http.StatusNotFound {
		return consensus.CoinRecord{}, false, nil
	}
	if err != nil {
		return consensus.CoinRecord{}, false, err
	}
	return resp.CoinRecord, true, nil
}

func (c *Client) GetPuzzleAndSolution(ctx context.Context, coinID consensus.Hash) (consensus.CoinSpend, error) {
	var resp puzzleAndSolutionResponse
	err := c.postJSON(ctx, "/get_puzzle_and_solution", puzzleAndSolutionRequest{CoinID: coinID}, &resp)
	return resp.CoinSolution, err
}

// FarmBlock farms blocks paying to ph, or to the server's reward puzzle hash
// when ph is nil.
func (c *Client) FarmBlock(ctx context.Context, blocks int, ph *consensus.Hash) ([]*store.BlockRecord, error) {
	var resp farmBlockResponse
	err := c.postJSON(ctx, "/farm_block", farmBlockRequest{Blocks: blocks, PuzzleHash: ph}, &resp)
	return resp.Blocks, err
}

func (c *Client) PassTime(ctx context.Context, seconds uint64) (node.BlockchainState, error) {
	var resp blockchainStateResponse
	err := c.postJSON(ctx, "/pass_time", passTimeRequest{Seconds: seconds}, &resp)
	return resp.BlockchainState, err
}

func (c *Client) GetBlockchainState(ctx context.Context) (node.BlockchainState, error) {
	var resp blockchainStateResponse
	err := c.do(ctx, http.MethodGet, "/get_blockchain_state", "", nil, &resp)
	return resp.BlockchainState, err
}
