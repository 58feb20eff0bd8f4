// Package rpcclient is a typed wrapper over a Starknet node's JSON-RPC
// interface (component C1): block height, paged event logs, class/ABI
// fetch, and block timestamps, all behind one retry/backoff policy.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"

	"github.com/textileio/starknet-indexer/internal/addr"
	"github.com/textileio/starknet-indexer/internal/domain"
	"github.com/textileio/starknet-indexer/pkg/apierrors"
)

// Client is a JSON-RPC client for one Starknet node endpoint.
type Client struct {
	log        zerolog.Logger
	httpClient *http.Client
	endpoint   string
	retry      RetryPolicy

	// timestamps is held by pointer so WithMaxRetries can hand out a shallow
	// copy of Client that shares the same cache rather than copying a mutex.
	timestamps *timestampCache
}

type timestampCache struct {
	mu    sync.Mutex
	cache map[uint64]time.Time
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client (e.g. for custom timeouts
// or transports in tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// New builds a Client posting JSON-RPC requests to endpoint.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		log:        logger.With().Str("component", "rpcclient").Logger(),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		endpoint:   endpoint,
		retry:      DefaultRetryPolicy(),
		timestamps: &timestampCache{cache: make(map[uint64]time.Time)},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// WithMaxRetries returns a shallow copy of c whose retry policy's MaxRetries
// is overridden, sharing the same HTTP client and timestamp cache. Used to
// apply a per-contract max_retries override without constructing a whole new
// client per contract.
func (c *Client) WithMaxRetries(n uint64) *Client {
	if n == 0 {
		return c
	}
	scoped := *c
	scoped.retry.MaxRetries = n
	return &scoped
}

// LatestBlock returns the node's current chain tip.
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	var result uint64
	if err := c.call(ctx, "starknet_blockNumber", struct{}{}, &result); err != nil {
		return 0, err
	}
	return result, nil
}

// GetEventsPage fetches one page of events for contractAddress between
// fromBlock and toBlock, continuing from continuationToken when non-empty.
// The caller drives pagination: keep calling with the returned token until
// it comes back empty.
func (c *Client) GetEventsPage(
	ctx context.Context,
	contractAddress addr.Address,
	fromBlock, toBlock uint64,
	continuationToken string,
	chunkSize int,
) ([]domain.RawEvent, string, error) {
	params := getEventsParams{Filter: eventFilter{
		FromBlock:         blockIDFor(fromBlock),
		ToBlock:           blockIDFor(toBlock),
		Address:           contractAddress.String(),
		ContinuationToken: continuationToken,
		ChunkSize:         chunkSize,
	}}

	var result getEventsResult
	if err := c.call(ctx, "starknet_getEvents", params, &result); err != nil {
		return nil, "", err
	}

	events := make([]domain.RawEvent, len(result.Events))
	for i, e := range result.Events {
		contract, err := addr.Normalize(e.FromAddress)
		if err != nil {
			return nil, "", apierrors.Wrap(apierrors.InvalidAddress, "normalizing event source address", err)
		}
		events[i] = domain.RawEvent{
			ContractAddress: contract,
			Keys:            e.Keys,
			Data:            e.Data,
			BlockNumber:     e.BlockNumber,
			TransactionHash: e.TransactionHash,
			LogIndexInTxn:   uint32(i),
		}
	}
	return events, result.ContinuationToken, nil
}

// IterateEvents drives GetEventsPage to exhaustion, invoking each for every
// page in order. It stops at the first error, including one returned by
// each itself.
func (c *Client) IterateEvents(
	ctx context.Context,
	contractAddress addr.Address,
	fromBlock, toBlock uint64,
	chunkSize int,
	each func([]domain.RawEvent) error,
) error {
	token := ""
	for {
		page, next, err := c.GetEventsPage(ctx, contractAddress, fromBlock, toBlock, token, chunkSize)
		if err != nil {
			return err
		}
		if len(page) > 0 {
			if err := each(page); err != nil {
				return err
			}
		}
		if next == "" {
			return nil
		}
		token = next
	}
}

// GetClassAbi resolves contractAddress's declared class as of blockNumber
// and returns its raw ABI JSON. Implements abiregistry.ClassFetcher.
func (c *Client) GetClassAbi(ctx context.Context, contractAddress addr.Address, blockNumber uint64) ([]byte, error) {
	params := getClassAtParams{
		BlockID:         blockIDFor(blockNumber),
		ContractAddress: contractAddress.String(),
	}
	var class rpcContractClass
	if err := c.call(ctx, "starknet_getClassAt", params, &class); err != nil {
		return nil, err
	}
	raw, err := class.RawABI()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.AbiUnavailable, "decoding class abi", err)
	}
	if len(raw) == 0 {
		return nil, apierrors.New(apierrors.AbiUnavailable, fmt.Sprintf("node returned no abi for %s", contractAddress))
	}
	return raw, nil
}

// GetBlockTimestamp returns blockNumber's header timestamp, cached for the
// life of this Client since a block's timestamp never changes once final.
func (c *Client) GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	c.timestamps.mu.Lock()
	if t, ok := c.timestamps.cache[blockNumber]; ok {
		c.timestamps.mu.Unlock()
		return t, nil
	}
	c.timestamps.mu.Unlock()

	params := getBlockParams{BlockID: blockIDFor(blockNumber)}
	var header rpcBlockHeader
	if err := c.call(ctx, "starknet_getBlockWithTxHashes", params, &header); err != nil {
		return time.Time{}, err
	}
	t := time.Unix(header.Timestamp, 0).UTC()

	c.timestamps.mu.Lock()
	c.timestamps.cache[blockNumber] = t
	c.timestamps.mu.Unlock()
	return t, nil
}

// call executes one JSON-RPC method with the client's retry policy,
// classifying failures exactly as spec §4.2 requires: HTTP 429 and
// transport/5xx errors retry (429 doubles the next wait), other 4xx are
// fatal, and exhaustion surfaces RpcUnavailable wrapping the last cause.
func (c *Client) call(ctx context.Context, method string, params, out interface{}) error {
	eb := c.retry.backOff()

	var lastErr error
	var doubleNext bool
	for attempt := uint64(0); ; attempt++ {
		raw, status, err := c.post(ctx, method, params)
		if err == nil && status == http.StatusOK {
			return decodeEnvelope(raw, out)
		}

		if err == nil {
			err = fmt.Errorf("unexpected http status %d", status)
		}

		if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
			return apierrors.Wrap(apierrors.FatalRpc, fmt.Sprintf("%s returned status %d", method, status), err)
		}

		lastErr = err
		doubleNext = status == http.StatusTooManyRequests

		wait := eb.NextBackOff()
		if wait == backoff.Stop {
			c.log.Warn().Str("method", method).Uint64("attempts", attempt+1).Err(lastErr).Msg("rpc retries exhausted")
			return apierrors.Wrap(apierrors.RpcUnavailable, fmt.Sprintf("%s exhausted retries", method), lastErr)
		}
		if doubleNext {
			wait *= 2
		}
		c.log.Warn().
			Str("method", method).
			Uint64("attempt", attempt+1).
			Dur("wait", wait).
			Err(err).
			Msg("retrying rpc call")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) post(ctx context.Context, method string, params interface{}) ([]byte, int, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return nil, 0, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response body: %w", err)
	}
	return raw, resp.StatusCode, nil
}

func decodeEnvelope(raw []byte, out interface{}) error {
	var env rpcResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decoding rpc envelope: %w", err)
	}
	if env.Error != nil {
		return apierrors.Wrap(apierrors.FatalRpc, "node returned an rpc error", env.Error)
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decoding rpc result: %w", err)
	}
	return nil
}
