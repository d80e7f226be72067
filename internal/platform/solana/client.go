// Package solana implements the settlement-network interfaces against a
// Solana JSON-RPC endpoint. The read side reproduces the treasury-account
// balance-delta scan the platform has always used to detect deposits; the
// write side builds and signs SystemProgram transfers locally.
package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/parasfix/betsol/internal/domain"
)

// lamportsDec converts between the node's lamport amounts and SOL.
var lamportsDec = decimal.NewFromInt(lamportsPerSOL)

// Config holds connection parameters for the RPC client.
type Config struct {
	RPCURL     string
	Commitment string // defaults to "confirmed"
	Timeout    time.Duration
}

// Client talks JSON-RPC to a Solana node. With a Signer attached it also
// implements domain.ChainWriter.
type Client struct {
	rpcURL     string
	commitment string
	httpClient *http.Client
	signer     *Signer
	logger     *slog.Logger
}

// NewClient creates a read-only Client for the given endpoint.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	commitment := cfg.Commitment
	if commitment == "" {
		commitment = "confirmed"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		rpcURL:     cfg.RPCURL,
		commitment: commitment,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(slog.String("component", "solana")),
	}
}

// WithSigner attaches the treasury keypair, enabling SubmitTransfer and
// Balance.
func (c *Client) WithSigner(s *Signer) *Client {
	c.signer = s
	return c
}

// call performs one JSON-RPC request and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("solana: marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("solana: create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrNetworkFailure, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %s: status %d: %s", domain.ErrNetworkFailure, method, resp.StatusCode, string(body))
	}

	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", domain.ErrNetworkFailure, method, err)
	}
	if envelope.Error != nil {
		if strings.Contains(strings.ToLower(envelope.Error.Message), "insufficient") {
			return fmt.Errorf("%w: %s", domain.ErrInsufficientFunds, envelope.Error.Message)
		}
		return fmt.Errorf("%w: %s: rpc error %d: %s", domain.ErrNetworkFailure, method, envelope.Error.Code, envelope.Error.Message)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("solana: %s: unmarshal result: %w", method, err)
		}
	}
	return nil
}

// ListRecentTransfers returns the most recent inbound transfers to
// receivingAddress, newest first. Each signature is resolved to a full
// transaction and the receiving account's pre/post balance delta is the
// observed amount; transactions that failed on chain or moved nothing into
// the account are skipped. Signatures whose detail lookup fails are skipped
// for this poll only; they stay in the provider's history and are retried
// on the next cycle.
func (c *Client) ListRecentTransfers(ctx context.Context, receivingAddress string, limit int) ([]domain.Transfer, error) {
	if limit <= 0 {
		limit = 20
	}

	var sigs []signatureInfo
	err := c.call(ctx, "getSignaturesForAddress",
		[]any{receivingAddress, map[string]any{"limit": limit, "commitment": c.commitment}},
		&sigs,
	)
	if err != nil {
		return nil, err
	}

	transfers := make([]domain.Transfer, 0, len(sigs))
	for _, sig := range sigs {
		if len(sig.Err) > 0 && string(sig.Err) != "null" {
			continue
		}

		var tx transactionResult
		err := c.call(ctx, "getTransaction",
			[]any{sig.Signature, map[string]any{
				"encoding":                       "json",
				"commitment":                     c.commitment,
				"maxSupportedTransactionVersion": 0,
			}},
			&tx,
		)
		if err != nil {
			c.logger.WarnContext(ctx, "transaction lookup failed, will retry next poll",
				slog.String("signature", sig.Signature),
				slog.String("error", err.Error()),
			)
			continue
		}
		if tx.Meta == nil || len(tx.Meta.Err) > 0 && string(tx.Meta.Err) != "null" {
			continue
		}

		amount := receivedAmount(tx, receivingAddress)
		if !amount.IsPositive() {
			continue
		}

		source := ""
		if len(tx.Transaction.Message.AccountKeys) > 0 {
			// The fee payer is the first account and, for simple wallet
			// transfers, the sender.
			source = tx.Transaction.Message.AccountKeys[0]
		}

		observedAt := time.Now().UTC()
		switch {
		case tx.BlockTime != nil:
			observedAt = time.Unix(*tx.BlockTime, 0).UTC()
		case sig.BlockTime != nil:
			observedAt = time.Unix(*sig.BlockTime, 0).UTC()
		}

		transfers = append(transfers, domain.Transfer{
			Ref:        sig.Signature,
			Amount:     amount,
			Source:     source,
			ObservedAt: observedAt,
			Status:     domain.TransferStatusObserved,
		})
	}

	return transfers, nil
}

// receivedAmount computes how much SOL the receiving account gained in the
// transaction from its pre/post balance delta.
func receivedAmount(tx transactionResult, receivingAddress string) decimal.Decimal {
	keys := tx.Transaction.Message.AccountKeys
	for i, key := range keys {
		if key != receivingAddress {
			continue
		}
		if i >= len(tx.Meta.PreBalances) || i >= len(tx.Meta.PostBalances) {
			return decimal.Zero
		}
		pre := decimal.NewFromUint64(tx.Meta.PreBalances[i])
		post := decimal.NewFromUint64(tx.Meta.PostBalances[i])
		return post.Sub(pre).Div(lamportsDec)
	}
	return decimal.Zero
}

// SubmitTransfer sends amount SOL from the treasury to toAddress and returns
// the transaction signature. The signature is final once the node accepts
// the broadcast; confirmation depth is left to the configured commitment.
func (c *Client) SubmitTransfer(ctx context.Context, toAddress string, amount decimal.Decimal) (string, error) {
	if c.signer == nil {
		return "", fmt.Errorf("solana: submit transfer: no signer configured")
	}

	to, err := decodeAddress(toAddress)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidWallet, err)
	}

	lamports := amount.Mul(lamportsDec).IntPart()
	if lamports <= 0 {
		return "", fmt.Errorf("solana: submit transfer: non-positive amount %s", amount)
	}

	var bh blockhashResult
	if err := c.call(ctx, "getLatestBlockhash",
		[]any{map[string]any{"commitment": c.commitment}}, &bh); err != nil {
		return "", err
	}

	tx, err := buildTransferTx(c.signer, to, uint64(lamports), bh.Value.Blockhash)
	if err != nil {
		return "", err
	}

	var sig string
	err = c.call(ctx, "sendTransaction",
		[]any{base64.StdEncoding.EncodeToString(tx), map[string]any{
			"encoding":            "base64",
			"preflightCommitment": c.commitment,
		}},
		&sig,
	)
	if err != nil {
		return "", err
	}

	c.logger.InfoContext(ctx, "transfer submitted",
		slog.String("to", toAddress),
		slog.String("amount_sol", amount.String()),
		slog.String("signature", sig),
	)
	return sig, nil
}

// Balance returns the treasury account balance in SOL.
func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	if c.signer == nil {
		return decimal.Zero, fmt.Errorf("solana: balance: no signer configured")
	}
	var res balanceResult
	err := c.call(ctx, "getBalance",
		[]any{c.signer.Address(), map[string]any{"commitment": c.commitment}}, &res)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromUint64(res.Value).Div(lamportsDec), nil
}

// Compile-time interface checks.
var (
	_ domain.ChainReader    = (*Client)(nil)
	_ domain.ChainWriter    = (*Client)(nil)
	_ domain.TreasuryReader = (*Client)(nil)
)
