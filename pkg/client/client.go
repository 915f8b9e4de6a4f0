package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string // ledger error kind, e.g. "DuplicatePayroll"
	Message string
	Index   *int // failing batch entry, when reported
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// Event mirrors a ledger audit event.
type Event struct {
	Kind      string           `json:"kind"`
	Caller    common.Address   `json:"caller"`
	Asset     common.Address   `json:"asset"`
	PayrollID uint64           `json:"payroll_id,omitempty"`
	MemberID  uint64           `json:"member_id,omitempty"`
	Sequence  uint64           `json:"sequence,omitempty"`
	Amount    *uint256.Int     `json:"amount,omitempty"`
	Old       common.Address   `json:"old"`
	New       common.Address   `json:"new"`
	Assets    []common.Address `json:"assets,omitempty"`
}

// Payroll is a payroll record.
type Payroll struct {
	PayrollID uint64         `json:"payroll_id"`
	Asset     common.Address `json:"asset"`
	Remaining *uint256.Int   `json:"remaining"`
	Settled   bool           `json:"settled"`
}

// Stake is a stake record.
type Stake struct {
	MemberID  uint64         `json:"member_id"`
	Sequence  uint64         `json:"sequence"`
	Asset     common.Address `json:"asset"`
	Remaining *uint256.Int   `json:"remaining"`
	Settled   bool           `json:"settled"`
}

// Config is the ledger's current configuration.
type Config struct {
	Destination common.Address   `json:"destination"`
	Admin       common.Address   `json:"admin"`
	Helper      common.Address   `json:"helper"`
	Custody     common.Address   `json:"custody"`
	Assets      []common.Address `json:"assets"`
}

// AssetInfo reports whitelist status and custody balance of one asset.
type AssetInfo struct {
	Asset       common.Address `json:"asset"`
	Whitelisted bool           `json:"whitelisted"`
	Custody     *uint256.Int   `json:"custody"`
}

// PayrollWithdrawal is one entry of a payroll withdrawal batch. Amount is
// informational and may be nil.
type PayrollWithdrawal struct {
	ID     uint64
	Asset  common.Address
	Amount *uint256.Int
}

// StakeWithdrawal is one entry of a stake withdrawal batch.
type StakeWithdrawal struct {
	MemberID uint64
	Sequence uint64
	Asset    common.Address
	Amount   *uint256.Int
}

// JournalEntry is one hash-chained journal record.
type JournalEntry struct {
	Index     int             `json:"index"`
	Timestamp time.Time       `json:"timestamp"`
	Action    string          `json:"action"`
	Actor     string          `json:"actor"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	DataHash  string          `json:"data_hash"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

// Client talks to a payledger server.
type Client struct {
	base        string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches a caller token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// New creates a Client for the server at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SubmitPayroll records a payroll funded from the caller's approved balance.
func (c *Client) SubmitPayroll(ctx context.Context, asset common.Address, amount *uint256.Int, payrollID uint64) (*Payroll, error) {
	var out Payroll
	err := c.call(ctx, http.MethodPost, "/payrolls", map[string]any{
		"asset":      asset.Hex(),
		"amount":     dec(amount),
		"payroll_id": payrollID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitStake records a stake and returns it with its sequence number. value
// is the native value attached to the call; pass nil for token stakes.
func (c *Client) SubmitStake(ctx context.Context, asset common.Address, amount *uint256.Int, memberID uint64, value *uint256.Int) (*Stake, error) {
	body := map[string]any{
		"asset":     asset.Hex(),
		"amount":    dec(amount),
		"member_id": memberID,
	}
	if value != nil {
		body["value"] = value.Dec()
	}
	var out Stake
	if err := c.call(ctx, http.MethodPost, "/stakes", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WithdrawPayrolls forwards the listed payrolls to the destination. Admin only.
func (c *Client) WithdrawPayrolls(ctx context.Context, entries []PayrollWithdrawal) ([]Event, error) {
	ids := make([]uint64, len(entries))
	assets := make([]string, len(entries))
	amounts := make([]string, len(entries))
	for i, e := range entries {
		ids[i], assets[i], amounts[i] = e.ID, e.Asset.Hex(), optDec(e.Amount)
	}
	var out struct {
		Events []Event `json:"events"`
	}
	err := c.call(ctx, http.MethodPost, "/admin/payrolls/withdraw", map[string]any{
		"ids": ids, "assets": assets, "amounts": amounts,
	}, &out)
	return out.Events, err
}

// WithdrawStakes forwards the listed stakes to the destination. Admin only.
func (c *Client) WithdrawStakes(ctx context.Context, entries []StakeWithdrawal) ([]Event, error) {
	ids := make([]uint64, len(entries))
	seqs := make([]uint64, len(entries))
	assets := make([]string, len(entries))
	amounts := make([]string, len(entries))
	for i, e := range entries {
		ids[i], seqs[i], assets[i], amounts[i] = e.MemberID, e.Sequence, e.Asset.Hex(), optDec(e.Amount)
	}
	var out struct {
		Events []Event `json:"events"`
	}
	err := c.call(ctx, http.MethodPost, "/admin/stakes/withdraw", map[string]any{
		"ids": ids, "sequences": seqs, "assets": assets, "amounts": amounts,
	}, &out)
	return out.Events, err
}

// ClearBalance sweeps the primary asset's custody balance. Admin only. It
// returns nil when no asset is whitelisted.
func (c *Client) ClearBalance(ctx context.Context) (*Event, error) {
	var out struct {
		Cleared bool   `json:"cleared"`
		Event   *Event `json:"event"`
	}
	if err := c.call(ctx, http.MethodPost, "/admin/clear-balance", nil, &out); err != nil {
		return nil, err
	}
	return out.Event, nil
}

// AddAssets whitelists assets. Admin only.
func (c *Client) AddAssets(ctx context.Context, assets []common.Address) ([]common.Address, error) {
	in := make([]string, len(assets))
	for i, a := range assets {
		in[i] = a.Hex()
	}
	var out struct {
		Assets []common.Address `json:"assets"`
	}
	err := c.call(ctx, http.MethodPost, "/admin/assets", map[string]any{"assets": in}, &out)
	return out.Assets, err
}

// UpdateAdmin replaces the admin. Admin only.
func (c *Client) UpdateAdmin(ctx context.Context, addr common.Address) (*Config, error) {
	return c.updateRole(ctx, "admin", addr)
}

// UpdateHelper replaces the helper. Admin only.
func (c *Client) UpdateHelper(ctx context.Context, addr common.Address) (*Config, error) {
	return c.updateRole(ctx, "helper", addr)
}

// UpdateDestination replaces the withdrawal destination. Admin only.
func (c *Client) UpdateDestination(ctx context.Context, addr common.Address) (*Config, error) {
	return c.updateRole(ctx, "destination", addr)
}

func (c *Client) updateRole(ctx context.Context, role string, addr common.Address) (*Config, error) {
	var out Config
	if err := c.call(ctx, http.MethodPut, "/admin/"+role, map[string]any{"address": addr.Hex()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Payroll fetches a payroll record.
func (c *Client) Payroll(ctx context.Context, id uint64) (*Payroll, error) {
	var out Payroll
	if err := c.call(ctx, http.MethodGet, "/payrolls/"+strconv.FormatUint(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stake fetches one stake of a member.
func (c *Client) Stake(ctx context.Context, memberID, sequence uint64) (*Stake, error) {
	var out Stake
	path := fmt.Sprintf("/members/%d/stakes/%d", memberID, sequence)
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StakeCount returns how many stakes a member has submitted.
func (c *Client) StakeCount(ctx context.Context, memberID uint64) (uint64, error) {
	var out struct {
		Count uint64 `json:"count"`
	}
	err := c.call(ctx, http.MethodGet, fmt.Sprintf("/members/%d/stakes", memberID), nil, &out)
	return out.Count, err
}

// Config fetches the ledger configuration.
func (c *Client) Config(ctx context.Context) (*Config, error) {
	var out Config
	if err := c.call(ctx, http.MethodGet, "/config", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Asset fetches whitelist status and custody balance of asset.
func (c *Client) Asset(ctx context.Context, asset common.Address) (*AssetInfo, error) {
	var out AssetInfo
	if err := c.call(ctx, http.MethodGet, "/assets/"+asset.Hex(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JournalEntries lists journal entries starting at from.
func (c *Client) JournalEntries(ctx context.Context, from, limit int) ([]JournalEntry, error) {
	var out struct {
		Entries []JournalEntry `json:"entries"`
	}
	path := fmt.Sprintf("/journal/entries?from=%d&limit=%d", from, limit)
	err := c.call(ctx, http.MethodGet, path, nil, &out)
	return out.Entries, err
}

// VerifyJournal asks the server to walk the journal hash chain. A broken
// chain is reported through the returned reason, not as an error.
func (c *Client) VerifyJournal(ctx context.Context) (valid bool, reason string, err error) {
	var out struct {
		Valid bool   `json:"valid"`
		Error string `json:"error"`
	}
	err = c.call(ctx, http.MethodGet, "/journal/verify", nil, &out)
	return out.Valid, out.Error, err
}

// Mint credits test funds through the server's dev faucet. A zero to
// credits the caller.
func (c *Client) Mint(ctx context.Context, asset, to common.Address, amount *uint256.Int) error {
	body := map[string]any{"asset": asset.Hex(), "amount": dec(amount)}
	if to != (common.Address{}) {
		body["to"] = to.Hex()
	}
	return c.call(ctx, http.MethodPost, "/dev/mint", body, nil)
}

// Approve lets spender (the custody account when zero) pull the caller's
// funds through the server's dev faucet.
func (c *Client) Approve(ctx context.Context, asset, spender common.Address, amount *uint256.Int) error {
	body := map[string]any{"asset": asset.Hex(), "amount": dec(amount)}
	if spender != (common.Address{}) {
		body["spender"] = spender.Hex()
	}
	return c.call(ctx, http.MethodPost, "/dev/approve", body, nil)
}

// call sends body as JSON to /api/v1+path and decodes the response into out.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+"/api/v1"+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var wire struct {
			Error string `json:"error"`
			Code  string `json:"code"`
			Index *int   `json:"index"`
		}
		if json.Unmarshal(respBody, &wire) == nil && wire.Error != "" {
			apiErr.Message, apiErr.Code, apiErr.Index = wire.Error, wire.Code, wire.Index
		}
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func optDec(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}
