// Package api exposes the ledger over HTTP with Gin.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/opolis/payledger/internal/auth"
	"github.com/opolis/payledger/internal/ledger"
	"go.uber.org/zap"
)

// LedgerHandler exposes the ledger operations. Every mutating route needs a
// caller token; admin routes are additionally gated by the ledger itself.
type LedgerHandler struct {
	ledger *ledger.Ledger
	tokens *auth.TokenIssuer
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(l *ledger.Ledger, tokens *auth.TokenIssuer, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: l, tokens: tokens, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/config", h.GetConfig)
	rg.GET("/assets", h.ListAssets)
	rg.GET("/assets/:asset", h.GetAsset)
	rg.GET("/payrolls/:id", h.GetPayroll)
	rg.GET("/members/:member/stakes", h.GetStakeCount)
	rg.GET("/members/:member/stakes/:seq", h.GetStake)

	authed := rg.Group("", auth.RequireCaller(h.tokens))
	{
		authed.POST("/payrolls", h.SubmitPayroll)
		authed.POST("/stakes", h.SubmitStake)
		authed.POST("/native", h.ReceiveNative)
	}

	admin := authed.Group("/admin")
	{
		admin.POST("/payrolls/withdraw", h.WithdrawPayrolls)
		admin.POST("/stakes/withdraw", h.WithdrawStakes)
		admin.POST("/clear-balance", h.ClearBalance)
		admin.POST("/assets", h.AddAssets)
		admin.PUT("/admin", h.UpdateAdmin)
		admin.PUT("/helper", h.UpdateHelper)
		admin.PUT("/destination", h.UpdateDestination)
	}
}

// SubmitPayroll handles POST /payrolls.
func (h *LedgerHandler) SubmitPayroll(c *gin.Context) {
	const op = "submit_payroll"
	var req payrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		badRequest(c, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := h.ledger.SubmitPayroll(c.Request.Context(), auth.CallerFromCtx(c), asset, amount, req.PayrollID); err != nil {
		writeError(c, h.logger, op, err)
		return
	}
	recordOperation(op, "ok")

	rec, _ := h.ledger.Payroll(req.PayrollID)
	c.JSON(http.StatusCreated, payrollView(req.PayrollID, rec))
}

// SubmitStake handles POST /stakes.
func (h *LedgerHandler) SubmitStake(c *gin.Context) {
	const op = "submit_stake"
	var req stakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		badRequest(c, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		badRequest(c, err)
		return
	}
	value, err := parseOptionalAmount("value", req.Value)
	if err != nil {
		badRequest(c, err)
		return
	}

	seq, err := h.ledger.SubmitStake(c.Request.Context(), auth.CallerFromCtx(c), asset, amount, req.MemberID, value)
	if err != nil {
		writeError(c, h.logger, op, err)
		return
	}
	recordOperation(op, "ok")

	rec, _ := h.ledger.Stake(req.MemberID, seq)
	c.JSON(http.StatusCreated, stakeView(req.MemberID, seq, rec))
}

// ReceiveNative handles POST /native: a bare native transfer, which the
// ledger never accepts.
func (h *LedgerHandler) ReceiveNative(c *gin.Context) {
	const op = "receive_native"
	var req nativeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := h.ledger.ReceiveNative(c.Request.Context(), auth.CallerFromCtx(c), value); err != nil {
		writeError(c, h.logger, op, err)
		return
	}
	recordOperation(op, "ok")
	c.Status(http.StatusNoContent)
}

// WithdrawPayrolls handles POST /admin/payrolls/withdraw.
func (h *LedgerHandler) WithdrawPayrolls(c *gin.Context) {
	const op = "withdraw_payrolls"
	var req withdrawPayrollsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	assets, err := parseAddresses("assets", req.Assets)
	if err != nil {
		badRequest(c, err)
		return
	}
	amounts, err := parseAmounts("amounts", req.Amounts)
	if err != nil {
		badRequest(c, err)
		return
	}

	events, err := h.ledger.WithdrawPayrolls(c.Request.Context(), auth.CallerFromCtx(c), req.IDs, assets, amounts)
	if err != nil {
		writeError(c, h.logger, op, err)
		return
	}
	recordOperation(op, "ok")
	for _, ev := range events {
		recordWithdrawn("payroll", ev.Amount.IsZero())
	}
	c.JSON(http.StatusOK, withdrawResponse{Events: events})
}

// WithdrawStakes handles POST /admin/stakes/withdraw.
func (h *LedgerHandler) WithdrawStakes(c *gin.Context) {
	const op = "withdraw_stakes"
	var req withdrawStakesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	assets, err := parseAddresses("assets", req.Assets)
	if err != nil {
		badRequest(c, err)
		return
	}
	amounts, err := parseAmounts("amounts", req.Amounts)
	if err != nil {
		badRequest(c, err)
		return
	}

	events, err := h.ledger.WithdrawStakes(c.Request.Context(), auth.CallerFromCtx(c), req.IDs, req.Sequences, assets, amounts)
	if err != nil {
		writeError(c, h.logger, op, err)
		return
	}
	recordOperation(op, "ok")
	for _, ev := range events {
		recordWithdrawn("stake", ev.Amount.IsZero())
	}
	c.JSON(http.StatusOK, withdrawResponse{Events: events})
}

// ClearBalance handles POST /admin/clear-balance.
func (h *LedgerHandler) ClearBalance(c *gin.Context) {
	const op = "clear_balance"
	ev, err := h.ledger.ClearBalance(c.Request.Context(), auth.CallerFromCtx(c))
	if err != nil {
		writeError(c, h.logger, op, err)
		return
	}
	recordOperation(op, "ok")
	if ev == nil {
		c.JSON(http.StatusOK, gin.H{"cleared": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true, "event": ev})
}

// AddAssets handles POST /admin/assets.
func (h *LedgerHandler) AddAssets(c *gin.Context) {
	const op = "add_assets"
	var req assetsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	assets, err := parseAddresses("assets", req.Assets)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := h.ledger.AddAssets(c.Request.Context(), auth.CallerFromCtx(c), assets); err != nil {
		writeError(c, h.logger, op, err)
		return
	}
	recordOperation(op, "ok")
	c.JSON(http.StatusOK, gin.H{"assets": h.ledger.Config().Assets})
}

// UpdateAdmin handles PUT /admin/admin.
func (h *LedgerHandler) UpdateAdmin(c *gin.Context) {
	h.updateRole(c, "update_admin", h.ledger.UpdateAdmin)
}

// UpdateHelper handles PUT /admin/helper.
func (h *LedgerHandler) UpdateHelper(c *gin.Context) {
	h.updateRole(c, "update_helper", h.ledger.UpdateHelper)
}

// UpdateDestination handles PUT /admin/destination.
func (h *LedgerHandler) UpdateDestination(c *gin.Context) {
	h.updateRole(c, "update_destination", h.ledger.UpdateDestination)
}

func (h *LedgerHandler) updateRole(c *gin.Context, op string, update func(context.Context, common.Address, common.Address) error) {
	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := update(c.Request.Context(), auth.CallerFromCtx(c), addr); err != nil {
		writeError(c, h.logger, op, err)
		return
	}
	recordOperation(op, "ok")
	c.JSON(http.StatusOK, h.ledger.Config())
}

// GetConfig handles GET /config.
func (h *LedgerHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.ledger.Config())
}

// ListAssets handles GET /assets.
func (h *LedgerHandler) ListAssets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"assets": h.ledger.Config().Assets,
		"native": ledger.NativeAsset,
	})
}

// GetAsset handles GET /assets/:asset: whitelist status and custody balance.
func (h *LedgerHandler) GetAsset(c *gin.Context) {
	asset, err := parseAddress("asset", c.Param("asset"))
	if err != nil {
		badRequest(c, err)
		return
	}
	bal, err := h.ledger.CustodyBalance(c.Request.Context(), asset)
	if err != nil {
		h.logger.Error("custody balance", zap.Stringer("asset", asset), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query custody balance", "code": "Internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"asset":       asset,
		"whitelisted": h.ledger.IsWhitelisted(asset),
		"custody":     bal,
	})
}

// GetPayroll handles GET /payrolls/:id.
func (h *LedgerHandler) GetPayroll(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		badRequest(c, err)
		return
	}
	rec, ok := h.ledger.Payroll(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "payroll not found", "code": "NotFound"})
		return
	}
	c.JSON(http.StatusOK, payrollView(id, rec))
}

// GetStakeCount handles GET /members/:member/stakes.
func (h *LedgerHandler) GetStakeCount(c *gin.Context) {
	member, err := parseUintParam(c, "member")
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"member_id": member, "count": h.ledger.StakeCount(member)})
}

// GetStake handles GET /members/:member/stakes/:seq.
func (h *LedgerHandler) GetStake(c *gin.Context) {
	member, err := parseUintParam(c, "member")
	if err != nil {
		badRequest(c, err)
		return
	}
	seq, err := parseUintParam(c, "seq")
	if err != nil {
		badRequest(c, err)
		return
	}
	rec, ok := h.ledger.Stake(member, seq)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "stake not found", "code": "NotFound"})
		return
	}
	c.JSON(http.StatusOK, stakeView(member, seq, rec))
}

func parseUintParam(c *gin.Context, name string) (uint64, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return v, nil
}

func payrollView(id uint64, rec ledger.PayrollRecord) gin.H {
	return gin.H{
		"payroll_id": id,
		"asset":      rec.Asset,
		"remaining":  rec.Remaining,
		"settled":    rec.Remaining.IsZero(),
	}
}

func stakeView(member, seq uint64, rec ledger.StakeRecord) gin.H {
	return gin.H{
		"member_id": member,
		"sequence":  seq,
		"asset":     rec.Asset,
		"remaining": rec.Remaining,
		"settled":   rec.Remaining.IsZero(),
	}
}
