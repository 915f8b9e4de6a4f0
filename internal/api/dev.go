package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/opolis/payledger/internal/auth"
	"github.com/opolis/payledger/internal/vault"
	"go.uber.org/zap"
)

// DevHandler exposes faucet endpoints for local development: minting test
// balances and approving the custody account to pull them.
type DevHandler struct {
	faucet  vault.Faucet
	custody common.Address
	tokens  *auth.TokenIssuer
	logger  *zap.Logger
}

// NewDevHandler creates a new DevHandler. custody is the default spender
// for approvals.
func NewDevHandler(f vault.Faucet, custody common.Address, tokens *auth.TokenIssuer, logger *zap.Logger) *DevHandler {
	return &DevHandler{faucet: f, custody: custody, tokens: tokens, logger: logger}
}

// Register mounts the dev routes on the given router group.
func (h *DevHandler) Register(rg *gin.RouterGroup) {
	dev := rg.Group("/dev", auth.RequireCaller(h.tokens))
	{
		dev.POST("/mint", h.Mint)
		dev.POST("/approve", h.Approve)
	}
}

// Mint handles POST /dev/mint. The recipient defaults to the caller.
func (h *DevHandler) Mint(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		badRequest(c, err)
		return
	}
	to := auth.CallerFromCtx(c)
	if req.To != "" {
		if to, err = parseAddress("to", req.To); err != nil {
			badRequest(c, err)
			return
		}
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := h.faucet.Mint(c.Request.Context(), asset, to, amount); err != nil {
		writeError(c, h.logger, "dev_mint", err)
		return
	}
	h.logger.Info("dev mint", zap.Stringer("asset", asset), zap.Stringer("to", to), zap.Stringer("amount", amount))
	c.JSON(http.StatusOK, gin.H{"asset": asset, "to": to, "amount": amount})
}

// Approve handles POST /dev/approve. The owner is the caller; the spender
// defaults to the ledger's custody account.
func (h *DevHandler) Approve(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		badRequest(c, err)
		return
	}
	spender := h.custody
	if req.Spender != "" {
		if spender, err = parseAddress("spender", req.Spender); err != nil {
			badRequest(c, err)
			return
		}
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		badRequest(c, err)
		return
	}

	owner := auth.CallerFromCtx(c)
	if err := h.faucet.Approve(c.Request.Context(), asset, owner, spender, amount); err != nil {
		writeError(c, h.logger, "dev_approve", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset": asset, "owner": owner, "spender": spender, "amount": amount})
}
