package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opolis/payledger/internal/ledger"
	"github.com/opolis/payledger/internal/vault"
	"go.uber.org/zap"
)

// statusFor maps an operation error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotPermitted):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrDuplicatePayroll):
		return http.StatusConflict
	case errors.Is(err, vault.ErrInsufficientBalance),
		errors.Is(err, vault.ErrInsufficientAllowance),
		errors.Is(err, vault.ErrOverflow):
		return http.StatusUnprocessableEntity
	case ledger.Kind(err) != "":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// codeFor returns the stable error code reported to clients.
func codeFor(err error) string {
	if kind := ledger.Kind(err); kind != "" {
		return kind
	}
	switch {
	case errors.Is(err, vault.ErrInsufficientBalance):
		return "InsufficientBalance"
	case errors.Is(err, vault.ErrInsufficientAllowance):
		return "InsufficientAllowance"
	case errors.Is(err, vault.ErrOverflow):
		return "Overflow"
	}
	return "Internal"
}

// writeError reports a failed ledger operation and counts it under op.
func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status := statusFor(err)
	code := codeFor(err)
	recordOperation(op, code)

	if status == http.StatusInternalServerError {
		logger.Error("ledger operation failed", zap.String("op", op), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error", "code": code})
		return
	}

	body := gin.H{"error": err.Error(), "code": code}
	var entryErr *ledger.EntryError
	if errors.As(err, &entryErr) {
		body["index"] = entryErr.Index
	}
	c.JSON(status, body)
}

// badRequest reports a malformed request body or parameter.
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "BadRequest"})
}
