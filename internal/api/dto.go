package api

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/opolis/payledger/internal/ledger"
)

// Amounts travel as base-unit decimal strings; 256-bit values do not fit in
// a JSON number.

type payrollRequest struct {
	Asset     string `json:"asset" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	PayrollID uint64 `json:"payroll_id"`
}

type stakeRequest struct {
	Asset    string `json:"asset" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
	MemberID uint64 `json:"member_id"`
	Value    string `json:"value"` // native value attached to the call
}

type nativeRequest struct {
	Value string `json:"value" binding:"required"`
}

type withdrawPayrollsRequest struct {
	IDs     []uint64 `json:"ids"`
	Assets  []string `json:"assets"`
	Amounts []string `json:"amounts"`
}

type withdrawStakesRequest struct {
	IDs       []uint64 `json:"ids"`
	Sequences []uint64 `json:"sequences"`
	Assets    []string `json:"assets"`
	Amounts   []string `json:"amounts"`
}

type addressRequest struct {
	Address string `json:"address" binding:"required"`
}

type assetsRequest struct {
	Assets []string `json:"assets" binding:"required"`
}

type mintRequest struct {
	Asset  string `json:"asset" binding:"required"`
	To     string `json:"to"`
	Amount string `json:"amount" binding:"required"`
}

type approveRequest struct {
	Asset   string `json:"asset" binding:"required"`
	Spender string `json:"spender"`
	Amount  string `json:"amount" binding:"required"`
}

type withdrawResponse struct {
	Events []ledger.Event `json:"events"`
}

// parseAddress accepts a hex address or "native" for the native sentinel.
func parseAddress(field, s string) (common.Address, error) {
	if strings.EqualFold(s, "native") {
		return ledger.NativeAsset, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, s)
	}
	return common.HexToAddress(s), nil
}

func parseAddresses(field string, in []string) ([]common.Address, error) {
	out := make([]common.Address, len(in))
	for i, s := range in {
		addr, err := parseAddress(fmt.Sprintf("%s[%d]", field, i), s)
		if err != nil {
			return nil, err
		}
		out[i] = addr
	}
	return out, nil
}

func parseAmount(field, s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid amount %q: %w", field, s, err)
	}
	return v, nil
}

// parseOptionalAmount treats an empty string as absent.
func parseOptionalAmount(field, s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	return parseAmount(field, s)
}

func parseAmounts(field string, in []string) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(in))
	for i, s := range in {
		v, err := parseOptionalAmount(fmt.Sprintf("%s[%d]", field, i), s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
