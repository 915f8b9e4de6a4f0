package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/opolis/payledger/internal/ledger"
	"github.com/opolis/payledger/pkg/client"
	"github.com/opolis/payledger/pkg/units"
)

// parseAddress accepts a hex address or "native".
func parseAddress(s string) (common.Address, error) {
	if strings.EqualFold(s, "native") {
		return ledger.NativeAsset, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// parsePayrollEntry parses "id:asset[:amount]".
func parsePayrollEntry(s string, decimals int32) (client.PayrollWithdrawal, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return client.PayrollWithdrawal{}, fmt.Errorf("payroll entry %q: want id:asset[:amount]", s)
	}
	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return client.PayrollWithdrawal{}, fmt.Errorf("payroll entry %q: invalid id: %w", s, err)
	}
	asset, amount, err := parseAssetAmount(parts[1:], decimals)
	if err != nil {
		return client.PayrollWithdrawal{}, fmt.Errorf("payroll entry %q: %w", s, err)
	}
	return client.PayrollWithdrawal{ID: id, Asset: asset, Amount: amount}, nil
}

// parseStakeEntry parses "member:sequence:asset[:amount]".
func parseStakeEntry(s string, decimals int32) (client.StakeWithdrawal, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return client.StakeWithdrawal{}, fmt.Errorf("stake entry %q: want member:sequence:asset[:amount]", s)
	}
	member, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return client.StakeWithdrawal{}, fmt.Errorf("stake entry %q: invalid member id: %w", s, err)
	}
	seq, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return client.StakeWithdrawal{}, fmt.Errorf("stake entry %q: invalid sequence: %w", s, err)
	}
	asset, amount, err := parseAssetAmount(parts[2:], decimals)
	if err != nil {
		return client.StakeWithdrawal{}, fmt.Errorf("stake entry %q: %w", s, err)
	}
	return client.StakeWithdrawal{MemberID: member, Sequence: seq, Asset: asset, Amount: amount}, nil
}

func parseAssetAmount(parts []string, decimals int32) (common.Address, *uint256.Int, error) {
	asset, err := parseAddress(parts[0])
	if err != nil {
		return common.Address{}, nil, err
	}
	if len(parts) == 1 {
		return asset, nil, nil
	}
	amount, err := units.ParseUnits(parts[1], decimals)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("invalid amount: %w", err)
	}
	return asset, amount, nil
}
