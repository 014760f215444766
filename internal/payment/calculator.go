// Package payment implements the builder-payment pricing formulas and
// the max_amount cap, all in 256-bit unsigned fixed-point arithmetic.
package payment

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/swapnilraj/atomic-bundler/internal/bundlerrors"
	"github.com/swapnilraj/atomic-bundler/internal/config"
)

// scale is 1e18, the fixed-point base k1 is scaled into before
// multiplying against U256 gas/fee quantities.
var scale = uint256.NewInt(1_000_000_000_000_000_000)

// Params are the inputs to a single payment calculation.
type Params struct {
	GasUsed               uint64
	BaseFeePerGas         *uint256.Int
	MaxPriorityFeePerGas  *uint256.Int
	Formula               config.Formula
	K1                    float64
	K2                    *uint256.Int
	MaxAmount             *uint256.Int
}

// Result is the outcome of a single payment calculation.
type Result struct {
	AmountWei     *uint256.Int
	Formula       config.Formula
	GasUsed       uint64
	BaseFeePerGas *uint256.Int
	WasCapped     bool
	CalculatedAt  time.Time
}

// Validate rejects parameter combinations that cannot be priced.
func Validate(p Params) error {
	if p.GasUsed == 0 {
		return bundlerrors.New(bundlerrors.KindInternal, "gas_used must not be zero")
	}
	if p.K1 < 0 {
		return bundlerrors.New(bundlerrors.KindInternal, "k1 must not be negative")
	}
	if p.MaxAmount == nil || p.MaxAmount.IsZero() {
		return bundlerrors.New(bundlerrors.KindInternal, "max_amount must not be zero")
	}
	return nil
}

// Calculate applies the configured formula, then the max_amount cap.
func Calculate(p Params) (*Result, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}

	var amount *uint256.Int
	var err error
	switch p.Formula {
	case config.FormulaFlat:
		amount = new(uint256.Int).Set(p.K2)
	case config.FormulaGas:
		amount, err = gasBased(p)
	case config.FormulaBasefee:
		amount, err = basefeeBased(p)
	default:
		return nil, bundlerrors.New(bundlerrors.KindInternal, "unknown payment formula")
	}
	if err != nil {
		return nil, err
	}

	wasCapped := amount.Cmp(p.MaxAmount) > 0
	final := amount
	if wasCapped {
		final = new(uint256.Int).Set(p.MaxAmount)
	}

	return &Result{
		AmountWei:     final,
		Formula:       p.Formula,
		GasUsed:       p.GasUsed,
		BaseFeePerGas: p.BaseFeePerGas,
		WasCapped:     wasCapped,
		CalculatedAt:  time.Now().UTC(),
	}, nil
}

// k1Scaled truncates k1*1e18 into a uint64 rather than carrying it in
// full 256-bit fixed point, so precision is lost above k1 ~ 18.446.
// This mirrors the upstream pricing engine's behavior exactly; callers
// needing finer-grained multipliers should scale gas_used or k2 instead.
func k1Scaled(k1 float64) *uint256.Int {
	return uint256.NewInt(uint64(k1 * 1e18))
}

// gasBased computes floor(k1_scaled * gas_used / 1e18) + k2.
func gasBased(p Params) (*uint256.Int, error) {
	gasUsed := uint256.NewInt(p.GasUsed)
	k1s := k1Scaled(p.K1)

	product, overflow := new(uint256.Int).MulOverflow(gasUsed, k1s)
	if overflow {
		return nil, bundlerrors.New(bundlerrors.KindPaymentCalculationOverflow, "gas-based payment: multiplication overflow")
	}
	component := new(uint256.Int).Div(product, scale)

	total, overflow := new(uint256.Int).AddOverflow(component, p.K2)
	if overflow {
		return nil, bundlerrors.New(bundlerrors.KindPaymentCalculationOverflow, "gas-based payment: addition overflow")
	}
	return total, nil
}

// basefeeBased computes floor(gas_used * (base_fee+tip) * k1_scaled / 1e18) + k2.
func basefeeBased(p Params) (*uint256.Int, error) {
	effectiveGasPrice, overflow := new(uint256.Int).AddOverflow(p.BaseFeePerGas, p.MaxPriorityFeePerGas)
	if overflow {
		return nil, bundlerrors.New(bundlerrors.KindPaymentCalculationOverflow, "basefee payment: effective gas price overflow")
	}

	gasCost, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(p.GasUsed), effectiveGasPrice)
	if overflow {
		return nil, bundlerrors.New(bundlerrors.KindPaymentCalculationOverflow, "basefee payment: gas cost overflow")
	}

	k1s := k1Scaled(p.K1)
	product, overflow := new(uint256.Int).MulOverflow(gasCost, k1s)
	if overflow {
		return nil, bundlerrors.New(bundlerrors.KindPaymentCalculationOverflow, "basefee payment: multiplication overflow")
	}
	component := new(uint256.Int).Div(product, scale)

	total, overflow := new(uint256.Int).AddOverflow(component, p.K2)
	if overflow {
		return nil, bundlerrors.New(bundlerrors.KindPaymentCalculationOverflow, "basefee payment: addition overflow")
	}
	return total, nil
}
