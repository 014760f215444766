package payment

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/swapnilraj/atomic-bundler/internal/config"
)

func TestCalculateFlat(t *testing.T) {
	result, err := Calculate(Params{
		GasUsed:   21_000,
		Formula:   config.FormulaFlat,
		K1:        0,
		K2:        uint256.NewInt(200_000_000_000_000),
		MaxAmount: uint256.NewInt(500_000_000_000_000),
	})
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(200_000_000_000_000), result.AmountWei)
	require.False(t, result.WasCapped)
}

func TestCalculateGasBased(t *testing.T) {
	result, err := Calculate(Params{
		GasUsed:   21_000,
		Formula:   config.FormulaGas,
		K1:        2.0, // 2 wei per gas unit
		K2:        uint256.NewInt(1_000),
		MaxAmount: uint256.NewInt(1_000_000_000_000_000_000),
	})
	require.NoError(t, err)
	require.Equal(t, "43000", result.AmountWei.Dec())
}

func TestCalculateBasefeeBased(t *testing.T) {
	result, err := Calculate(Params{
		GasUsed:              21_000,
		BaseFeePerGas:        uint256.NewInt(10_000_000_000),
		MaxPriorityFeePerGas: uint256.NewInt(1_000_000_000),
		Formula:              config.FormulaBasefee,
		K1:                   1.0,
		K2:                   uint256.NewInt(0),
		MaxAmount:            uint256.NewInt(1_000_000_000_000_000_000),
	})
	require.NoError(t, err)
	// gas_used * (base_fee + tip) * k1 = 21000 * 11_000_000_000 * 1.0
	require.Equal(t, "231000000000000", result.AmountWei.Dec())
}

func TestCalculateAppliesMaxAmountCap(t *testing.T) {
	result, err := Calculate(Params{
		GasUsed:   21_000,
		Formula:   config.FormulaFlat,
		K1:        0,
		K2:        uint256.NewInt(1_000_000_000_000_000_000),
		MaxAmount: uint256.NewInt(500_000_000_000_000),
	})
	require.NoError(t, err)
	require.True(t, result.WasCapped)
	require.Equal(t, uint256.NewInt(500_000_000_000_000), result.AmountWei)
}

func TestCalculateRejectsZeroGasUsed(t *testing.T) {
	_, err := Calculate(Params{
		GasUsed:   0,
		Formula:   config.FormulaFlat,
		K2:        uint256.NewInt(1),
		MaxAmount: uint256.NewInt(1),
	})
	require.Error(t, err)
}

func TestCalculateRejectsUnknownFormula(t *testing.T) {
	_, err := Calculate(Params{
		GasUsed:   21_000,
		Formula:   config.Formula("unknown"),
		K2:        uint256.NewInt(1),
		MaxAmount: uint256.NewInt(1),
	})
	require.Error(t, err)
}

func TestCalculateGasBasedAdditionOverflows(t *testing.T) {
	maxU256 := new(uint256.Int).SetAllOne()
	_, err := Calculate(Params{
		GasUsed:   21_000,
		Formula:   config.FormulaGas,
		K1:        1.0,
		K2:        maxU256,
		MaxAmount: maxU256,
	})
	require.Error(t, err)
}
