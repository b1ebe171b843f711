package token

import (
	"fmt"

	"milestone-escrow-backend/internal/apperr"
)

// contracts is the static (network, symbol) -> contract address table.
// Multi-chain abstraction beyond this table is out of scope.
var contracts = map[string]map[string]string{
	"mainnet": {
		"USDC": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		"USDT": "0xdAC17F958D2ee523a2206206994597C13D831ec7",
	},
	"sepolia": {
		"USDC": "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
	},
	"polygon": {
		"USDC": "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		"USDT": "0xc2132D05D31c914a87C6611C10748AEb04B58e8F",
	},
}

// ContractAddress resolves the fixed token contract for a currency symbol on a
// network.
func ContractAddress(symbol, network string) (string, error) {
	byNetwork, ok := contracts[network]
	if !ok {
		return "", fmt.Errorf("%w: unknown network %q", apperr.ErrInvalidArgument, network)
	}
	addr, ok := byNetwork[symbol]
	if !ok {
		return "", fmt.Errorf("%w: no %s contract on %s", apperr.ErrInvalidArgument, symbol, network)
	}
	return addr, nil
}
