package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milestone-escrow-backend/internal/apperr"
)

func TestContractAddress(t *testing.T) {
	addr, err := ContractAddress("USDC", "mainnet")
	require.NoError(t, err)
	assert.True(t, ValidAddress(addr))

	_, err = ContractAddress("USDC", "unknownnet")
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = ContractAddress("DOGE", "mainnet")
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
}
