package token

import (
	"context"
	"math/big"
	"time"
)

// Receipt is the confirmation outcome of a submitted transfer.
type Receipt struct {
	TxHash      string
	Reverted    bool
	BlockNumber uint64
}

// TransferEvent is one ERC-20 Transfer log observed on chain, used by the
// reconciliation sweep.
type TransferEvent struct {
	TxHash      string
	From        string
	To          string
	Value       *big.Int
	BlockNumber uint64
	Time        time.Time
}

// Client is the settlement surface: token reads, a nonce-serialized transfer,
// confirmation waiting, and transfer-log scanning. Implemented against a real
// chain by EthereumClient; tests supply fakes.
type Client interface {
	// SignerAddress returns the custody signer's address.
	SignerAddress() string
	// Decimals reads the token's precision from the contract.
	Decimals(ctx context.Context, contract string) (uint8, error)
	// BalanceOf reads the owner's token balance.
	BalanceOf(ctx context.Context, contract, owner string) (*big.Int, error)
	// Transfer submits a transfer of amount smallest units to `to` and returns
	// the transaction hash. Submissions from the custody signer are serialized
	// internally so nonces never collide. When submission fails with an unknown
	// outcome the hash is returned alongside the error; the transfer may still
	// land on chain.
	Transfer(ctx context.Context, contract, to string, amount *big.Int) (string, error)
	// WaitConfirmed blocks until the transaction reaches the configured
	// confirmation depth or the wait times out.
	WaitConfirmed(ctx context.Context, txHash string) (*Receipt, error)
	// TransfersFromSigner lists confirmed Transfer events from the custody
	// signer to `to` since the given time.
	TransfersFromSigner(ctx context.Context, contract, to string, since time.Time) ([]TransferEvent, error)
}
