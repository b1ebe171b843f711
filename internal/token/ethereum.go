package token

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"milestone-escrow-backend/internal/apperr"
)

const erc20ABI = `[
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"}
]`

// assumed average block interval when translating a time window into a block
// range for log filtering
const avgBlockTime = 12 * time.Second

var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// EthereumClient implements Client over a JSON-RPC endpoint with the custody
// signer's key held in process.
type EthereumClient struct {
	rpc           *ethclient.Client
	chainID       *big.Int
	key           *ecdsa.PrivateKey
	from          common.Address
	abi           abi.ABI
	confirmations uint64
	pollInterval  time.Duration
	confirmWait   time.Duration

	// The signer's nonce is a single shared resource across all outgoing
	// transfers; nonceMu serializes allocation and submission.
	nonceMu   sync.Mutex
	nonce     uint64
	nonceInit bool
}

func NewEthereumClient(ctx context.Context, rpcURL, signerKeyHex string, confirmations uint64, confirmWait time.Duration) (*EthereumClient, error) {
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(signerKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	if confirmations == 0 {
		confirmations = 1
	}
	return &EthereumClient{
		rpc:           rpc,
		chainID:       chainID,
		key:           key,
		from:          crypto.PubkeyToAddress(key.PublicKey),
		abi:           parsed,
		confirmations: confirmations,
		pollInterval:  3 * time.Second,
		confirmWait:   confirmWait,
	}, nil
}

func (c *EthereumClient) SignerAddress() string {
	return c.from.Hex()
}

// ValidAddress reports whether s is a well-formed hex address.
func ValidAddress(s string) bool {
	return common.IsHexAddress(s)
}

func (c *EthereumClient) Decimals(ctx context.Context, contract string) (uint8, error) {
	addr, err := parseAddress(contract)
	if err != nil {
		return 0, err
	}
	data, err := c.abi.Pack("decimals")
	if err != nil {
		return 0, err
	}
	out, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return 0, classifyRPCError("decimals call", err)
	}
	vals, err := c.abi.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("unpack decimals: %w", err)
	}
	return vals[0].(uint8), nil
}

func (c *EthereumClient) BalanceOf(ctx context.Context, contract, owner string) (*big.Int, error) {
	addr, err := parseAddress(contract)
	if err != nil {
		return nil, err
	}
	ownerAddr, err := parseAddress(owner)
	if err != nil {
		return nil, err
	}
	data, err := c.abi.Pack("balanceOf", ownerAddr)
	if err != nil {
		return nil, err
	}
	out, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, classifyRPCError("balanceOf call", err)
	}
	vals, err := c.abi.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	return vals[0].(*big.Int), nil
}

func (c *EthereumClient) Transfer(ctx context.Context, contract, to string, amount *big.Int) (string, error) {
	addr, err := parseAddress(contract)
	if err != nil {
		return "", err
	}
	toAddr, err := parseAddress(to)
	if err != nil {
		return "", err
	}
	data, err := c.abi.Pack("transfer", toAddr, amount)
	if err != nil {
		return "", err
	}

	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	if !c.nonceInit {
		nonce, err := c.rpc.PendingNonceAt(ctx, c.from)
		if err != nil {
			return "", classifyRPCError("read nonce", err)
		}
		c.nonce = nonce
		c.nonceInit = true
	}

	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return "", classifyRPCError("suggest gas price", err)
	}
	gasLimit, err := c.rpc.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &addr, Data: data})
	if err != nil {
		return "", classifyRPCError("estimate gas", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    c.nonce,
		To:       &addr,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return "", fmt.Errorf("sign transfer: %w", err)
	}
	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		// The local nonce may be stale; refetch on the next attempt.
		c.nonceInit = false
		classified := classifyRPCError("send transfer", err)
		if errors.Is(classified, apperr.ErrUpstreamUnavailable) {
			// The node may have accepted the transaction before the connection
			// failed. Surface the hash so the caller can track it as in flight.
			return signed.Hash().Hex(), classified
		}
		return "", classified
	}
	c.nonce++
	return signed.Hash().Hex(), nil
}

func (c *EthereumClient) WaitConfirmed(ctx context.Context, txHash string) (*Receipt, error) {
	hash := common.HexToHash(txHash)
	deadline := time.Now().Add(c.confirmWait)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.rpc.TransactionReceipt(ctx, hash)
		if err == nil {
			head, herr := c.rpc.BlockNumber(ctx)
			if herr == nil && head+1 >= receipt.BlockNumber.Uint64()+c.confirmations {
				return &Receipt{
					TxHash:      txHash,
					Reverted:    receipt.Status == types.ReceiptStatusFailed,
					BlockNumber: receipt.BlockNumber.Uint64(),
				}, nil
			}
		} else if !errors.Is(err, ethereum.NotFound) {
			if classified := classifyRPCError("read receipt", err); !isTransient(classified) {
				return nil, classified
			}
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", apperr.ErrTransactionTimeout, txHash)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", apperr.ErrTransactionTimeout, txHash)
		case <-ticker.C:
		}
	}
}

func (c *EthereumClient) TransfersFromSigner(ctx context.Context, contract, to string, since time.Time) ([]TransferEvent, error) {
	addr, err := parseAddress(contract)
	if err != nil {
		return nil, err
	}
	toAddr, err := parseAddress(to)
	if err != nil {
		return nil, err
	}

	head, err := c.rpc.BlockNumber(ctx)
	if err != nil {
		return nil, classifyRPCError("read head", err)
	}
	back := uint64(time.Since(since)/avgBlockTime) + 1
	fromBlock := uint64(0)
	if head > back {
		fromBlock = head - back
	}

	logs, err := c.rpc.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{addr},
		Topics: [][]common.Hash{
			{transferTopic},
			{addressTopic(c.from)},
			{addressTopic(toAddr)},
		},
	})
	if err != nil {
		return nil, classifyRPCError("filter transfer logs", err)
	}

	events := make([]TransferEvent, 0, len(logs))
	blockTimes := make(map[uint64]time.Time)
	for _, lg := range logs {
		ts, ok := blockTimes[lg.BlockNumber]
		if !ok {
			header, err := c.rpc.HeaderByNumber(ctx, new(big.Int).SetUint64(lg.BlockNumber))
			if err != nil {
				return nil, classifyRPCError("read block header", err)
			}
			ts = time.Unix(int64(header.Time), 0)
			blockTimes[lg.BlockNumber] = ts
		}
		if ts.Before(since) {
			continue
		}
		events = append(events, TransferEvent{
			TxHash:      lg.TxHash.Hex(),
			From:        c.from.Hex(),
			To:          toAddr.Hex(),
			Value:       new(big.Int).SetBytes(lg.Data),
			BlockNumber: lg.BlockNumber,
			Time:        ts,
		})
	}
	return events, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: malformed address %q", apperr.ErrInvalidArgument, s)
	}
	return common.HexToAddress(s), nil
}

func addressTopic(a common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(a.Bytes(), 32))
}

// classifyRPCError folds endpoint failures into the shared taxonomy: rate
// limits are retryable, everything else counts as an unavailable upstream.
func classifyRPCError(op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") {
		return fmt.Errorf("%w: %s: %v", apperr.ErrRateLimited, op, err)
	}
	return fmt.Errorf("%w: %s: %v", apperr.ErrUpstreamUnavailable, op, err)
}

func isTransient(err error) bool {
	return errors.Is(err, apperr.ErrRateLimited) || errors.Is(err, apperr.ErrUpstreamUnavailable)
}
