package custody

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/outcomebet/paribet/internal/domain"
)

// ERC-20 method selectors: keccak256 of the canonical signature, first 4
// bytes.
var (
	transferSelector     = ethcrypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
	transferFromSelector = ethcrypto.Keccak256([]byte("transferFrom(address,address,uint256)"))[:4]
)

const (
	erc20GasLimit      = 100_000
	receiptPollEvery   = 2 * time.Second
	receiptWaitTimeout = 2 * time.Minute
)

// ERC20Config configures an ERC20Treasury.
type ERC20Config struct {
	RPCURL  string
	ChainID int64
	// Token is the ERC-20 contract address.
	Token string
	// Custodian is the address holding pooled stakes. Participants must have
	// approved it for TransferIn pulls.
	Custodian string
	// OperatorKey signs transactions; it must control the custodian address.
	OperatorKey *ecdsa.PrivateKey
}

// ERC20Treasury implements domain.Treasury against an ERC-20 token:
// TransferIn pulls a participant's stake into the custodian account via
// transferFrom, TransferOut pays from the custodian via transfer. Every call
// waits for the transaction receipt and maps a reverted execution to
// ErrTransferFailed.
type ERC20Treasury struct {
	client    *ethclient.Client
	chainID   *big.Int
	token     common.Address
	custodian common.Address
	key       *ecdsa.PrivateKey
	logger    *slog.Logger
}

// NewERC20Treasury dials the RPC endpoint and returns a treasury bound to
// the given token and custodian.
func NewERC20Treasury(ctx context.Context, cfg ERC20Config, logger *slog.Logger) (*ERC20Treasury, error) {
	if cfg.OperatorKey == nil {
		return nil, fmt.Errorf("custody: operator key is required")
	}
	if !common.IsHexAddress(cfg.Token) {
		return nil, fmt.Errorf("custody: invalid token address %q", cfg.Token)
	}
	if !common.IsHexAddress(cfg.Custodian) {
		return nil, fmt.Errorf("custody: invalid custodian address %q", cfg.Custodian)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("custody: dial %s: %w", cfg.RPCURL, err)
	}

	return &ERC20Treasury{
		client:    client,
		chainID:   big.NewInt(cfg.ChainID),
		token:     common.HexToAddress(cfg.Token),
		custodian: common.HexToAddress(cfg.Custodian),
		key:       cfg.OperatorKey,
		logger:    logger.With(slog.String("component", "erc20_treasury")),
	}, nil
}

// TransferIn pulls amount from the participant into the custodian account.
func (t *ERC20Treasury) TransferIn(ctx context.Context, from string, amount int64) error {
	if !common.IsHexAddress(from) {
		return fmt.Errorf("custody: invalid participant address %q: %w", from, domain.ErrTransferFailed)
	}
	data := packTransferFrom(common.HexToAddress(from), t.custodian, big.NewInt(amount))
	if err := t.send(ctx, data); err != nil {
		return fmt.Errorf("custody: pull %d from %s: %w", amount, from, err)
	}
	return nil
}

// TransferOut pays amount from the custodian to the participant.
func (t *ERC20Treasury) TransferOut(ctx context.Context, to string, amount int64) error {
	if !common.IsHexAddress(to) {
		return fmt.Errorf("custody: invalid participant address %q: %w", to, domain.ErrTransferFailed)
	}
	data := packTransfer(common.HexToAddress(to), big.NewInt(amount))
	if err := t.send(ctx, data); err != nil {
		return fmt.Errorf("custody: pay %d to %s: %w", amount, to, err)
	}
	return nil
}

// Close releases the underlying RPC connection.
func (t *ERC20Treasury) Close() {
	t.client.Close()
}

// send signs, submits and awaits a token-contract call made by the operator.
func (t *ERC20Treasury) send(ctx context.Context, data []byte) error {
	operator := ethcrypto.PubkeyToAddress(t.key.PublicKey)

	nonce, err := t.client.PendingNonceAt(ctx, operator)
	if err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := t.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, t.token, big.NewInt(0), erc20GasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(t.chainID), t.key)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	if err := t.client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("submit: %w: %w", domain.ErrTransferFailed, err)
	}

	receipt, err := t.waitMined(ctx, signed.Hash())
	if err != nil {
		return fmt.Errorf("await receipt %s: %w: %w", signed.Hash(), domain.ErrTransferFailed, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("tx %s reverted: %w", signed.Hash(), domain.ErrTransferFailed)
	}

	t.logger.Debug("token transfer mined",
		slog.String("tx", signed.Hash().Hex()),
		slog.Uint64("gas_used", receipt.GasUsed),
	)
	return nil
}

// waitMined polls for the transaction receipt until it lands or the wait
// times out.
func (t *ERC20Treasury) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, receiptWaitTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollEvery)
	defer ticker.Stop()

	for {
		receipt, err := t.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// packTransfer builds calldata for transfer(to, amount).
func packTransfer(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+2*32)
	data = append(data, transferSelector...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}

// packTransferFrom builds calldata for transferFrom(from, to, amount).
func packTransferFrom(from, to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+3*32)
	data = append(data, transferFromSelector...)
	data = append(data, common.LeftPadBytes(from.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}

var _ domain.Treasury = (*ERC20Treasury)(nil)
