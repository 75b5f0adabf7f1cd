package etherman

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// gas headroom applied on top of eth_estimateGas results
const gasEstimateMargin = 120 // percent

type ethereumClient interface {
	ethereum.ChainReader
	ethereum.ChainStateReader
	ethereum.ContractCaller
	ethereum.GasEstimator
	ethereum.GasPricer
	ethereum.LogFilterer
	ethereum.PendingStateReader
	ethereum.TransactionReader
	ethereum.TransactionSender
}

// Etherman owns the destination chain: the rpc client, the wrapped and
// reward token contracts, and the single signing key. Transactions are
// built and signed here; nonce assignment belongs to the caller so that
// submissions can be strictly serialized.
type Etherman struct {
	client     ethereumClient
	chainId    *big.Int
	privKey    *ecdsa.PrivateKey
	signerAddr ethcommon.Address
	cfg        *Config

	wrappedABI abi.ABI
	rewardABI  abi.ABI
}

func NewEtherman(cfg *Config, privKey *ecdsa.PrivateKey) (*Etherman, error) {
	client, err := ethclient.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	chainId, err := client.ChainID(context.Background())
	if err != nil {
		return nil, err
	}

	return newEtherman(cfg, privKey, client, chainId)
}

// NewEthermanWithClient binds to an already connected client. Used by tests
// with a simulated or fake backend.
func NewEthermanWithClient(
	cfg *Config,
	privKey *ecdsa.PrivateKey,
	client ethereumClient,
	chainId *big.Int,
) (*Etherman, error) {
	return newEtherman(cfg, privKey, client, chainId)
}

func newEtherman(
	cfg *Config,
	privKey *ecdsa.PrivateKey,
	client ethereumClient,
	chainId *big.Int,
) (*Etherman, error) {
	wrappedABI, err := abi.JSON(strings.NewReader(WrappedTokenABI))
	if err != nil {
		return nil, err
	}
	rewardABI, err := abi.JSON(strings.NewReader(RewardTokenABI))
	if err != nil {
		return nil, err
	}

	return &Etherman{
		client:     client,
		chainId:    chainId,
		privKey:    privKey,
		signerAddr: crypto.PubkeyToAddress(privKey.PublicKey),
		cfg:        cfg,
		wrappedABI: wrappedABI,
		rewardABI:  rewardABI,
	}, nil
}

func (e *Etherman) Client() ethereumClient {
	return e.client
}

func (e *Etherman) ChainId() *big.Int {
	return new(big.Int).Set(e.chainId)
}

func (e *Etherman) SenderAddress() ethcommon.Address {
	return e.signerAddr
}

func (e *Etherman) WrappedTokenAddress() ethcommon.Address {
	return e.cfg.WrappedTokenAddress
}

func (e *Etherman) RewardTokenAddress() ethcommon.Address {
	return e.cfg.RewardTokenAddress
}

// PendingNonce reads the signer's next nonce from the chain. Always
// authoritative; the relay keeps no local counter so that transactions
// submitted outside the relay do not desync it.
func (e *Etherman) PendingNonce(ctx context.Context) (uint64, error) {
	return e.client.PendingNonceAt(ctx, e.signerAddr)
}

func (e *Etherman) SignerBalance(ctx context.Context) (*big.Int, error) {
	return e.client.BalanceAt(ctx, e.signerAddr, nil)
}

func (e *Etherman) WrappedBalanceOf(ctx context.Context, addr ethcommon.Address) (*big.Int, error) {
	out, err := e.callContract(ctx, e.cfg.WrappedTokenAddress, e.wrappedABI, "balanceOf", addr)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (e *Etherman) RewardBalanceOf(ctx context.Context, addr ethcommon.Address) (*big.Int, error) {
	out, err := e.callContract(ctx, e.cfg.RewardTokenAddress, e.rewardABI, "balanceOf", addr)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// WrappedTokenInfo reads name/symbol/decimals. Diagnostic logging only,
// never business logic.
func (e *Etherman) WrappedTokenInfo(ctx context.Context) (string, string, uint8, error) {
	nameOut, err := e.callContract(ctx, e.cfg.WrappedTokenAddress, e.wrappedABI, "name")
	if err != nil {
		return "", "", 0, err
	}
	symbolOut, err := e.callContract(ctx, e.cfg.WrappedTokenAddress, e.wrappedABI, "symbol")
	if err != nil {
		return "", "", 0, err
	}
	decimalsOut, err := e.callContract(ctx, e.cfg.WrappedTokenAddress, e.wrappedABI, "decimals")
	if err != nil {
		return "", "", 0, err
	}

	return nameOut[0].(string), symbolOut[0].(string), decimalsOut[0].(uint8), nil
}

// MintCallData packs a wrapped-token mint(to, amount) call.
func (e *Etherman) MintCallData(to ethcommon.Address, amount *big.Int) ([]byte, error) {
	return e.wrappedABI.Pack("mint", to, amount)
}

// RewardTransferData packs a reward-token transfer(to, amount) call.
func (e *Etherman) RewardTransferData(to ethcommon.Address, amount *big.Int) ([]byte, error) {
	return e.rewardABI.Pack("transfer", to, amount)
}

// BuildSignedTx builds and signs a transaction with the supplied nonce.
// The caller owns nonce sequencing.
func (e *Etherman) BuildSignedTx(
	ctx context.Context,
	nonce uint64,
	to ethcommon.Address,
	data []byte,
) (*types.Transaction, error) {
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	gas, err := e.client.EstimateGas(ctx, ethereum.CallMsg{
		From: e.signerAddr,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gas = gas * gasEstimateMargin / 100
	if e.cfg.GasLimitCap > 0 && gas > e.cfg.GasLimitCap {
		gas = e.cfg.GasLimitCap
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Data:     data,
	})

	return types.SignTx(tx, types.LatestSignerForChainID(e.chainId), e.privKey)
}

func (e *Etherman) callContract(
	ctx context.Context,
	to ethcommon.Address,
	parsed abi.ABI,
	method string,
	args ...interface{},
) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, err
	}

	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}

	return parsed.Unpack(method, out)
}
