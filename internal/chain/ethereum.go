package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const erc20ABI = `[
  {"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const poolABI = `[
  {"name":"supply","type":"function","stateMutability":"nonpayable","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"onBehalfOf","type":"address"},{"name":"referralCode","type":"uint16"}],"outputs":[]},
  {"name":"withdraw","type":"function","stateMutability":"nonpayable","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"to","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const dataProviderABI = `[
  {"name":"getReserveData","type":"function","stateMutability":"view","inputs":[{"name":"asset","type":"address"}],"outputs":[
    {"name":"unbacked","type":"uint256"},
    {"name":"accruedToTreasuryScaled","type":"uint256"},
    {"name":"totalAToken","type":"uint256"},
    {"name":"totalStableDebt","type":"uint256"},
    {"name":"totalVariableDebt","type":"uint256"},
    {"name":"liquidityRate","type":"uint256"},
    {"name":"variableBorrowRate","type":"uint256"},
    {"name":"stableBorrowRate","type":"uint256"},
    {"name":"averageStableBorrowRate","type":"uint256"},
    {"name":"liquidityIndex","type":"uint256"},
    {"name":"variableBorrowIndex","type":"uint256"},
    {"name":"lastUpdateTimestamp","type":"uint40"}
  ]}
]`

// EthereumConfig carries the addresses and signer key the client needs.
type EthereumConfig struct {
	TokenAddress        string
	ATokenAddress       string
	PoolAddress         string
	DataProviderAddress string
	SignerKey           string
}

// EthereumClient talks to the stablecoin token and the lending pool over
// JSON-RPC. The signer key must control the custody wallets it submits for.
type EthereumClient struct {
	rpc     *ethclient.Client
	chainID *big.Int

	token        common.Address
	aToken       common.Address
	pool         common.Address
	dataProvider common.Address

	key    *ecdsa.PrivateKey
	signer common.Address

	erc20Abi    abi.ABI
	poolAbi     abi.ABI
	providerAbi abi.ABI
}

// NewEthereumClient dials the RPC endpoint, derives the signer address from
// the configured key, and parses the contract ABIs.
func NewEthereumClient(ctx context.Context, rpcURL string, cfg EthereumConfig) (*EthereumClient, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("chain rpc url is required")
	}

	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}

	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("read chain id: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.SignerKey, "0x"))
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("parse signer key: %w", err)
	}

	erc20Abi, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, err
	}
	poolAbi, err := abi.JSON(strings.NewReader(poolABI))
	if err != nil {
		return nil, err
	}
	providerAbi, err := abi.JSON(strings.NewReader(dataProviderABI))
	if err != nil {
		return nil, err
	}

	return &EthereumClient{
		rpc:          rpc,
		chainID:      chainID,
		token:        common.HexToAddress(cfg.TokenAddress),
		aToken:       common.HexToAddress(cfg.ATokenAddress),
		pool:         common.HexToAddress(cfg.PoolAddress),
		dataProvider: common.HexToAddress(cfg.DataProviderAddress),
		key:          key,
		signer:       crypto.PubkeyToAddress(key.PublicKey),
		erc20Abi:     erc20Abi,
		poolAbi:      poolAbi,
		providerAbi:  providerAbi,
	}, nil
}

// Close releases the underlying RPC connection.
func (c *EthereumClient) Close() {
	c.rpc.Close()
}

// Ping verifies RPC connectivity.
func (c *EthereumClient) Ping(ctx context.Context) error {
	_, err := c.rpc.BlockNumber(ctx)
	return err
}

// WalletBalance reads the stablecoin balance held by the custody wallet.
func (c *EthereumClient) WalletBalance(ctx context.Context, address string) (int64, error) {
	return c.balanceOf(ctx, c.token, address)
}

// PoolBalance reads the interest-bearing token balance, which tracks the
// wallet's pool position including accrued yield.
func (c *EthereumClient) PoolBalance(ctx context.Context, address string) (int64, error) {
	return c.balanceOf(ctx, c.aToken, address)
}

func (c *EthereumClient) balanceOf(ctx context.Context, token common.Address, address string) (int64, error) {
	data, err := c.erc20Abi.Pack("balanceOf", common.HexToAddress(address))
	if err != nil {
		return 0, err
	}
	out, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("balanceOf %s: %w", token.Hex(), err)
	}
	vals, err := c.erc20Abi.Unpack("balanceOf", out)
	if err != nil {
		return 0, err
	}
	bal, ok := vals[0].(*big.Int)
	if !ok || !bal.IsInt64() {
		return 0, fmt.Errorf("balanceOf %s: value out of range", token.Hex())
	}
	return bal.Int64(), nil
}

// NativeRate reads the pool's current liquidity rate in ray scale from the
// protocol data provider.
func (c *EthereumClient) NativeRate(ctx context.Context) (*big.Int, error) {
	data, err := c.providerAbi.Pack("getReserveData", c.token)
	if err != nil {
		return nil, err
	}
	out, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &c.dataProvider, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("getReserveData: %w", err)
	}
	vals, err := c.providerAbi.Unpack("getReserveData", out)
	if err != nil {
		return nil, err
	}
	rate, ok := vals[5].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("getReserveData: unexpected liquidity rate type")
	}
	return rate, nil
}

// SupplyToPool moves stablecoin from the custody wallet into the pool.
func (c *EthereumClient) SupplyToPool(ctx context.Context, wallet string, amount int64) (string, error) {
	data, err := c.poolAbi.Pack("supply", c.token, big.NewInt(amount), common.HexToAddress(wallet), uint16(0))
	if err != nil {
		return "", err
	}
	return c.submit(ctx, c.pool, data)
}

// RedeemFromPool withdraws stablecoin from the pool back into the wallet.
func (c *EthereumClient) RedeemFromPool(ctx context.Context, wallet string, amount int64) (string, error) {
	data, err := c.poolAbi.Pack("withdraw", c.token, big.NewInt(amount), common.HexToAddress(wallet))
	if err != nil {
		return "", err
	}
	return c.submit(ctx, c.pool, data)
}

// Transfer sends stablecoin from the custody wallet to a counterparty.
func (c *EthereumClient) Transfer(ctx context.Context, _, to string, amount int64) (string, error) {
	data, err := c.erc20Abi.Pack("transfer", common.HexToAddress(to), big.NewInt(amount))
	if err != nil {
		return "", err
	}
	return c.submit(ctx, c.token, data)
}

// ConfirmationStatus looks up the receipt for a previously submitted
// transaction reference.
func (c *EthereumClient) ConfirmationStatus(ctx context.Context, txRef string) (TxStatus, error) {
	receipt, err := c.rpc.TransactionReceipt(ctx, common.HexToHash(txRef))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return TxPending, nil
		}
		return TxPending, err
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return TxConfirmed, nil
	}
	return TxFailed, nil
}

// submit estimates gas, signs, and sends a transaction. An estimation failure
// means the call would revert and is reported as a rejection; everything after
// that point is a transient transport concern.
func (c *EthereumClient) submit(ctx context.Context, to common.Address, data []byte) (string, error) {
	gas, err := c.rpc.EstimateGas(ctx, ethereum.CallMsg{From: c.signer, To: &to, Data: data})
	if err != nil {
		return "", Rejected(err)
	}

	nonce, err := c.rpc.PendingNonceAt(ctx, c.signer)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas + gas/5,
		To:       &to,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}

	return signed.Hash().Hex(), nil
}
