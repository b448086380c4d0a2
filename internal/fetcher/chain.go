package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

const (
	pairABIJSON          = `[{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"internalType":"uint112","name":"reserve0","type":"uint112"},{"internalType":"uint112","name":"reserve1","type":"uint112"},{"internalType":"uint32","name":"blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"}]`
	erc20ABIJSON         = `[{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`
	priceVerifierABIJSON = `[{"inputs":[{"internalType":"address","name":"token","type":"address"},{"internalType":"uint256","name":"price","type":"uint256"},{"internalType":"uint256","name":"deadline","type":"uint256"},{"internalType":"bytes","name":"signature","type":"bytes"}],"name":"verifyPrice","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"}]`
)

var (
	pairABI          abi.ABI
	erc20ABI         abi.ABI
	priceVerifierABI abi.ABI
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(pairABIJSON))
	if err != nil {
		panic("failed to parse pair ABI: " + err.Error())
	}
	pairABI = parsed

	parsed, err = abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("failed to parse ERC-20 ABI: " + err.Error())
	}
	erc20ABI = parsed

	parsed, err = abi.JSON(strings.NewReader(priceVerifierABIJSON))
	if err != nil {
		panic("failed to parse price verifier ABI: " + err.Error())
	}
	priceVerifierABI = parsed
}

// ChainOptions parameterise an RPC reader.
type ChainOptions struct {
	Name    string
	RPCURL  string
	Timeout time.Duration
}

// Chain reads pool state over Ethereum JSON-RPC.
type Chain struct {
	opts      ChainOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewChain builds a lazily connected chain reader.
func NewChain(opts ChainOptions, logger zerolog.Logger) *Chain {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Chain{opts: opts, logger: logger.With().Str("component", "chain_reader").Str("chain", opts.Name).Logger()}
}

// Reserves calls getReserves on a Uniswap-V2 pair.
func (c *Chain) Reserves(ctx context.Context, pair common.Address) (*big.Int, *big.Int, error) {
	payload, err := pairABI.Pack("getReserves")
	if err != nil {
		return nil, nil, err
	}

	res, err := c.call(ctx, pair, payload)
	if err != nil {
		return nil, nil, fmt.Errorf("getReserves %s: %w", pair.Hex(), err)
	}

	var reserves struct {
		Reserve0           *big.Int
		Reserve1           *big.Int
		BlockTimestampLast uint32
	}
	if err := pairABI.UnpackIntoInterface(&reserves, "getReserves", res); err != nil {
		return nil, nil, fmt.Errorf("unpack getReserves: %w", err)
	}
	return reserves.Reserve0, reserves.Reserve1, nil
}

// BalanceOf returns the ERC-20 balance of holder.
func (c *Chain) BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	payload, err := erc20ABI.Pack("balanceOf", holder)
	if err != nil {
		return nil, err
	}

	res, err := c.call(ctx, token, payload)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", token.Hex(), err)
	}

	outputs, err := erc20ABI.Unpack("balanceOf", res)
	if err != nil {
		return nil, err
	}
	if len(outputs) != 1 {
		return nil, errors.New("unexpected balanceOf response")
	}
	balance, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, errors.New("failed to decode balanceOf output")
	}
	return balance, nil
}

// VerifyPrice asks a signed-price contract whether it accepts signature for token at
// price until deadline.
func (c *Chain) VerifyPrice(ctx context.Context, contract, token common.Address, price, deadline *big.Int, signature []byte) (bool, error) {
	payload, err := priceVerifierABI.Pack("verifyPrice", token, price, deadline, signature)
	if err != nil {
		return false, err
	}

	res, err := c.call(ctx, contract, payload)
	if err != nil {
		return false, fmt.Errorf("verifyPrice %s: %w", contract.Hex(), err)
	}

	outputs, err := priceVerifierABI.Unpack("verifyPrice", res)
	if err != nil {
		return false, err
	}
	if len(outputs) != 1 {
		return false, errors.New("unexpected verifyPrice response")
	}
	valid, ok := outputs[0].(bool)
	if !ok {
		return false, errors.New("failed to decode verifyPrice output")
	}
	return valid, nil
}

func (c *Chain) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if c.opts.RPCURL == "" {
		return nil, ErrRPCURLRequired
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

func (c *Chain) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

// Close releases the RPC connection.
func (c *Chain) Close() {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}

var _ ReserveReader = (*Chain)(nil)
