// Package signer produces EIP-712 attestations of published feed prices so that
// verifying contracts can accept a price submitted by any caller.
package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"pricefeed/internal/storage"
)

// DefaultDeadline is how long a signed price stays submittable.
const DefaultDeadline = time.Hour

var (
	// ErrRejected indicates a verifying contract did not accept a fresh signature.
	ErrRejected = errors.New("signature rejected by verifying contract")
	// ErrInvalidPrice indicates the normalized price is not a non-negative integer.
	ErrInvalidPrice = errors.New("normalized price is not an unsigned integer")
)

// Verifier asks a deployed contract whether it accepts a signed price.
type Verifier interface {
	VerifyPrice(ctx context.Context, contract, token common.Address, price, deadline *big.Int, signature []byte) (bool, error)
}

// Contract is one verifying contract a price is signed for.
type Contract struct {
	ChainID    int64
	Address    common.Address
	Token      common.Address
	TypeName   string
	DomainName string
	Version    string
	// Verifier is optional; when set each signature is checked on chain.
	Verifier Verifier
}

// Signature is the per-contract entry of a bundle.
type Signature struct {
	ChainID   int64  `json:"chainID"`
	Token     string `json:"token"`
	Price     string `json:"price"`
	Deadline  string `json:"deadline"`
	Signature string `json:"signature"`
}

// Bundle is the document published next to the feed, keyed by chain id then
// verifying contract address.
type Bundle struct {
	Price           float64                         `json:"price"`
	PriceNormalized string                          `json:"price_normalized"`
	Signer          string                          `json:"signer"`
	Signatures      map[string]map[string]Signature `json:"signatures"`
}

// Signer signs feed prices with a single secp256k1 key.
type Signer struct {
	key       *ecdsa.PrivateKey
	address   common.Address
	contracts []Contract
	deadline  time.Duration
	now       func() time.Time
}

// New builds a signer. A non-positive deadline means DefaultDeadline.
func New(key *ecdsa.PrivateKey, contracts []Contract, deadline time.Duration) *Signer {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Signer{
		key:       key,
		address:   crypto.PubkeyToAddress(key.PublicKey),
		contracts: contracts,
		deadline:  deadline,
		now:       time.Now,
	}
}

// LoadKey parses a hex encoded private key, with or without the 0x prefix.
func LoadKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}
	return key, nil
}

// Address is the account recovered from every signature this signer makes.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign attests rec for every configured contract. All signatures share one deadline.
func (s *Signer) Sign(ctx context.Context, rec storage.PriceRecord) (Bundle, error) {
	price, ok := new(big.Int).SetString(rec.PriceNormalized, 10)
	if !ok || price.Sign() < 0 {
		return Bundle{}, fmt.Errorf("%w: %q", ErrInvalidPrice, rec.PriceNormalized)
	}
	deadline := s.now().Add(s.deadline).Unix()

	bundle := Bundle{
		Price:           rec.PriceFloat,
		PriceNormalized: rec.PriceNormalized,
		Signer:          s.address.Hex(),
		Signatures:      make(map[string]map[string]Signature),
	}
	for _, c := range s.contracts {
		sig, err := s.signFor(ctx, c, price, deadline)
		if err != nil {
			return Bundle{}, fmt.Errorf("chain %d contract %s: %w", c.ChainID, c.Address.Hex(), err)
		}

		chainID := strconv.FormatInt(c.ChainID, 10)
		if bundle.Signatures[chainID] == nil {
			bundle.Signatures[chainID] = make(map[string]Signature)
		}
		bundle.Signatures[chainID][c.Address.Hex()] = Signature{
			ChainID:   c.ChainID,
			Token:     c.Token.Hex(),
			Price:     rec.PriceNormalized,
			Deadline:  strconv.FormatInt(deadline, 10),
			Signature: hexutil.Encode(sig),
		}
	}
	return bundle, nil
}

func (s *Signer) signFor(ctx context.Context, c Contract, price *big.Int, deadline int64) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(TypedData(c, price, deadline))
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27

	if c.Verifier == nil {
		return sig, nil
	}
	valid, err := c.Verifier.VerifyPrice(ctx, c.Address, c.Token, price, big.NewInt(deadline), sig)
	if err != nil {
		return nil, fmt.Errorf("verify price: %w", err)
	}
	if !valid {
		return nil, ErrRejected
	}
	return sig, nil
}

// TypedData is the EIP-712 message a verifying contract expects for a price.
func TypedData(c Contract, price *big.Int, deadline int64) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			c.TypeName: {
				{Name: "token", Type: "address"},
				{Name: "price", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: c.TypeName,
		Domain: apitypes.TypedDataDomain{
			Name:              c.DomainName,
			Version:           c.Version,
			ChainId:           math.NewHexOrDecimal256(c.ChainID),
			VerifyingContract: c.Address.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"token":    c.Token.Hex(),
			"price":    price.String(),
			"deadline": strconv.FormatInt(deadline, 10),
		},
	}
}

// Recover returns the account that produced sig over td. sig carries V as 27 or 28.
func Recover(td apitypes.TypedData, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return common.Address{}, err
	}
	plain := make([]byte, len(sig))
	copy(plain, sig)
	if plain[crypto.RecoveryIDOffset] >= 27 {
		plain[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(hash, plain)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
