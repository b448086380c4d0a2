package app

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"pricefeed/internal/fetcher"
	"pricefeed/internal/service"
	"pricefeed/internal/signer"
)

// attestations builds one signer per signed feed, keyed by token symbol. With
// signing.verify each signature is checked against its contract over RPC.
func (a *App) attestations(chains map[string]*fetcher.Chain) (map[string]*service.Attestation, error) {
	cfg := a.Config.Signing
	if !cfg.Enabled {
		return nil, nil
	}
	key, err := signer.LoadKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*service.Attestation, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		contracts := make([]signer.Contract, 0, len(f.Contracts))
		for _, vc := range f.Contracts {
			chainCfg, ok := a.Config.Chains[vc.Chain]
			if !ok {
				return nil, fmt.Errorf("signing.%s: chain %q not configured", f.Symbol, vc.Chain)
			}
			c := signer.Contract{
				ChainID:    int64(chainCfg.ChainID),
				Address:    common.HexToAddress(vc.Address),
				Token:      common.HexToAddress(vc.Token),
				TypeName:   vc.TypeName,
				DomainName: vc.DomainName,
				Version:    vc.Version,
			}
			if cfg.Verify {
				c.Verifier = chains[vc.Chain]
			}
			contracts = append(contracts, c)
		}

		s := signer.New(key, contracts, cfg.Deadline)
		out[f.Symbol] = &service.Attestation{Signer: s, Key: f.Key}
		a.Logger.Info().
			Str("token", f.Symbol).
			Str("signer", s.Address().Hex()).
			Int("contracts", len(contracts)).
			Msg("price signing enabled")
	}
	return out, nil
}
