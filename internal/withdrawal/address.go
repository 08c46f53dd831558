package withdrawal

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// networks are tried in order; testnet and regtest share base58 version
// bytes, so a legacy testnet address resolves to TestNet3Params.
var networks = []*chaincfg.Params{
	&chaincfg.MainNetParams,
	&chaincfg.TestNet3Params,
	&chaincfg.RegressionNetParams,
}

var errWrongNetwork = errors.New("address does not belong to a supported network")

// ValidateAddress decodes addr as a P2PKH, P2SH, segwit or taproot bitcoin
// address on mainnet, testnet3 or regtest. Base58 and bech32 checksums are
// verified. Raw public keys are rejected.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: wallet address is required", ErrInvalidRequest)
	}
	lastErr := errWrongNetwork
	for _, params := range networks {
		decoded, err := btcutil.DecodeAddress(addr, params)
		if err != nil {
			lastErr = err
			continue
		}
		if _, ok := decoded.(*btcutil.AddressPubKey); ok {
			return fmt.Errorf("%w: wallet address is a raw public key", ErrInvalidRequest)
		}
		if decoded.IsForNet(params) {
			return nil
		}
	}
	return fmt.Errorf("%w: wallet address %q: %v", ErrInvalidRequest, addr, lastErr)
}
