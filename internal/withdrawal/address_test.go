package withdrawal

import (
	"errors"
	"testing"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name  string
		addr  string
		valid bool
	}{
		{"p2wpkh", "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", true},
		{"p2wpkh upper", "BC1QAR0SRRR7XFKVY5L643LYDNW9RE59GTZZWF5MDQ", true},
		{"testnet bech32", "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx", true},
		{"p2pkh", "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2", true},
		{"p2sh", "3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy", true},
		{"empty", "", false},
		{"mixed case bech32", "bc1QAR0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", false},
		{"bech32 bad char", "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdb", false},
		{"bech32 too short", "bc1qar0", false},
		{"base58 with zero", "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNV02", false},
		{"base58 too short", "1BvBMSEY", false},
		{"unknown prefix", "xBvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2", false},
		{"email", "someone@example.com", false},
		{"bech32 bad checksum", "bc1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq", false},
		{"base58 all ones", "1111111111111111111111111111111111", false},
		{"p2sh bad checksum", "3AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", false},
		{"p2pkh flipped char", "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN3", false},
		{"regtest bech32", "bcrt1qw508d6qejxtdg4y5r3zarvary0c5xw7kygt080", true},
		{"compressed pubkey hex", "02b4632d08485ff1df2db55b9dafd23347d1c47a457072a1e87be26896549a8737", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.addr)
			if tt.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("err = %v, want ErrInvalidRequest", err)
			}
		})
	}
}
