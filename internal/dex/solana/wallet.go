package solana

import (
	"errors"
	"os"

	solana "github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
)

// Wallet key env vars in lookup order.
const (
	WalletKeyEnv       = "LPMAKER_WALLET_KEY"
	legacyWalletKeyEnv = "SOLANA_PRIVATE_KEY_BASE58"
)

func LoadPrivateKeyFromEnv() (solana.PrivateKey, error) {
	_ = godotenv.Load() // best-effort
	b58 := os.Getenv(WalletKeyEnv)
	if b58 == "" {
		b58 = os.Getenv(legacyWalletKeyEnv)
	}
	if b58 == "" {
		return nil, errors.New(WalletKeyEnv + " not set")
	}
	return solana.PrivateKeyFromBase58(b58)
}
