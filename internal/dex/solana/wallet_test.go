package solana

import (
	"testing"

	solana "github.com/gagliardetto/solana-go"
)

func TestLoadPrivateKeyFromEnv(t *testing.T) {
	wallet := solana.NewWallet()
	t.Setenv(WalletKeyEnv, wallet.PrivateKey.String())

	key, err := LoadPrivateKeyFromEnv()
	if err != nil {
		t.Fatalf("expected key, got error: %v", err)
	}
	if !key.PublicKey().Equals(wallet.PublicKey()) {
		t.Fatalf("expected public key %s, got %s", wallet.PublicKey(), key.PublicKey())
	}
}

func TestLoadPrivateKeyFromLegacyEnv(t *testing.T) {
	wallet := solana.NewWallet()
	t.Setenv(WalletKeyEnv, "")
	t.Setenv(legacyWalletKeyEnv, wallet.PrivateKey.String())

	key, err := LoadPrivateKeyFromEnv()
	if err != nil {
		t.Fatalf("expected key, got error: %v", err)
	}
	if !key.PublicKey().Equals(wallet.PublicKey()) {
		t.Fatalf("unexpected public key %s", key.PublicKey())
	}
}

func TestLoadPrivateKeyFromEnvMissing(t *testing.T) {
	t.Setenv(WalletKeyEnv, "")
	t.Setenv(legacyWalletKeyEnv, "")
	if _, err := LoadPrivateKeyFromEnv(); err == nil {
		t.Fatalf("expected error when env missing")
	}
}
