package core

import "testing"

func TestWalletFromMnemonicRoundTrip(t *testing.T) {
	_, mnemonic, err := NewRandomWallet(256)
	if err != nil {
		t.Fatalf("NewRandomWallet: %v", err)
	}

	w1, err := WalletFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("WalletFromMnemonic: %v", err)
	}
	w2, err := WalletFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("WalletFromMnemonic (second import): %v", err)
	}

	a1, err := w1.NewAddress(0, 0)
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}
	a2, err := w2.NewAddress(0, 0)
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}
	if a1 != a2 {
		t.Fatalf("re-importing the same mnemonic produced a different address: %s vs %s", a1.Hex(), a2.Hex())
	}
}

func TestWalletFromMnemonicRejectsBadChecksum(t *testing.T) {
	_, err := WalletFromMnemonic("abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon", "")
	if err == nil {
		t.Fatalf("expected a checksum error for a mismatched mnemonic")
	}
}

func TestHDWalletDerivationIsDeterministic(t *testing.T) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}
	w, err := NewHDWalletFromSeed(seed, nil)
	if err != nil {
		t.Fatalf("NewHDWalletFromSeed: %v", err)
	}

	a1, err := w.NewAddress(0, 0)
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}
	a2, err := w.NewAddress(0, 0)
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}
	if a1 != a2 {
		t.Fatalf("same derivation path produced different addresses")
	}

	other, err := w.NewAddress(0, 1)
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}
	if a1 == other {
		t.Fatalf("different indices must derive different addresses")
	}
}

func TestHDWalletNodeNameMatchesPublicKeyLength(t *testing.T) {
	seed := make([]byte, 32)
	w, err := NewHDWalletFromSeed(seed, nil)
	if err != nil {
		t.Fatalf("NewHDWalletFromSeed: %v", err)
	}
	name, err := w.NodeName(0, 0)
	if err != nil {
		t.Fatalf("NodeName: %v", err)
	}
	_, pub, err := w.PrivateKey(0, 0)
	if err != nil {
		t.Fatalf("PrivateKey: %v", err)
	}
	if len(name) != len(pub) {
		t.Fatalf("NodeName length %d != public key length %d", len(name), len(pub))
	}
	for i := range pub {
		if name[i] != pub[i] {
			t.Fatalf("NodeName bytes diverge from the public key at index %d", i)
		}
	}
}

func TestHDWalletRejectsShortSeed(t *testing.T) {
	if _, err := NewHDWalletFromSeed([]byte{1, 2, 3}, nil); err == nil {
		t.Fatalf("expected an error for a too-short seed")
	}
}
