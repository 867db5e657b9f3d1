package core

// Node identity wallet: hierarchical-deterministic ed25519 key derivation
// for a section node's reward address. Trimmed to identity derivation only
// — transaction signing and its Transaction/TxPool dependency belong to a
// ledger this module does not implement, so they are dropped; everything
// below the signing step (mnemonic, HD derivation, address hashing) is
// unchanged.
//
// Import hygiene: wallet depends only on common + utility (crypto, log,
// bip39). It does not import Nodes, storage, or the event loop.

import (
	"crypto/ed25519"
	"crypto/hmac"
	crand "crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	bip39 "github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/ripemd160"
)

const (
	hardenedOffset uint32 = 0x80000000

	masterHMACKey = "ed25519 seed" // SLIP-0010 master-key string
)

func SetWalletLogger(l *log.Logger) { globalLogger = l }

var globalLogger = log.New()

// Address is a 20-byte ed25519-derived reward address, the WalletKey bytes
// a RewardableNode carries into DistributeRewards (spec §4.3.2).
type Address [20]byte

// Hex returns the full hexadecimal representation of the address.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Short returns a shortened version (first 4 + last 4 hex chars).
func (a Address) Short() string {
	full := hex.EncodeToString(a[:])
	if len(full) <= 8 {
		return full
	}
	return fmt.Sprintf("%s..%s", full[:4], full[len(full)-4:])
}

// HDWallet keeps master key material in-memory only. Never persist the
// private fields directly — use encrypted keystores instead.
//
// Derivation model: SLIP-0010 hardened children only, path m / account' /
// index' (ed25519 does not support unhardened children).
type HDWallet struct {
	seed        []byte
	masterKey   []byte
	masterChain []byte
	logger      *log.Logger
}

// Seed returns a copy of the wallet's master seed. Callers should securely
// wipe the returned slice after use.
func (w *HDWallet) Seed() []byte {
	out := make([]byte, len(w.seed))
	copy(out, w.seed)
	return out
}

// NewRandomWallet generates entropyBits (128/256) of RNG entropy and
// returns the resulting wallet plus its recovery mnemonic. The caller must
// wipe the mnemonic or store it securely.
func NewRandomWallet(entropyBits int) (*HDWallet, string, error) {
	if entropyBits != 128 && entropyBits != 256 {
		return nil, "", fmt.Errorf("unsupported entropy size %d", entropyBits)
	}

	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return nil, "", fmt.Errorf("entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", fmt.Errorf("mnemonic: %w", err)
	}
	seed := bip39.NewSeed(mnemonic, "")
	w, err := NewHDWalletFromSeed(seed, globalLogger)
	if err != nil {
		return nil, "", err
	}
	return w, mnemonic, nil
}

// WalletFromMnemonic imports an existing BIP-39 phrase.
func WalletFromMnemonic(mnemonic, passphrase string) (*HDWallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid mnemonic checksum")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return NewHDWalletFromSeed(seed, globalLogger)
}

func NewHDWalletFromSeed(seed []byte, lg *log.Logger) (*HDWallet, error) {
	if len(seed) < 16 {
		return nil, errors.New("seed too short")
	}
	if lg == nil {
		lg = globalLogger
	}

	I := hmacSHA512([]byte(masterHMACKey), seed)

	w := &HDWallet{
		seed:        seed,
		masterKey:   I[:32],
		masterChain: I[32:],
		logger:      lg,
	}

	lg.Infof("wallet: master key initialised (%d bytes seed)", len(seed))
	return w, nil
}

// derivePrivate returns the key material and new chain code for a
// (hardened) index. Only hardened derivation is supported for ed25519;
// index must already carry the hardened offset.
func derivePrivate(parentKey, parentChain []byte, index uint32) (key, ccode []byte, err error) {
	if index < hardenedOffset {
		return nil, nil, errors.New("non-hardened derivation not supported for ed25519")
	}
	data := make([]byte, 1+32+4)
	copy(data[1:], parentKey)
	binary.BigEndian.PutUint32(data[33:], index)

	I := hmacSHA512(parentChain, data)
	key = I[:32]
	ccode = I[32:]
	return key, ccode, nil
}

func hmacSHA512(key, data []byte) []byte {
	h := hmac.New(sha512.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// PrivateKey returns the ed25519 key pair for derivation path m / account'
// / index'. account and index are hardened internally.
func (w *HDWallet) PrivateKey(account, index uint32) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	account |= hardenedOffset
	index |= hardenedOffset

	k1, c1, err := derivePrivate(w.masterKey, w.masterChain, account)
	if err != nil {
		return nil, nil, err
	}
	k2, _, err := derivePrivate(k1, c1, index)
	if err != nil {
		return nil, nil, err
	}
	priv := ed25519.NewKeyFromSeed(k2)
	pub := priv.Public().(ed25519.PublicKey)
	return priv, pub, nil
}

// pubKeyToAddress converts a 32-byte ed25519 public key into a 20-byte
// address: SHA-256(pub) -> RIPEMD-160 -> Address.
func pubKeyToAddress(pub ed25519.PublicKey) Address {
	sha := sha256.Sum256(pub)
	ripemd := ripemd160.New()
	ripemd.Write(sha[:])
	var out Address
	copy(out[:], ripemd.Sum(nil))
	return out
}

// NewAddress derives account+index and returns its Address, used as a node's
// reward WalletKey (spec §4.3.2 RewardableNode.WalletKey).
func (w *HDWallet) NewAddress(account, index uint32) (Address, error) {
	_, pub, err := w.PrivateKey(account, index)
	if err != nil {
		return Address{}, err
	}
	return pubKeyToAddress(pub), nil
}

// NodeName derives account+index and returns the NodeName a section node
// announces itself under: the raw 32-byte ed25519 public key, rather than a
// further hash of it, since Reward Ledger lookups are keyed by NodeName and
// two distinct public keys must never collide by construction.
func (w *HDWallet) NodeName(account, index uint32) (NodeName, error) {
	_, pub, err := w.PrivateKey(account, index)
	if err != nil {
		return NodeName{}, err
	}
	var n NodeName
	copy(n[:], pub)
	return n, nil
}

// RandomMnemonicEntropy produces cryptographically secure random entropy of
// the given number of bits.
func RandomMnemonicEntropy(bits int) ([]byte, error) {
	if bits%32 != 0 {
		return nil, errors.New("entropy bits must be multiple of 32")
	}
	b := make([]byte, bits/8)
	if _, err := crand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Wipe zeroes a byte slice in place (best-effort; the GC may still have
// copied it elsewhere).
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
