package core

import (
	"bytes"
	"fmt"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// BlobKind distinguishes the two addressing schemes a blob may use (spec §3).
type BlobKind uint8

const (
	// Public blobs are addressed by hash(bytes) alone: readable by anyone,
	// never deletable.
	Public BlobKind = iota + 1
	// Private blobs are addressed by hash(bytes || owner_key): only the
	// owner may read or delete them.
	Private
)

func (k BlobKind) String() string {
	if k == Private {
		return "private"
	}
	return "public"
}

// BlobAddress is a fixed-width content identifier tagged with its Kind. It
// wraps a CIDv1(raw, sha2-256) the way a content-addressed storage gateway
// computes a content identifier, but is purely local: it never touches a
// network gateway.
type BlobAddress struct {
	Kind BlobKind
	cid  cid.Cid
}

// NewBlobAddress computes the address for bytes under the given kind. For
// Private blobs, ownerKey is mixed into the hash input per spec §3.
func NewBlobAddress(kind BlobKind, data []byte, ownerKey []byte) (BlobAddress, error) {
	input := data
	if kind == Private {
		input = make([]byte, 0, len(data)+len(ownerKey))
		input = append(input, data...)
		input = append(input, ownerKey...)
	}
	sum, err := mh.Sum(input, mh.SHA2_256, -1)
	if err != nil {
		return BlobAddress{}, fmt.Errorf("blob address: %w", err)
	}
	return BlobAddress{Kind: kind, cid: cid.NewCidV1(cid.Raw, sum)}, nil
}

// String returns the canonical (lower-case base32 CIDv1) text form, also
// used as the on-disk filename stem (spec §6).
func (a BlobAddress) String() string { return a.cid.String() }

// Equal reports whether two addresses refer to the same blob of the same
// kind.
func (a BlobAddress) Equal(o BlobAddress) bool {
	return a.Kind == o.Kind && a.cid.Equals(o.cid)
}

// ParseBlobAddress decodes an address previously produced by String, e.g.
// when recomputing it from a filename during a store invariant check.
func ParseBlobAddress(kind BlobKind, s string) (BlobAddress, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return BlobAddress{}, fmt.Errorf("blob address: %w", err)
	}
	return BlobAddress{Kind: kind, cid: c}, nil
}

// Blob is immutable content-addressed bytes, public or private.
type Blob struct {
	Address BlobAddress
	Data    []byte
	// Owner is the key private blobs are bound to; empty for public blobs.
	Owner []byte
}

// NewPublicBlob computes the address of data and returns the resulting Blob.
func NewPublicBlob(data []byte) (Blob, error) {
	addr, err := NewBlobAddress(Public, data, nil)
	if err != nil {
		return Blob{}, err
	}
	return Blob{Address: addr, Data: data}, nil
}

// NewPrivateBlob computes the owner-bound address of data and returns the
// resulting Blob.
func NewPrivateBlob(data []byte, owner []byte) (Blob, error) {
	addr, err := NewBlobAddress(Private, data, owner)
	if err != nil {
		return Blob{}, err
	}
	return Blob{Address: addr, Data: data, Owner: owner}, nil
}

// VerifyAddress recomputes the blob's address from its bytes and confirms it
// equals the key it is stored under — the invariant spec §3 requires of
// every stored blob.
func (b Blob) VerifyAddress() error {
	want, err := NewBlobAddress(b.Address.Kind, b.Data, b.Owner)
	if err != nil {
		return err
	}
	if !want.Equal(b.Address) {
		return fmt.Errorf("blob: address mismatch for stored blob")
	}
	return nil
}

// OwnedBy reports whether key is the owner of a private blob. Public blobs
// are never "owned" in the authorization sense — callers should use
// IsPublic first.
func (b Blob) OwnedBy(key []byte) bool {
	return b.Address.Kind == Private && bytes.Equal(b.Owner, key)
}

// IsPublic reports whether the blob uses public addressing.
func (b Blob) IsPublic() bool { return b.Address.Kind == Public }
