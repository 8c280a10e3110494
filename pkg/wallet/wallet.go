package wallet

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// ErrNotSigner indicates that a key isn't one of the required signers of a transaction.
var ErrNotSigner = errors.New("key is not a required signer")

// ErrMissingSignature indicates that a required signer didn't sign the transaction.
var ErrMissingSignature = errors.New("missing signature")

// ErrInvalidSignature indicates that a signature doesn't verify against the transaction message.
var ErrInvalidSignature = errors.New("invalid signature")

// Signer signs transactions on behalf of a single public key.
type Signer interface {
	PublicKey() solana.PublicKey
	SignTransaction(context.Context, *solana.Transaction) error
}

// Wallet stores a secret key and its public key. It's the only holder of
// the key's signing capability.
type Wallet struct {
	sk solana.PrivateKey
	pk solana.PublicKey
}

var _ Signer = (*Wallet)(nil)

// NewWallet creates a new wallet from a base58 encoded secret key.
func NewWallet(sk string) (*Wallet, error) {
	privateKey, err := solana.PrivateKeyFromBase58(sk)
	if err != nil {
		return &Wallet{}, fmt.Errorf("decoding base58 private key: %s", err)
	}
	if len(privateKey) != ed25519.PrivateKeySize {
		return &Wallet{}, fmt.Errorf("private key has %d bytes, expected %d", len(privateKey), ed25519.PrivateKeySize)
	}

	return &Wallet{
		sk: privateKey,
		pk: privateKey.PublicKey(),
	}, nil
}

// NewRandomWallet creates a wallet with a freshly generated key.
func NewRandomWallet() (*Wallet, error) {
	privateKey, err := solana.NewRandomPrivateKey()
	if err != nil {
		return &Wallet{}, fmt.Errorf("generating private key: %s", err)
	}
	return &Wallet{
		sk: privateKey,
		pk: privateKey.PublicKey(),
	}, nil
}

// PublicKey returns the wallet public key.
func (w *Wallet) PublicKey() solana.PublicKey {
	return w.pk
}

// SignTransaction adds the wallet signature to tx, keeping the signatures already present.
func (w *Wallet) SignTransaction(_ context.Context, tx *solana.Transaction) error {
	return PartialSign(tx, w.sk)
}

// PartialSign signs tx with each of the keys. Every key must be a required
// signer of the transaction message.
func PartialSign(tx *solana.Transaction, keys ...solana.PrivateKey) error {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshaling message: %s", err)
	}

	required := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) != required {
		signatures := make([]solana.Signature, required)
		copy(signatures, tx.Signatures)
		tx.Signatures = signatures
	}

	for _, key := range keys {
		idx := signerIndex(tx, key.PublicKey())
		if idx < 0 {
			return fmt.Errorf("%s: %w", key.PublicKey(), ErrNotSigner)
		}
		signature, err := key.Sign(msg)
		if err != nil {
			return fmt.Errorf("signing message: %s", err)
		}
		tx.Signatures[idx] = signature
	}

	return nil
}

// SignEncoded decodes a base58 wire transaction, adds the signature of signer
// and returns the re-encoded transaction.
func SignEncoded(ctx context.Context, signer Signer, encoded string) (string, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding base58: %s", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", fmt.Errorf("decoding transaction: %s", err)
	}
	if err := signer.SignTransaction(ctx, tx); err != nil {
		return "", err
	}
	signed, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("marshaling transaction: %s", err)
	}
	return base58.Encode(signed), nil
}

// VerifySignatures checks that every required signer of tx has a valid signature.
func VerifySignatures(tx *solana.Transaction) error {
	required := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) != required || len(tx.Message.AccountKeys) < required {
		return ErrMissingSignature
	}
	for i, sig := range tx.Signatures {
		if sig == (solana.Signature{}) {
			return fmt.Errorf("%s: %w", tx.Message.AccountKeys[i], ErrMissingSignature)
		}
	}
	if err := tx.VerifySignatures(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	return nil
}

func signerIndex(tx *solana.Transaction, pk solana.PublicKey) int {
	required := int(tx.Message.Header.NumRequiredSignatures)
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(pk) {
			return i
		}
	}
	return -1
}
