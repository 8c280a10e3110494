package wallet

import (
	"context"
	"errors"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
)

func TestNewWallet(t *testing.T) {
	t.Parallel()

	sk, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	w, err := NewWallet(sk.String())
	require.NoError(t, err)
	require.Equal(t, sk.PublicKey(), w.PublicKey())

	_, err = NewWallet("not-base58-0OIl")
	require.Error(t, err)

	_, err = NewWallet(solana.NewWallet().PublicKey().String())
	require.Error(t, err)
}

func TestPartialSignAndVerify(t *testing.T) {
	t.Parallel()

	payer, err := NewRandomWallet()
	require.NoError(t, err)
	cosigner, err := NewRandomWallet()
	require.NoError(t, err)

	tx := twoSignerTx(t, payer.PublicKey(), cosigner.PublicKey())

	require.NoError(t, cosigner.SignTransaction(context.Background(), tx))
	require.ErrorIs(t, VerifySignatures(tx), ErrMissingSignature)

	require.NoError(t, payer.SignTransaction(context.Background(), tx))
	require.NoError(t, VerifySignatures(tx))

	// a signature in the wrong slot doesn't verify
	swapped := *tx
	swapped.Signatures = []solana.Signature{tx.Signatures[1], tx.Signatures[0]}
	require.ErrorIs(t, VerifySignatures(&swapped), ErrInvalidSignature)

	// tampering with the message invalidates the signatures
	tx.Message.RecentBlockhash = solana.Hash(solana.NewWallet().PublicKey())
	require.ErrorIs(t, VerifySignatures(tx), ErrInvalidSignature)
}

func TestPartialSignRejectsForeignKey(t *testing.T) {
	t.Parallel()

	payer, err := NewRandomWallet()
	require.NoError(t, err)
	cosigner, err := NewRandomWallet()
	require.NoError(t, err)
	stranger, err := NewRandomWallet()
	require.NoError(t, err)

	tx := twoSignerTx(t, payer.PublicKey(), cosigner.PublicKey())
	err = stranger.SignTransaction(context.Background(), tx)
	require.True(t, errors.Is(err, ErrNotSigner))
}

func TestSignEncoded(t *testing.T) {
	t.Parallel()

	payer, err := NewRandomWallet()
	require.NoError(t, err)
	cosigner, err := NewRandomWallet()
	require.NoError(t, err)

	tx := twoSignerTx(t, payer.PublicKey(), cosigner.PublicKey())
	require.NoError(t, cosigner.SignTransaction(context.Background(), tx))
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	signed, err := SignEncoded(context.Background(), payer, base58.Encode(raw))
	require.NoError(t, err)

	raw, err = base58.Decode(signed)
	require.NoError(t, err)
	decoded, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	require.NoError(t, err)
	require.NoError(t, VerifySignatures(decoded))

	_, err = SignEncoded(context.Background(), payer, "0OIl")
	require.Error(t, err)
}

func twoSignerTx(t *testing.T, payer, cosigner solana.PublicKey) *solana.Transaction {
	t.Helper()

	recipient := solana.NewWallet().PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(1, payer, recipient).Build(),
			system.NewTransferInstruction(1, cosigner, recipient).Build(),
		},
		solana.Hash(solana.NewWallet().PublicKey()),
		solana.TransactionPayer(payer),
	)
	require.NoError(t, err)
	require.Equal(t, uint8(2), tx.Message.Header.NumRequiredSignatures)
	return tx
}
