package tests

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/textileio/go-durablevote/pkg/ledger"
	"github.com/textileio/go-durablevote/pkg/nonce"
	"github.com/textileio/go-durablevote/pkg/poll"
	"github.com/textileio/go-durablevote/pkg/wallet"
)

// recentBlockhashes is the number of blocks a blockhash stays valid for.
const recentBlockhashes = 150

type simulatedAccount struct {
	lamports uint64
	owner    solana.PublicKey
	data     []byte
}

// SimulatedLedger is an in-memory ledger that executes the system program
// instructions used by nonce accounts and the poll program. Every executed
// transaction produces a new block.
type SimulatedLedger struct {
	ProgramID solana.PublicKey

	mu         sync.Mutex
	accounts   map[solana.PublicKey]simulatedAccount
	recent     []solana.Hash
	signatures map[solana.Signature]struct{}
	sends      int
	failure    func(*solana.Transaction) error
}

var _ ledger.Client = (*SimulatedLedger)(nil)

// NewSimulatedLedger creates a simulated ledger with the poll program deployed at programID.
func NewSimulatedLedger(programID solana.PublicKey) *SimulatedLedger {
	genesis := solana.Hash(sha256.Sum256([]byte("genesis")))
	return &SimulatedLedger{
		ProgramID:  programID,
		accounts:   map[solana.PublicKey]simulatedAccount{},
		recent:     []solana.Hash{genesis},
		signatures: map[solana.Signature]struct{}{},
	}
}

// LatestBlockhash implements ledger.Client.
func (l *SimulatedLedger) LatestBlockhash(_ context.Context) (solana.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recent[len(l.recent)-1], nil
}

// AccountData implements ledger.Client.
func (l *SimulatedLedger) AccountData(_ context.Context, address solana.PublicKey) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[address]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return append([]byte{}, acc.data...), nil
}

// MinimumBalanceForRentExemption implements ledger.Client.
func (l *SimulatedLedger) MinimumBalanceForRentExemption(_ context.Context, size uint64) (uint64, error) {
	return (size + 128) * 6960, nil
}

// SendAndConfirm implements ledger.Client. The transaction is executed atomically:
// if any instruction fails no state is modified.
func (l *SimulatedLedger) SendAndConfirm(_ context.Context, raw []byte) (solana.Signature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sends++

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: decoding transaction: %s", ledger.ErrTransactionFailed, err)
	}
	if l.failure != nil {
		if err := l.failure(tx); err != nil {
			return solana.Signature{}, fmt.Errorf("%w: %s", ledger.ErrTransactionFailed, err)
		}
	}
	if err := wallet.VerifySignatures(tx); err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %s", ledger.ErrTransactionFailed, err)
	}
	sig := tx.Signatures[0]
	if _, ok := l.signatures[sig]; ok {
		return solana.Signature{}, fmt.Errorf("%w: transaction already processed", ledger.ErrTransactionFailed)
	}

	ex := &execution{
		ledger:   l,
		tx:       tx,
		accounts: make(map[solana.PublicKey]simulatedAccount, len(l.accounts)),
		block:    solana.Hash(sha256.Sum256(append(l.recent[len(l.recent)-1][:], raw...))),
	}
	for k, v := range l.accounts {
		ex.accounts[k] = v
	}
	if err := ex.run(); err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %s", ledger.ErrTransactionFailed, err)
	}

	l.accounts = ex.accounts
	l.signatures[sig] = struct{}{}
	l.pushBlock(ex.block)

	return sig, nil
}

// FailWith makes SendAndConfirm reject transactions for which f returns an error.
// A nil f removes the failure. f runs while the ledger is locked.
func (l *SimulatedLedger) FailWith(f func(*solana.Transaction) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failure = f
}

// Sends returns the number of transactions submitted so far, including rejected ones.
func (l *SimulatedLedger) Sends() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sends
}

// ProduceBlocks advances the ledger n empty blocks. Blockhashes older than
// the recent window stop being valid transaction lifetimes.
func (l *SimulatedLedger) ProduceBlocks(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i < n; i++ {
		last := l.recent[len(l.recent)-1]
		l.pushBlock(solana.Hash(sha256.Sum256(last[:])))
	}
}

// Tally reads the poll account at address.
func (l *SimulatedLedger) Tally(address solana.PublicKey) (poll.Tally, error) {
	data, err := l.AccountData(context.Background(), address)
	if err != nil {
		return poll.Tally{}, err
	}
	p, err := poll.DecodeAccount(address, data)
	if err != nil {
		return poll.Tally{}, err
	}
	return p.Tally, nil
}

func (l *SimulatedLedger) pushBlock(h solana.Hash) {
	l.recent = append(l.recent, h)
	if len(l.recent) > recentBlockhashes {
		l.recent = l.recent[len(l.recent)-recentBlockhashes:]
	}
}

func (l *SimulatedLedger) isRecent(h solana.Hash) bool {
	for _, r := range l.recent {
		if r == h {
			return true
		}
	}
	return false
}

type execution struct {
	ledger   *SimulatedLedger
	tx       *solana.Transaction
	accounts map[solana.PublicKey]simulatedAccount
	block    solana.Hash
}

func (ex *execution) run() error {
	msg := ex.tx.Message
	if len(msg.Instructions) == 0 {
		return errors.New("no instructions")
	}

	if err := ex.checkLifetime(); err != nil {
		return err
	}

	for i, ix := range msg.Instructions {
		if int(ix.ProgramIDIndex) >= len(msg.AccountKeys) {
			return fmt.Errorf("instruction %d: invalid program index", i)
		}
		programID := msg.AccountKeys[ix.ProgramIDIndex]
		var err error
		switch {
		case programID.Equals(solana.SystemProgramID):
			err = ex.system(ix)
		case programID.Equals(ex.ledger.ProgramID):
			err = ex.poll(ix)
		default:
			err = fmt.Errorf("unknown program %s", programID)
		}
		if err != nil {
			return fmt.Errorf("instruction %d: %s", i, err)
		}
	}
	return nil
}

// checkLifetime accepts a recent blockhash or, when the first instruction
// advances a nonce account, the nonce stored in that account.
func (ex *execution) checkLifetime() error {
	msg := ex.tx.Message
	first := msg.Instructions[0]
	if int(first.ProgramIDIndex) >= len(msg.AccountKeys) {
		return errors.New("invalid program index")
	}
	if msg.AccountKeys[first.ProgramIDIndex].Equals(solana.SystemProgramID) &&
		systemOp(first.Data) == system.Instruction_AdvanceNonceAccount {
		address, _, err := ex.key(first, 0)
		if err != nil {
			return err
		}
		acc, err := ex.nonceAccount(address)
		if err != nil {
			return err
		}
		if acc.Nonce != msg.RecentBlockhash {
			return errors.New("blockhash not found")
		}
		return nil
	}
	if !ex.ledger.isRecent(msg.RecentBlockhash) {
		return errors.New("blockhash not found")
	}
	return nil
}

func systemOp(data []byte) uint32 {
	if len(data) < 4 {
		return ^uint32(0)
	}
	return binary.LittleEndian.Uint32(data[:4])
}

func (ex *execution) key(ix solana.CompiledInstruction, pos int) (solana.PublicKey, bool, error) {
	if pos >= len(ix.Accounts) {
		return solana.PublicKey{}, false, fmt.Errorf("missing account %d", pos)
	}
	idx := ix.Accounts[pos]
	if int(idx) >= len(ex.tx.Message.AccountKeys) {
		return solana.PublicKey{}, false, fmt.Errorf("invalid account index %d", idx)
	}
	signer := int(idx) < int(ex.tx.Message.Header.NumRequiredSignatures)
	return ex.tx.Message.AccountKeys[idx], signer, nil
}

func (ex *execution) durableNonce() solana.Hash {
	return solana.Hash(sha256.Sum256(append([]byte("DURABLE_NONCE"), ex.block[:]...)))
}

func (ex *execution) nonceAccount(address solana.PublicKey) (nonce.Account, error) {
	acc, ok := ex.accounts[address]
	if !ok {
		return nonce.Account{}, fmt.Errorf("nonce account %s not found", address)
	}
	return nonce.DecodeAccount(acc.data)
}

func (ex *execution) system(ix solana.CompiledInstruction) error {
	metas, err := ix.ResolveInstructionAccounts(&ex.tx.Message)
	if err != nil {
		return fmt.Errorf("resolving accounts: %s", err)
	}
	decoded, err := system.DecodeInstruction(metas, ix.Data)
	if err != nil {
		return fmt.Errorf("decoding system instruction: %s", err)
	}

	switch inst := decoded.Impl.(type) {
	case *system.CreateAccount:
		newAccount, signer, err := ex.key(ix, 1)
		if err != nil {
			return err
		}
		if !signer {
			return errors.New("create account: new account must sign")
		}
		if _, ok := ex.accounts[newAccount]; ok {
			return fmt.Errorf("create account: %s already in use", newAccount)
		}
		ex.accounts[newAccount] = simulatedAccount{
			lamports: *inst.Lamports,
			owner:    *inst.Owner,
			data:     make([]byte, *inst.Space),
		}
	case *system.InitializeNonceAccount:
		address, _, err := ex.key(ix, 0)
		if err != nil {
			return err
		}
		acc, ok := ex.accounts[address]
		if !ok || !acc.owner.Equals(solana.SystemProgramID) || len(acc.data) != nonce.AccountSize {
			return errors.New("initialize nonce: invalid account")
		}
		state, err := nonce.DecodeAccount(acc.data)
		if err != nil {
			return err
		}
		if state.State != nonce.StateUninitialized {
			return errors.New("initialize nonce: account already initialized")
		}
		rent, _ := ex.ledger.MinimumBalanceForRentExemption(context.Background(), nonce.AccountSize)
		if acc.lamports < rent {
			return errors.New("initialize nonce: insufficient funds for rent")
		}
		return ex.writeNonce(address, nonce.Account{
			Version:              1,
			State:                nonce.StateInitialized,
			Authority:            *inst.Authorized,
			Nonce:                ex.durableNonce(),
			LamportsPerSignature: 5000,
		})
	case *system.AdvanceNonceAccount:
		address, _, err := ex.key(ix, 0)
		if err != nil {
			return err
		}
		authority, signer, err := ex.key(ix, 2)
		if err != nil {
			return err
		}
		state, err := ex.nonceAccount(address)
		if err != nil {
			return err
		}
		if state.State != nonce.StateInitialized {
			return errors.New("advance nonce: account not initialized")
		}
		if !signer || !authority.Equals(state.Authority) {
			return errors.New("advance nonce: authority must sign")
		}
		next := ex.durableNonce()
		if next == state.Nonce {
			return errors.New("advance nonce: nonce can only advance once per block")
		}
		state.Nonce = next
		return ex.writeNonce(address, state)
	default:
		return fmt.Errorf("unsupported system instruction %T", decoded.Impl)
	}
	return nil
}

func (ex *execution) writeNonce(address solana.PublicKey, state nonce.Account) error {
	data, err := nonce.EncodeAccount(state)
	if err != nil {
		return err
	}
	acc := ex.accounts[address]
	acc.data = data
	ex.accounts[address] = acc
	return nil
}

func (ex *execution) poll(ix solana.CompiledInstruction) error {
	data := []byte(ix.Data)
	if len(data) < 8 {
		return errors.New("missing discriminator")
	}

	address, signer, err := ex.key(ix, 0)
	if err != nil {
		return err
	}

	var disc [8]byte
	copy(disc[:], data[:8])
	switch disc {
	case poll.CreateDiscriminator:
		if !signer {
			return errors.New("create poll: poll account must sign")
		}
		if _, ok := ex.accounts[address]; ok {
			return fmt.Errorf("create poll: %s already in use", address)
		}
		state, err := poll.EncodeAccount(poll.Tally{})
		if err != nil {
			return err
		}
		ex.accounts[address] = simulatedAccount{owner: ex.ledger.ProgramID, data: state}
	case poll.VoteDiscriminator:
		_, voterSigned, err := ex.key(ix, 1)
		if err != nil {
			return err
		}
		if !voterSigned {
			return errors.New("vote: voter must sign")
		}
		acc, ok := ex.accounts[address]
		if !ok || !acc.owner.Equals(ex.ledger.ProgramID) {
			return fmt.Errorf("vote: poll %s not found", address)
		}
		p, err := poll.DecodeAccount(address, acc.data)
		if err != nil {
			return err
		}
		c, err := poll.DecodeVoteInstruction(data)
		if err != nil {
			return err
		}
		state, err := poll.EncodeAccount(p.Tally.Add(c))
		if err != nil {
			return err
		}
		acc.data = state
		ex.accounts[address] = acc
	default:
		return errors.New("unknown poll instruction")
	}
	return nil
}
