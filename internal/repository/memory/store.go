// Package memory is an in-process implementation of the repository Store. It
// backs APP_STORE=memory and the service tests. Transactions are serialized:
// WithTx works on a copy of the state and swaps it in only when fn succeeds.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/gigledger/escrow/internal/models"
	repo "github.com/gigledger/escrow/internal/repository"
)

type state struct {
	contracts      map[string]models.Contract
	milestones     map[string]models.Milestone
	milestoneOrder []string
	orders         map[string]models.PaymentOrder
	orderSeq       []string
	wallets        map[string]models.Wallet
	walletByUser   map[string]string
	walletTxs      []models.WalletTransaction
	withdrawals    map[string]models.WithdrawalRequest
	withdrawalSeq  []string
	audit          []models.AuditLog
}

func newState() *state {
	return &state{
		contracts:    map[string]models.Contract{},
		milestones:   map[string]models.Milestone{},
		orders:       map[string]models.PaymentOrder{},
		wallets:      map[string]models.Wallet{},
		walletByUser: map[string]string{},
		withdrawals:  map[string]models.WithdrawalRequest{},
	}
}

func (s *state) clone() *state {
	return &state{
		contracts:      maps.Clone(s.contracts),
		milestones:     maps.Clone(s.milestones),
		milestoneOrder: slices.Clone(s.milestoneOrder),
		orders:         maps.Clone(s.orders),
		orderSeq:       slices.Clone(s.orderSeq),
		wallets:        maps.Clone(s.wallets),
		walletByUser:   maps.Clone(s.walletByUser),
		walletTxs:      slices.Clone(s.walletTxs),
		withdrawals:    maps.Clone(s.withdrawals),
		withdrawalSeq:  slices.Clone(s.withdrawalSeq),
		audit:          slices.Clone(s.audit),
	}
}

type Store struct {
	mu     sync.Mutex
	st     *state
	faults sync.Map // op name -> error
}

func NewStore() *Store { return &Store{st: newState()} }

// InjectFault makes every later call of op fail with err until ClearFaults.
// Op names are "<table>.<method>", e.g. "wallet_transactions.create".
func (s *Store) InjectFault(op string, err error) { s.faults.Store(op, err) }

func (s *Store) ClearFaults() { s.faults.Clear() }

func (s *Store) fault(op string) error {
	if v, ok := s.faults.Load(op); ok {
		return v.(error)
	}
	return nil
}

func (s *Store) Repos() repo.Repositories { return s.bind(nil) }

// WithTx holds the store lock for the whole of fn, so repositories obtained
// from Repos must not be used inside it.
func (s *Store) WithTx(ctx context.Context, fn func(r repo.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(s.bind(work)); err != nil {
		return err
	}
	s.st = work
	return nil
}

// AuditLogs returns a copy of the audit trail.
func (s *Store) AuditLogs() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.audit)
}

func (s *Store) bind(tx *state) repo.Repositories {
	b := binding{s: s, tx: tx}
	return repo.Repositories{
		Contracts:          contractsRepo{b},
		Milestones:         milestonesRepo{b},
		PaymentOrders:      paymentOrdersRepo{b},
		Wallets:            walletsRepo{b},
		WalletTransactions: walletTransactionsRepo{b},
		Withdrawals:        withdrawalsRepo{b},
		AuditLogs:          auditLogsRepo{b},
	}
}

type binding struct {
	s  *Store
	tx *state
}

// run applies fn to the transaction's working copy, or to the committed state
// under the store lock when not in a transaction.
func (b binding) run(ctx context.Context, op string, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.s.fault(op); err != nil {
		return err
	}
	if b.tx != nil {
		return fn(b.tx)
	}
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	return fn(b.s.st)
}
