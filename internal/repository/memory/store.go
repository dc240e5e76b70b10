// Package memory is an in-process implementation of domain.Store. Transactions
// are serialized by one mutex and a snapshot of all data is restored when the
// callback fails, so it honours the same atomicity contract as the PostgreSQL
// store.
//
// Every transaction copies the whole data set, so the cost of each operation
// grows with the number of stored rows and nothing survives a restart. Use it
// for tests and demos only (STORE_DRIVER=memory); production runs on PostgreSQL.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"microfinance/internal/domain"
)

type state struct {
	accounts     map[int64]domain.Account
	customers    map[int64]domain.Customer
	users        map[int64]domain.User
	zones        map[int64]domain.Zone
	loans        map[int64]domain.Loan
	sources      map[int64]domain.Source
	transactions map[uuid.UUID]domain.Transaction
	audit        []domain.AuditEntry
	tariffRuns   map[string]domain.TariffRun
	nextID       map[string]int64
}

func newState() *state {
	return &state{
		accounts:     map[int64]domain.Account{},
		customers:    map[int64]domain.Customer{},
		users:        map[int64]domain.User{},
		zones:        map[int64]domain.Zone{},
		loans:        map[int64]domain.Loan{},
		sources:      map[int64]domain.Source{},
		transactions: map[uuid.UUID]domain.Transaction{},
		tariffRuns:   map[string]domain.TariffRun{},
		nextID:       map[string]int64{},
	}
}

// clone copies every map. Entities are stored by value so copying the maps is
// enough to isolate the snapshot.
func (s *state) clone() *state {
	cp := newState()
	for k, v := range s.accounts {
		cp.accounts[k] = v
	}
	for k, v := range s.customers {
		cp.customers[k] = v
	}
	for k, v := range s.users {
		cp.users[k] = v
	}
	for k, v := range s.zones {
		cp.zones[k] = v
	}
	for k, v := range s.loans {
		cp.loans[k] = v
	}
	for k, v := range s.sources {
		cp.sources[k] = v
	}
	for k, v := range s.transactions {
		cp.transactions[k] = v
	}
	cp.audit = append([]domain.AuditEntry(nil), s.audit...)
	for k, v := range s.tariffRuns {
		cp.tariffRuns[k] = v
	}
	for k, v := range s.nextID {
		cp.nextID[k] = v
	}
	return cp
}

func (s *state) next(table string) int64 {
	s.nextID[table]++
	return s.nextID[table]
}

type Store struct {
	mu     *sync.Mutex
	data   **state
	inTx   bool
	logger *slog.Logger
	now    func() time.Time
}

var _ domain.Store = (*Store)(nil)

// NewStore returns an empty store holding only the system source account.
func NewStore(logger *slog.Logger) *Store {
	st := newState()
	now := time.Now()
	id := st.next("accounts")
	st.accounts[id] = domain.Account{
		ID:         id,
		Name:       "Source",
		Type:       domain.AccountTypeSource,
		State:      domain.AccountOpen,
		DateOpened: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	return &Store{
		mu:     &sync.Mutex{},
		data:   &st,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Store) Accounts() domain.AccountRepository         { return &accountRepo{s} }
func (s *Store) Customers() domain.CustomerRepository       { return &customerRepo{s} }
func (s *Store) Users() domain.UserRepository               { return &userRepo{s} }
func (s *Store) Zones() domain.ZoneRepository               { return &zoneRepo{s} }
func (s *Store) Loans() domain.LoanRepository               { return &loanRepo{s} }
func (s *Store) Sources() domain.SourceRepository           { return &sourceRepo{s} }
func (s *Store) Transactions() domain.TransactionRepository { return &transactionRepo{s} }
func (s *Store) Audit() domain.AuditRepository              { return &auditRepo{s} }
func (s *Store) TariffRuns() domain.TariffRunRepository     { return &tariffRunRepo{s} }

// WithTransaction holds the store lock for the whole callback. On error or
// panic the data is restored to the snapshot taken at the start. Taking the
// snapshot is O(n) in the stored rows.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx domain.Store) error) (err error) {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := (*s.data).clone()
	txStore := &Store{mu: s.mu, data: s.data, inTx: true, logger: s.logger, now: s.now}

	defer func() {
		if p := recover(); p != nil {
			*s.data = snapshot
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		*s.data = snapshot
		s.logger.Debug("Rolled back in-memory transaction", "error", err)
		return err
	}
	return nil
}

// view runs fn against the data, taking the lock unless the caller already
// holds it through WithTransaction.
func (s *Store) view(fn func(st *state) error) error {
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(*s.data)
}

func sortedKeys[K int64 | string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
