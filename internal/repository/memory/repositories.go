package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"microfinance/internal/domain"
	"microfinance/internal/errors"
)

type accountRepo struct{ s *Store }

func (r *accountRepo) CreateAccount(ctx context.Context, account *domain.Account) error {
	return r.s.view(func(st *state) error {
		for _, existing := range st.accounts {
			if account.Type == domain.AccountTypeSource && existing.Type == domain.AccountTypeSource {
				return errors.ErrDuplicateAccount.WithDetails("source account already exists")
			}
			if account.UserID != nil && existing.UserID != nil && *existing.UserID == *account.UserID {
				return errors.ErrDuplicateAccount.WithDetailsf("user %d already has an account", *account.UserID)
			}
		}
		now := r.s.now()
		account.ID = st.next("accounts")
		account.CreatedAt = now
		account.UpdatedAt = now
		st.accounts[account.ID] = *account
		return nil
	})
}

func (r *accountRepo) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	var out *domain.Account
	err := r.s.view(func(st *state) error {
		acc, ok := st.accounts[id]
		if !ok {
			return errors.ErrAccountNotFound.WithDetailsf("account %d", id)
		}
		out = &acc
		return nil
	})
	return out, err
}

// GetAccountForUpdate is a plain read: the transaction mutex already
// excludes every other writer.
func (r *accountRepo) GetAccountForUpdate(ctx context.Context, id int64) (*domain.Account, error) {
	return r.GetAccount(ctx, id)
}

func (r *accountRepo) GetSourceAccount(ctx context.Context) (*domain.Account, error) {
	return r.find(func(a domain.Account) bool { return a.Type == domain.AccountTypeSource }, "source account")
}

func (r *accountRepo) GetUserAccount(ctx context.Context, userID int64) (*domain.Account, error) {
	return r.find(func(a domain.Account) bool {
		return a.Type == domain.AccountTypeUser && a.UserID != nil && *a.UserID == userID
	}, "no account for user")
}

func (r *accountRepo) find(match func(domain.Account) bool, details string) (*domain.Account, error) {
	var out *domain.Account
	err := r.s.view(func(st *state) error {
		for _, id := range sortedKeys(st.accounts) {
			if acc := st.accounts[id]; match(acc) {
				out = &acc
				return nil
			}
		}
		return errors.ErrAccountNotFound.WithDetails(details)
	})
	return out, err
}

func (r *accountRepo) ListCustomerAccounts(ctx context.Context, customerID int64) ([]*domain.Account, error) {
	var out []*domain.Account
	err := r.s.view(func(st *state) error {
		for _, id := range sortedKeys(st.accounts) {
			acc := st.accounts[id]
			if acc.OwnedByCustomer(customerID) {
				out = append(out, &acc)
			}
		}
		return nil
	})
	return out, err
}

func (r *accountRepo) ListOpenCustomerAccountIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.s.view(func(st *state) error {
		for _, id := range sortedKeys(st.accounts) {
			acc := st.accounts[id]
			if acc.Type == domain.AccountTypeCustomer && acc.IsOpen() {
				ids = append(ids, id)
			}
		}
		return nil
	})
	return ids, err
}

func (r *accountRepo) UpdateAccountBalance(ctx context.Context, id int64, balance int64) error {
	return r.s.view(func(st *state) error {
		acc, ok := st.accounts[id]
		if !ok {
			return errors.ErrAccountNotFound.WithDetailsf("account %d", id)
		}
		if balance < 0 {
			return errors.NewAppErrorf(errors.InternalError, "balance of account %d would be negative", id)
		}
		acc.Balance = balance
		acc.UpdatedAt = r.s.now()
		st.accounts[id] = acc
		return nil
	})
}

func (r *accountRepo) UpdateAccountState(ctx context.Context, account *domain.Account) error {
	return r.s.view(func(st *state) error {
		acc, ok := st.accounts[account.ID]
		if !ok {
			return errors.ErrAccountNotFound.WithDetailsf("account %d", account.ID)
		}
		acc.State = account.State
		acc.DateClosed = account.DateClosed
		acc.UpdatedAt = r.s.now()
		st.accounts[account.ID] = acc
		return nil
	})
}

func (r *accountRepo) SumCustomerBalances(ctx context.Context) (domain.Aggregate, error) {
	var agg domain.Aggregate
	err := r.s.view(func(st *state) error {
		for _, acc := range st.accounts {
			if acc.Type == domain.AccountTypeCustomer && acc.IsOpen() {
				agg.Total += acc.Balance
				agg.Count++
			}
		}
		return nil
	})
	return agg, err
}

type customerRepo struct{ s *Store }

func (r *customerRepo) CreateCustomer(ctx context.Context, c *domain.Customer) error {
	return r.s.view(func(st *state) error {
		if _, ok := st.zones[c.ZoneID]; !ok {
			return errors.ErrZoneNotFound.WithDetailsf("zone %d", c.ZoneID)
		}
		for _, existing := range st.customers {
			if existing.IdentityNumber == c.IdentityNumber {
				return errors.ErrDuplicateCustomer.WithDetails("uq_customers_identity_number")
			}
			if existing.Contact == c.Contact {
				return errors.ErrDuplicateCustomer.WithDetails("uq_customers_contact")
			}
		}
		now := r.s.now()
		c.ID = st.next("customers")
		c.CreatedAt = now
		c.UpdatedAt = now
		st.customers[c.ID] = *c
		return nil
	})
}

func (r *customerRepo) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var out *domain.Customer
	err := r.s.view(func(st *state) error {
		c, ok := st.customers[id]
		if !ok {
			return errors.ErrCustomerNotFound.WithDetailsf("customer %d", id)
		}
		out = &c
		return nil
	})
	return out, err
}

type userRepo struct{ s *Store }

func (r *userRepo) CreateUser(ctx context.Context, u *domain.User) error {
	return r.s.view(func(st *state) error {
		for _, existing := range st.users {
			if existing.Email == u.Email {
				return errors.ErrDuplicateUser
			}
		}
		now := r.s.now()
		u.ID = st.next("users")
		u.CreatedAt = now
		u.UpdatedAt = now
		st.users[u.ID] = *u
		return nil
	})
}

func (r *userRepo) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var out *domain.User
	err := r.s.view(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return errors.ErrUserNotFound.WithDetailsf("user %d", id)
		}
		out = &u
		return nil
	})
	return out, err
}

type zoneRepo struct{ s *Store }

func (r *zoneRepo) CreateZone(ctx context.Context, z *domain.Zone) error {
	return r.s.view(func(st *state) error {
		for _, existing := range st.zones {
			if existing.Name == z.Name {
				return errors.ErrDuplicateZone.WithDetails(z.Name)
			}
		}
		z.ID = st.next("zones")
		z.CreatedAt = r.s.now()
		st.zones[z.ID] = *z
		return nil
	})
}

func (r *zoneRepo) GetZone(ctx context.Context, id int64) (*domain.Zone, error) {
	var out *domain.Zone
	err := r.s.view(func(st *state) error {
		z, ok := st.zones[id]
		if !ok {
			return errors.ErrZoneNotFound.WithDetailsf("zone %d", id)
		}
		out = &z
		return nil
	})
	return out, err
}

type loanRepo struct{ s *Store }

func (r *loanRepo) CreateLoan(ctx context.Context, loan *domain.Loan) error {
	return r.s.view(func(st *state) error {
		if _, ok := st.customers[loan.CustomerID]; !ok {
			return errors.ErrCustomerNotFound.WithDetailsf("customer %d", loan.CustomerID)
		}
		now := r.s.now()
		loan.ID = st.next("loans")
		loan.CreatedAt = now
		loan.UpdatedAt = now
		st.loans[loan.ID] = *loan
		return nil
	})
}

func (r *loanRepo) GetLoan(ctx context.Context, id int64) (*domain.Loan, error) {
	var out *domain.Loan
	err := r.s.view(func(st *state) error {
		loan, ok := st.loans[id]
		if !ok {
			return errors.ErrLoanNotFound.WithDetailsf("loan %d", id)
		}
		out = &loan
		return nil
	})
	return out, err
}

func (r *loanRepo) GetLoanForUpdate(ctx context.Context, id int64) (*domain.Loan, error) {
	return r.GetLoan(ctx, id)
}

func (r *loanRepo) UpdateLoan(ctx context.Context, loan *domain.Loan) error {
	return r.s.view(func(st *state) error {
		existing, ok := st.loans[loan.ID]
		if !ok {
			return errors.ErrLoanNotFound.WithDetailsf("loan %d", loan.ID)
		}
		if loan.Balance < 0 || loan.Balance > existing.Amount {
			return errors.NewAppErrorf(errors.InternalError, "loan %d balance %d out of bounds", loan.ID, loan.Balance)
		}
		existing.Balance = loan.Balance
		existing.Status = loan.Status
		existing.UpdatedAt = r.s.now()
		st.loans[loan.ID] = existing
		return nil
	})
}

func (r *loanRepo) DeleteLoan(ctx context.Context, id int64) error {
	return r.s.view(func(st *state) error {
		if _, ok := st.loans[id]; !ok {
			return errors.ErrLoanNotFound.WithDetailsf("loan %d", id)
		}
		delete(st.loans, id)
		return nil
	})
}

func (r *loanRepo) ListCustomerLoans(ctx context.Context, customerID int64) ([]*domain.Loan, error) {
	var out []*domain.Loan
	err := r.s.view(func(st *state) error {
		for _, id := range sortedKeys(st.loans) {
			if loan := st.loans[id]; loan.CustomerID == customerID {
				out = append(out, &loan)
			}
		}
		return nil
	})
	return out, err
}

type sourceRepo struct{ s *Store }

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (r *sourceRepo) CreateSource(ctx context.Context, source *domain.Source) error {
	return r.s.view(func(st *state) error {
		if _, ok := st.zones[source.ZoneID]; !ok {
			return errors.ErrZoneNotFound.WithDetailsf("zone %d", source.ZoneID)
		}
		for _, existing := range st.sources {
			if existing.ZoneID == source.ZoneID && sameDay(existing.Date, source.Date) {
				return errors.ErrDuplicateSourceForZoneAndDate
			}
		}
		now := r.s.now()
		source.ID = st.next("sources")
		source.CreatedAt = now
		source.UpdatedAt = now
		st.sources[source.ID] = *source
		return nil
	})
}

func (r *sourceRepo) GetSource(ctx context.Context, id int64) (*domain.Source, error) {
	var out *domain.Source
	err := r.s.view(func(st *state) error {
		src, ok := st.sources[id]
		if !ok {
			return errors.ErrSourceNotFound.WithDetailsf("source %d", id)
		}
		out = &src
		return nil
	})
	return out, err
}

func (r *sourceRepo) GetSourceForUpdate(ctx context.Context, id int64) (*domain.Source, error) {
	return r.GetSource(ctx, id)
}

func (r *sourceRepo) ExistsForZoneAndDate(ctx context.Context, zoneID int64, date time.Time) (bool, error) {
	var exists bool
	err := r.s.view(func(st *state) error {
		for _, src := range st.sources {
			if src.ZoneID == zoneID && sameDay(src.Date, date) {
				exists = true
				return nil
			}
		}
		return nil
	})
	return exists, err
}

func (r *sourceRepo) UpdateSource(ctx context.Context, source *domain.Source) error {
	return r.s.view(func(st *state) error {
		existing, ok := st.sources[source.ID]
		if !ok {
			return errors.ErrSourceNotFound.WithDetailsf("source %d", source.ID)
		}
		existing.Amount = source.Amount
		existing.Balance = source.Balance
		existing.UpdatedAt = r.s.now()
		st.sources[source.ID] = existing
		return nil
	})
}

func (r *sourceRepo) DeleteSource(ctx context.Context, id int64) error {
	return r.s.view(func(st *state) error {
		if _, ok := st.sources[id]; !ok {
			return errors.ErrSourceNotFound.WithDetailsf("source %d", id)
		}
		delete(st.sources, id)
		return nil
	})
}

func (r *sourceRepo) StatsBetween(ctx context.Context, from, to time.Time) (domain.Aggregate, error) {
	var agg domain.Aggregate
	err := r.s.view(func(st *state) error {
		for _, src := range st.sources {
			if !src.Date.Before(from) && src.Date.Before(to) {
				agg.Total += src.Amount
				agg.Count++
			}
		}
		return nil
	})
	return agg, err
}

type transactionRepo struct{ s *Store }

func (r *transactionRepo) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	return r.s.view(func(st *state) error {
		if tx.Type == domain.TransactionTariff && tx.Period != nil {
			for _, existing := range st.transactions {
				if existing.Type == domain.TransactionTariff && !existing.IsReversed() &&
					existing.AccountID == tx.AccountID && existing.Period != nil && *existing.Period == *tx.Period {
					return errors.ErrTariffAlreadyCharged
				}
			}
		}
		if tx.ID == uuid.Nil {
			tx.ID = uuid.New()
		}
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = r.s.now()
		}
		st.transactions[tx.ID] = *tx
		return nil
	})
}

func (r *transactionRepo) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	var out *domain.Transaction
	err := r.s.view(func(st *state) error {
		tx, ok := st.transactions[id]
		if !ok {
			return errors.ErrTransactionNotFound.WithDetails(id.String())
		}
		out = &tx
		return nil
	})
	return out, err
}

func (r *transactionRepo) GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return r.GetTransaction(ctx, id)
}

func (r *transactionRepo) MarkReversed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.s.view(func(st *state) error {
		tx, ok := st.transactions[id]
		if !ok {
			return errors.ErrTransactionNotFound.WithDetails(id.String())
		}
		if tx.IsReversed() {
			return errors.ErrTransactionAlreadyReversed.WithDetails(id.String())
		}
		tx.ReversedAt = &at
		st.transactions[id] = tx
		return nil
	})
}

func (r *transactionRepo) ListAccountTransactions(ctx context.Context, accountID int64) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	err := r.s.view(func(st *state) error {
		for _, tx := range st.transactions {
			if tx.AccountID == accountID || (tx.CounterpartyAccountID != nil && *tx.CounterpartyAccountID == accountID) {
				out = append(out, &tx)
			}
		}
		return nil
	})
	sortNewestFirst(out)
	return out, err
}

func (r *transactionRepo) SumDeposits(ctx context.Context, accountID int64, from, to time.Time) (int64, error) {
	var total int64
	err := r.s.view(func(st *state) error {
		for _, tx := range st.transactions {
			if tx.Type == domain.TransactionDeposit && tx.AccountID == accountID && !tx.IsReversed() &&
				!tx.CreatedAt.Before(from) && tx.CreatedAt.Before(to) {
				total += tx.Amount
			}
		}
		return nil
	})
	return total, err
}

func (r *transactionRepo) TariffCharged(ctx context.Context, accountID int64, period string) (bool, error) {
	var charged bool
	err := r.s.view(func(st *state) error {
		for _, tx := range st.transactions {
			if tx.Type == domain.TransactionTariff && tx.AccountID == accountID && !tx.IsReversed() &&
				tx.Period != nil && *tx.Period == period {
				charged = true
				return nil
			}
		}
		return nil
	})
	return charged, err
}

func sortNewestFirst(txs []*domain.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].CreatedAt.After(txs[j].CreatedAt)
		}
		return txs[i].ID.String() < txs[j].ID.String()
	})
}

type auditRepo struct{ s *Store }

func (r *auditRepo) CreateAuditEntry(ctx context.Context, entry *domain.AuditEntry) error {
	return r.s.view(func(st *state) error {
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = r.s.now()
		}
		st.audit = append(st.audit, *entry)
		return nil
	})
}

func (r *auditRepo) ListAuditEntries(ctx context.Context, entityType string, entityID int64) ([]*domain.AuditEntry, error) {
	var out []*domain.AuditEntry
	err := r.s.view(func(st *state) error {
		for i := len(st.audit) - 1; i >= 0; i-- {
			entry := st.audit[i]
			if entry.EntityType == entityType && entry.EntityID == entityID {
				out = append(out, &entry)
			}
		}
		return nil
	})
	return out, err
}

type tariffRunRepo struct{ s *Store }

func (r *tariffRunRepo) CreateTariffRun(ctx context.Context, run *domain.TariffRun) error {
	return r.s.view(func(st *state) error {
		if _, ok := st.tariffRuns[run.Period]; ok {
			return errors.ErrTariffRunAlreadyCompleted.WithDetails(run.Period)
		}
		if run.ID == uuid.Nil {
			run.ID = uuid.New()
		}
		st.tariffRuns[run.Period] = *run
		return nil
	})
}

func (r *tariffRunRepo) GetTariffRun(ctx context.Context, period string) (*domain.TariffRun, error) {
	var out *domain.TariffRun
	err := r.s.view(func(st *state) error {
		if run, ok := st.tariffRuns[period]; ok {
			out = &run
		}
		return nil
	})
	return out, err
}
