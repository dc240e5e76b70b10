package domain

import "context"

// Store is the unit of work over every repository. Repositories returned by
// the Store passed to a WithTransaction callback share one atomic scope:
// either all their writes commit or none do.
type Store interface {
	Accounts() AccountRepository
	Customers() CustomerRepository
	Users() UserRepository
	Zones() ZoneRepository
	Loans() LoanRepository
	Sources() SourceRepository
	Transactions() TransactionRepository
	Audit() AuditRepository
	TariffRuns() TariffRunRepository

	WithTransaction(ctx context.Context, fn func(tx Store) error) error
}
