package domain

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TariffBracket charges Fee for balances up to and including UpTo.
type TariffBracket struct {
	UpTo int64 `json:"up_to"`
	Fee  int64 `json:"fee"`
}

// TariffTable maps a balance to a monthly fee. Brackets are inclusive and
// ascending; AboveFee applies past the last bracket.
type TariffTable struct {
	Brackets []TariffBracket `json:"brackets"`
	AboveFee int64           `json:"above_fee"`
}

func DefaultTariffTable() TariffTable {
	return TariffTable{
		Brackets: []TariffBracket{
			{UpTo: 3_500, Fee: 0},
			{UpTo: 20_000, Fee: 450},
			{UpTo: 40_000, Fee: 800},
			{UpTo: 60_000, Fee: 1_150},
			{UpTo: 80_000, Fee: 1_500},
			{UpTo: 100_000, Fee: 1_900},
		},
		AboveFee: 2_300,
	}
}

func (t TariffTable) Fee(balance int64) int64 {
	for _, b := range t.Brackets {
		if balance <= b.UpTo {
			return b.Fee
		}
	}
	return t.AboveFee
}

func (t TariffTable) Validate() error {
	if len(t.Brackets) == 0 {
		return fmt.Errorf("tariff table needs at least one bracket")
	}
	prev := int64(-1)
	for i, b := range t.Brackets {
		if b.UpTo <= prev {
			return fmt.Errorf("tariff bracket %d is not ascending", i)
		}
		if b.Fee < 0 {
			return fmt.Errorf("tariff bracket %d has a negative fee", i)
		}
		prev = b.UpTo
	}
	if t.AboveFee < 0 {
		return fmt.Errorf("tariff above-fee is negative")
	}
	return nil
}

// String renders the table in the form accepted by ParseTariffTable.
func (t TariffTable) String() string {
	parts := make([]string, 0, len(t.Brackets)+1)
	for _, b := range t.Brackets {
		parts = append(parts, fmt.Sprintf("%d:%d", b.UpTo, b.Fee))
	}
	parts = append(parts, fmt.Sprintf("*:%d", t.AboveFee))
	return strings.Join(parts, ",")
}

// ParseTariffTable reads "3500:0,20000:450,*:2300". The "*" entry is the fee
// past the last bracket and must come last.
func ParseTariffTable(s string) (TariffTable, error) {
	var table TariffTable
	entries := strings.Split(s, ",")
	for i, entry := range entries {
		limit, fee, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok {
			return TariffTable{}, fmt.Errorf("tariff entry %q: missing ':'", entry)
		}
		feeValue, err := strconv.ParseInt(strings.TrimSpace(fee), 10, 64)
		if err != nil {
			return TariffTable{}, fmt.Errorf("tariff entry %q: %w", entry, err)
		}
		if strings.TrimSpace(limit) == "*" {
			if i != len(entries)-1 {
				return TariffTable{}, fmt.Errorf("tariff entry %q: '*' must be last", entry)
			}
			table.AboveFee = feeValue
			return table, table.Validate()
		}
		limitValue, err := strconv.ParseInt(strings.TrimSpace(limit), 10, 64)
		if err != nil {
			return TariffTable{}, fmt.Errorf("tariff entry %q: %w", entry, err)
		}
		table.Brackets = append(table.Brackets, TariffBracket{UpTo: limitValue, Fee: feeValue})
	}
	return TariffTable{}, fmt.Errorf("tariff table %q has no '*' entry", s)
}

// TariffRun records one completed monthly tariff batch.
type TariffRun struct {
	ID         uuid.UUID `json:"id"`
	Period     string    `json:"period"`
	Accounts   int       `json:"accounts"`
	Charged    int       `json:"charged"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Total      int64     `json:"total"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type TariffRunRepository interface {
	CreateTariffRun(ctx context.Context, run *TariffRun) error
	// GetTariffRun returns nil without error when no run exists for period.
	GetTariffRun(ctx context.Context, period string) (*TariffRun, error)
}
