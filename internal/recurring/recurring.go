// Package recurring posts the monthly fixed expenses as transactions.
package recurring

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/pocketbook/internal/domain"
	"github.com/dvloznov/pocketbook/internal/store"
)

// Memo marks transactions created from a fixed expense.
const Memo = "recurring"

// Poster is the part of the store Post needs.
type Poster interface {
	Get() domain.Document
	AddTransaction(tx domain.Transaction) (store.AddResult, error)
}

// Post inserts an automatic transaction for every fixed expense whose day
// has been reached in now's month and that has not been posted this month.
// Posted entries are matched by place, one per fixed expense, so expenses
// sharing a name are each posted once.
// Days past the end of a short month fall on its last day. Running it again
// in the same month posts nothing. Entries that fail are skipped and
// reported in the returned error.
func Post(s Poster, now time.Time) (int, error) {
	doc := s.Get()
	month := now.Format("2006-01")
	last := daysIn(now.Year(), now.Month())

	existing := postedThisMonth(doc.Transactions, month)

	var errs []error
	posted := 0
	for _, fe := range doc.FixedExpenses {
		day := fe.Day
		if day < 1 {
			errs = append(errs, fmt.Errorf("fixed expense %q: day %d out of range", fe.Name, fe.Day))
			continue
		}
		if day > last {
			day = last
		}
		if now.Day() < day {
			continue
		}
		if existing[fe.Name] > 0 {
			existing[fe.Name]--
			continue
		}

		tx := domain.Transaction{
			Date:     fmt.Sprintf("%s-%02d", month, day),
			Amount:   fe.Amount,
			Category: fe.Category,
			Place:    fe.Name,
			Memo:     Memo,
			Payment:  fe.Payment,
			Auto:     true,
		}
		if err := tx.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("fixed expense %q: %w", fe.Name, err))
			continue
		}
		if _, err := s.AddTransaction(tx); err != nil {
			errs = append(errs, fmt.Errorf("fixed expense %q: %w", fe.Name, err))
			continue
		}
		posted++
	}
	return posted, errors.Join(errs...)
}

// postedThisMonth counts the automatic entries per place in month.
func postedThisMonth(txs []domain.Transaction, month string) map[string]int {
	counts := make(map[string]int)
	for _, tx := range txs {
		if tx.Auto && strings.HasPrefix(tx.Date, month) {
			counts[tx.Place]++
		}
	}
	return counts
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
