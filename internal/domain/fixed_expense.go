package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// FixedExpense is a recurring monthly charge. On or after Day each month an
// auto transaction is posted for it.
type FixedExpense struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
	Day      int             `json:"day"`
	Category string          `json:"category"`
	Payment  string          `json:"payment"`
}

// UnmarshalJSON accepts numeric ids, like Transaction.
func (fe *FixedExpense) UnmarshalJSON(data []byte) error {
	type plain FixedExpense
	var aux struct {
		plain
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*fe = FixedExpense(aux.plain)

	id, err := decodeID(aux.ID)
	if err != nil {
		return fmt.Errorf("fixed expense id: %w", err)
	}
	fe.ID = id
	return nil
}
