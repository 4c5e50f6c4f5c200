package engine

import (
	"github.com/shopspring/decimal"

	"github.com/dvloznov/pocketbook/internal/domain"
)

func sampleTransaction() domain.Transaction {
	return domain.Transaction{
		Date:     "2024-03-01",
		Time:     "08:30",
		Amount:   decimal.RequireFromString("4.20"),
		Category: "coffee",
		Place:    "Kiosk",
		Payment:  "card",
	}
}
