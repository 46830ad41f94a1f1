package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradingAccount is the primary account record provisioned server-side after
// the first successful authentication.
type TradingAccount struct {
	ID        string          `json:"id"`         // Unique account identifier
	Owner     string          `json:"owner"`      // Wallet address owning the account
	Balance   decimal.Decimal `json:"balance"`    // Settled balance
	Locked    decimal.Decimal `json:"locked"`     // Balance reserved by open orders
	CreatedAt time.Time       `json:"created_at"` // When the account was provisioned
}
