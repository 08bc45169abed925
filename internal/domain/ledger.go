package domain

import (
	"sort"
	"time"
)

// BalanceItem is one owner's balance.
type BalanceItem struct {
	Owner     string
	Balance   int64
	UpdatedAt time.Time
}

// LedgerSnapshot is a consistent view of the whole ledger.
type LedgerSnapshot struct {
	Balances []BalanceItem
	Escrow   map[string]int64
	LastTick time.Time
}

// TotalBalances sums all owner balances.
func (s *LedgerSnapshot) TotalBalances() int64 {
	var total int64
	for _, b := range s.Balances {
		total += b.Balance
	}
	return total
}

// TotalEscrow sums all escrowed amounts.
func (s *LedgerSnapshot) TotalEscrow() int64 {
	var total int64
	for _, amount := range s.Escrow {
		total += amount
	}
	return total
}

// TotalFunds is the conserved quantity: balances plus escrow.
func (s *LedgerSnapshot) TotalFunds() int64 {
	return s.TotalBalances() + s.TotalEscrow()
}

// BalanceMap returns balances keyed by owner.
func (s *LedgerSnapshot) BalanceMap() map[string]int64 {
	out := make(map[string]int64, len(s.Balances))
	for _, b := range s.Balances {
		out[b.Owner] = b.Balance
	}
	return out
}

// SortBalancesDesc orders items by balance, highest first, owner as tiebreak.
func SortBalancesDesc(items []BalanceItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Balance != items[j].Balance {
			return items[i].Balance > items[j].Balance
		}
		return items[i].Owner < items[j].Owner
	})
}
