package domain

import "github.com/shopspring/decimal"

// ComputeFee splits a trade amount into the burned fee and the seller's net.
// The fee uses round-half-to-even and the net never goes below zero.
func ComputeFee(amount int64, feePct decimal.Decimal) (fee, net int64) {
	if amount <= 0 {
		return 0, 0
	}
	fee = decimal.NewFromInt(amount).Mul(feePct).RoundBank(0).IntPart()
	net = amount - fee
	if net < 0 {
		net = 0
	}
	return fee, net
}
