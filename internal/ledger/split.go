// Package ledger computes even expense splits at creation time and answers
// "who owes whom" over the (expenses, splits) relation. Settlement is
// binary per split; debts across expenses are never netted against each
// other.
package ledger

import (
	"hearth/internal/core"
)

// RoundingPolicy decides how cent remainders are handled when an amount
// does not divide evenly among members.
type RoundingPolicy int

const (
	// PolicyIndependent rounds each share to the nearest cent on its own.
	// The recorded splits plus the payer's nominal share can drift from
	// the original amount by up to a cent per debtor. This is the default.
	PolicyIndependent RoundingPolicy = iota

	// PolicyExact floors every share and hands the leftover cents out one
	// by one in member order, so the splits plus the payer's share sum
	// exactly to the original amount.
	PolicyExact
)

// ComputeSplits divides an expense evenly among the group and returns one
// Split per non-payer member, unsettled, in the order members were given.
// With one member or fewer there is nothing to split. The payer's share
// stays implicit: they never owe themselves.
func ComputeSplits(amount core.Money, payerID string, memberIDs []string, policy RoundingPolicy) []core.Split {
	n := int64(len(memberIDs))
	if n <= 1 {
		return nil
	}

	shares := make(map[string]int64, n)
	switch policy {
	case PolicyExact:
		base := amount.Cents / n
		remainder := amount.Cents - base*n
		for i, id := range memberIDs {
			share := base
			if int64(i) < remainder {
				share++
			}
			shares[id] = share
		}
	default:
		// Each share rounded half-up independently, like the original
		// per-member round(amount / n).
		share := (amount.Cents*2 + n) / (n * 2)
		for _, id := range memberIDs {
			shares[id] = share
		}
	}

	splits := make([]core.Split, 0, n-1)
	for _, id := range memberIDs {
		if id == payerID {
			continue
		}
		splits = append(splits, core.Split{
			UserID:    id,
			Amount:    core.Money{Cents: shares[id]},
			IsSettled: false,
		})
	}
	return splits
}
