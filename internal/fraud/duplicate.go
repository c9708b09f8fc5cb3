package fraud

import "github.com/cardsentry/cardsentry/internal/model"

// NearDuplicates finds window transactions that look like a pre-authorization
// and capture pair for the subject: same merchant, amount within the
// configured cents tolerance, different id. The window is not time-bounded.
//
// The KB-lookup trigger and the final-decision stage intentionally share this
// one predicate.
func NearDuplicates(subject model.Transaction, window []model.Transaction, toleranceCents int64) []model.Transaction {
	var dups []model.Transaction
	for _, txn := range window {
		if txn.ID == subject.ID || txn.Merchant == "" || txn.Merchant != subject.Merchant {
			continue
		}
		delta := txn.AmountCents - subject.AmountCents
		if delta < 0 {
			delta = -delta
		}
		if delta <= toleranceCents {
			dups = append(dups, txn)
		}
	}
	return dups
}
