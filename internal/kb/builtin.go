package kb

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Builtin returns the compiled-in support-desk corpus. Operators can extend
// or replace it with a yaml corpus file.
func Builtin() []Document {
	return []Document{
		{
			ID:     "kb-001",
			Title:  "Pre-authorization vs capture",
			Anchor: PreAuthAnchor,
			Body: "Many merchants place a pre-authorization hold before posting the final capture. " +
				"The two amounts appear as duplicate charges until the hold drops off, usually within " +
				"3-5 business days. Ride-share, hotel, and fuel merchants do this routinely. Do not " +
				"open a dispute for a matching pre-auth and capture pair.",
		},
		{
			ID:     "kb-002",
			Title:  "Filing a dispute",
			Anchor: "disputes:filing-a-dispute",
			Body: "A dispute can be opened when the cardholder does not recognize a charge or the " +
				"merchant failed to deliver. Collect the transaction id, merchant descriptor, and the " +
				"cardholder's statement before filing. Card-absent fraud uses reason code 10.4.",
		},
		{
			ID:     "kb-003",
			Title:  "Cancelled recurring transactions",
			Anchor: "disputes:cancelled-recurring",
			Body: "When a subscription keeps billing after cancellation, open a dispute with reason " +
				"code 13.2 (cancelled recurring transaction). Ask the cardholder for the cancellation " +
				"confirmation date.",
		},
		{
			ID:     "kb-004",
			Title:  "Card freeze policy",
			Anchor: "cards:freeze-policy",
			Body: "Freezing a card blocks all new authorizations immediately. Recurring charges " +
				"already authorized may still settle. A frozen card can be unfrozen by the cardholder " +
				"after identity verification.",
		},
		{
			ID:     "kb-005",
			Title:  "OTP verification after freeze",
			Anchor: "cards:otp-verification",
			Body: "After a fraud freeze, the cardholder must complete a one-time-passcode check " +
				"before the card can be unfrozen or replaced. Never unfreeze on a voice request alone.",
		},
		{
			ID:     "kb-006",
			Title:  "Recognizing merchant descriptors",
			Anchor: "merchants:descriptors",
			Body: "Payment intermediaries like marketplace processors show an aggregated descriptor " +
				"instead of the storefront name. Ask the cardholder about recent online purchases " +
				"before treating an unfamiliar descriptor as fraud.",
		},
	}
}

// LoadCorpus reads a yaml corpus file: a list of documents.
func LoadCorpus(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kb: read corpus: %w", err)
	}

	var docs []Document
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("kb: parse corpus: %w", err)
	}
	for i, d := range docs {
		if d.ID == "" || d.Anchor == "" || d.Title == "" {
			return nil, fmt.Errorf("kb: corpus[%d]: id, title, and anchor are required", i)
		}
	}
	return docs, nil
}
