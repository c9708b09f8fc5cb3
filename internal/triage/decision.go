package triage

import (
	"fmt"
	"strings"

	"github.com/cardsentry/cardsentry/internal/kb"
	"github.com/cardsentry/cardsentry/internal/model"
)

// rideShareMCC gets bespoke phrasing in the duplicate/pre-auth explanation.
const rideShareMCC = "4121"

// otpCaveat is appended to the reason whenever the final action freezes the
// card. Appended to the text, not added as a separate reason.
const otpCaveat = " The card can be unfrozen only after the cardholder completes OTP verification."

// Synthesize merges the fraud report, the accumulated KB hits, and the
// near-duplicate list into the final decision. Rules apply in priority
// order; the first match wins and later rules are skipped. This stage calls
// no external dependency and cannot time out; a defect here propagates as a
// pipeline failure.
func Synthesize(report model.FraudReport, hits []model.KBHit, duplicates []model.Transaction, subject *model.Transaction) model.Decision {
	// Priority 1: duplicate/pre-auth override. A matching pre-auth citation
	// plus a near-duplicate means the "fraud" is a hold/capture pair: stand
	// down regardless of what the scoring engine recommended.
	if len(duplicates) > 0 {
		if hit, ok := findAnchor(hits, kb.PreAuthAnchor); ok {
			var related []model.Transaction
			if subject != nil {
				related = append(related, *subject)
			}
			related = append(related, duplicates...)

			return model.Decision{
				Action:              model.ActionNone,
				Reason:              preAuthReason(subject),
				Citations:           []model.KBHit{hit},
				RelatedTransactions: related,
			}
		}
	}

	action := report.RecommendedAction
	if action == "" {
		action = model.ActionNone
	}
	reason := strings.Join(report.Reasons, "; ")

	// Priority 2: dispute-citation enrichment.
	citations := []model.KBHit{}
	if action == model.ActionOpenDispute {
		citations = disputeCitations(hits)
	}

	// Priority 3: freeze annotation.
	if action == model.ActionFreezeCard {
		reason += otpCaveat
	}

	return model.Decision{
		Action:     action,
		Reason:     reason,
		ReasonCode: report.ReasonCode,
		Citations:  citations,
	}
}

func preAuthReason(subject *model.Transaction) string {
	merchant := "the merchant"
	mcc := ""
	if subject != nil {
		if subject.Merchant != "" {
			merchant = subject.Merchant
		}
		mcc = subject.MCC
	}
	if mcc == rideShareMCC {
		return fmt.Sprintf("The matching amounts at %s are a ride-share pre-authorization and its capture; the hold will drop off on its own.", merchant)
	}
	return fmt.Sprintf("The matching amounts at %s look like a pre-authorization and capture pair; this type of merchant commonly posts duplicate holds.", merchant)
}

func findAnchor(hits []model.KBHit, anchor string) (model.KBHit, bool) {
	for _, h := range hits {
		if h.Anchor == anchor {
			return h, true
		}
	}
	return model.KBHit{}, false
}

func disputeCitations(hits []model.KBHit) []model.KBHit {
	cites := []model.KBHit{}
	for _, h := range hits {
		if strings.HasPrefix(h.Anchor, kb.DisputeAnchorPrefix) ||
			strings.Contains(strings.ToLower(h.Title), "dispute") {
			cites = append(cites, h)
		}
	}
	return cites
}
