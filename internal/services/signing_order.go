package services

import (
	"sort"

	"github.com/documenso/documenso-sub011/internal/models"
)

// SortRecipients orders recipients by (signingOrder ascending, nulls last,
// id ascending). The id tie-break keeps the ordering deterministic when
// several recipients share a signing order.
func SortRecipients(recipients []models.Recipient) []models.Recipient {
	sorted := append([]models.Recipient(nil), recipients...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].SigningOrder, sorted[j].SigningOrder
		switch {
		case a == nil && b == nil:
			return sorted[i].ID < sorted[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a < *b
		default:
			return sorted[i].ID < sorted[j].ID
		}
	})
	return sorted
}

// ActionableRecipients computes which recipients may act right now. In
// PARALLEL mode every non-CC recipient still pending is actionable. In
// SEQUENTIAL mode only the lowest-ordered pending recipient is.
func ActionableRecipients(mode models.SigningOrderMode, recipients []models.Recipient) []models.Recipient {
	sorted := SortRecipients(recipients)

	var actionable []models.Recipient
	for _, r := range sorted {
		if !r.Role.BlocksCompletion() || r.SigningStatus != models.SigningStatusNotSigned {
			continue
		}
		actionable = append(actionable, r)
		if mode == models.SigningOrderSequential {
			break
		}
	}
	return actionable
}

// IsRecipientTurn reports whether the given recipient may complete now. Order
// is only enforced at completion time; individual field mutations are not
// gated on it.
func IsRecipientTurn(mode models.SigningOrderMode, recipients []models.Recipient, recipientID string) bool {
	if mode != models.SigningOrderSequential {
		return true
	}
	for _, r := range ActionableRecipients(mode, recipients) {
		if r.ID == recipientID {
			return true
		}
	}
	return false
}

// NextRecipientAfter returns the next pending recipient following the given
// one in signing order, or nil when none remains. Used for sequential
// advancement and for dictate-next-signer.
func NextRecipientAfter(recipients []models.Recipient, recipientID string) *models.Recipient {
	sorted := SortRecipients(recipients)

	seen := false
	for i := range sorted {
		if sorted[i].ID == recipientID {
			seen = true
			continue
		}
		if !seen {
			continue
		}
		if sorted[i].Role.BlocksCompletion() && sorted[i].SigningStatus == models.SigningStatusNotSigned {
			return &sorted[i]
		}
	}
	return nil
}

// remainingBlockers counts recipients that still hold up envelope completion.
func remainingBlockers(recipients []models.Recipient) int {
	count := 0
	for _, r := range recipients {
		if r.Role.BlocksCompletion() && r.SigningStatus == models.SigningStatusNotSigned {
			count++
		}
	}
	return count
}
