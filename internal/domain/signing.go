package domain

import (
	"fmt"
	"strings"
	"time"
)

// MarkSigned returns a copy of doc with the slot at position flipped to
// signed. The acting identifier is recorded for audit only and is not checked
// against the slot's signer. A slot that is already signed keeps its first
// audit fields.
func MarkSigned(doc Document, position int, actingID string, at time.Time) (Document, error) {
	if strings.TrimSpace(actingID) == "" {
		return Document{}, ErrActorRequired
	}
	out := doc.Clone()
	for i := range out.Slots {
		if out.Slots[i].Position != position {
			continue
		}
		if out.Slots[i].Signed {
			return out, nil
		}
		signedAt := at.UTC()
		out.Slots[i].Signed = true
		out.Slots[i].SignedBy = actingID
		out.Slots[i].SignedAt = &signedAt
		return out, nil
	}
	return Document{}, fmt.Errorf("%w: position %d", ErrSlotNotFound, position)
}

// MergeSigned carries the signed state of existing slots onto a freshly built
// slot list, matching by position. Existing slots whose position is not part
// of rebuilt are dropped.
func MergeSigned(rebuilt []Slot, existing []Slot) []Slot {
	signedByPosition := make(map[int]Slot, len(existing))
	for _, s := range existing {
		if s.Signed {
			signedByPosition[s.Position] = s
		}
	}

	merged := cloneSlots(rebuilt)
	for i := range merged {
		prev, ok := signedByPosition[merged[i].Position]
		if !ok {
			continue
		}
		merged[i].Signed = true
		merged[i].SignedBy = prev.SignedBy
		if prev.SignedAt != nil {
			at := *prev.SignedAt
			merged[i].SignedAt = &at
		}
	}
	return merged
}

// Rebuild derives the slot template for docType from the current
// participants, merges already signed slots and validates the result.
func Rebuild(docType DocumentType, p Participants, existing []Slot) (Document, error) {
	slots, err := BuildSlots(docType, p)
	if err != nil {
		return Document{}, err
	}
	doc := Document{Type: docType, Slots: MergeSigned(slots, existing)}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}
