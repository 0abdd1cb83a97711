package hashguard

import (
	"testing"

	"github.com/jordanhubbard/venueflow/pkg/models"
)

func TestRequirements_Stable(t *testing.T) {
	a := Requirements(map[string]string{"layout": "theater", "av": "projector"}, 30)
	b := Requirements(map[string]string{"av": "projector", "layout": "theater"}, 30)
	if a != b {
		t.Error("hash must not depend on map iteration order")
	}
}

func TestRequirements_ParticipantsMatter(t *testing.T) {
	req := map[string]string{"layout": "theater"}
	if Requirements(req, 30) == Requirements(req, 40) {
		t.Error("participant count change must change the hash")
	}
}

func TestRequirements_ValueChange(t *testing.T) {
	if Requirements(map[string]string{"layout": "theater"}, 30) ==
		Requirements(map[string]string{"layout": "banquet"}, 30) {
		t.Error("requirement value change must change the hash")
	}
}

func TestOffer_Stable(t *testing.T) {
	items := []models.ProductLine{
		{SKU: "coffee", Quantity: 30, UnitPrice: 350},
		{SKU: "lunch", Quantity: 30, UnitPrice: 1800},
	}
	reversed := []models.ProductLine{items[1], items[0]}

	a := Offer("room-a", "2026-03-15", 30, items, map[string]string{"discount": "5%"})
	b := Offer("room-a", "2026-03-15", 30, reversed, map[string]string{"discount": "5%"})
	if a != b {
		t.Error("offer hash must not depend on product order")
	}
}

func TestOffer_InputChanges(t *testing.T) {
	items := []models.ProductLine{{SKU: "coffee", Quantity: 30, UnitPrice: 350}}
	base := Offer("room-a", "2026-03-15", 30, items, nil)

	if Offer("room-b", "2026-03-15", 30, items, nil) == base {
		t.Error("room change must change the offer hash")
	}
	if Offer("room-a", "2026-03-20", 30, items, nil) == base {
		t.Error("date change must change the offer hash")
	}
	if Offer("room-a", "2026-03-15", 30, nil, nil) == base {
		t.Error("product change must change the offer hash")
	}
	if Offer("room-a", "2026-03-15", 30, items, map[string]string{"discount": "10%"}) == base {
		t.Error("commercial term change must change the offer hash")
	}
}

func TestMatches(t *testing.T) {
	if Matches("", "") {
		t.Error("empty recorded hash must never match")
	}
	if Matches("", "abc") {
		t.Error("empty recorded hash must never match a current hash")
	}
	if !Matches("abc", "abc") {
		t.Error("identical hashes must match")
	}
	if Matches("abc", "def") {
		t.Error("different hashes must not match")
	}
}
