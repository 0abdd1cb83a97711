// Package hashguard centralizes the content hashes that gate re-validation of
// derived booking artifacts. A downstream artifact (room lock, offer) records
// the hash of its inputs when it is computed; comparing that recorded hash
// against the hash of the current inputs decides whether recomputation can be
// skipped. All functions are pure and total.
package hashguard

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/jordanhubbard/venueflow/pkg/models"
)

// Requirements computes the content hash of the client's room requirements.
// Participant count is part of the hash: changing it must invalidate the room
// evaluation just like any other requirement change.
func Requirements(req map[string]string, participants int) string {
	parts := make([]string, 0, len(req)+1)
	for k, v := range req {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	parts = append(parts, fmt.Sprintf("participants=%d", participants))
	return digest("req", parts)
}

// Offer computes the content hash of the inputs an offer is derived from.
// Two offers built from identical inputs hash identically.
func Offer(roomID, date string, participants int, items []models.ProductLine, terms map[string]string) string {
	parts := make([]string, 0, len(items)+len(terms)+3)
	parts = append(parts,
		"room="+roomID,
		"date="+date,
		fmt.Sprintf("participants=%d", participants),
	)

	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("product=%s:%d:%d", it.SKU, it.Quantity, it.UnitPrice))
	}
	sort.Strings(lines)
	parts = append(parts, lines...)

	kv := make([]string, 0, len(terms))
	for k, v := range terms {
		kv = append(kv, "term:"+k+"="+v)
	}
	sort.Strings(kv)
	parts = append(parts, kv...)

	return digest("offer", parts)
}

// Matches reports whether a recorded hash still covers the current inputs.
// An empty recorded hash never matches: absence of a hash means the artifact
// was never computed (or was invalidated) and must be rebuilt.
func Matches(recorded, current string) bool {
	return recorded != "" && recorded == current
}

func digest(kind string, parts []string) string {
	h := sha256.Sum256([]byte(kind + "\x00" + strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:])
}
