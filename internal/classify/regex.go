package classify

import (
	"context"
	"regexp"
	"strings"

	"github.com/jordanhubbard/venueflow/pkg/models"
)

// RegexClassifier is the default, deterministic change classifier. It applies
// the dual-condition rule: a revision-intent signal AND a bound target must
// both be present, and the targeted fact must already be established in the
// conversation state. LLM-backed classifiers plug in behind the same
// interface; this one is the zero-dependency baseline and the reference for
// the contract.
type RegexClassifier struct{}

// NewRegexClassifier returns the regex-based classifier.
func NewRegexClassifier() *RegexClassifier {
	return &RegexClassifier{}
}

var (
	revisionRe = regexp.MustCompile(`(?i)\b(change|move|switch|instead|actually|rather|reschedule|rebook|update|make it|different|replace|swap|no longer|cancel)\b`)

	commercialRe = regexp.MustCompile(`(?i)\b(discount|price|cheaper|budget|rate|terms|payment plan|invoice total)\b`)
	depositRe    = regexp.MustCompile(`(?i)\b(deposit|down payment|advance payment)\b`)
	siteVisitRe  = regexp.MustCompile(`(?i)\b(site visit|viewing|walk[- ]?through|come by|visit the venue)\b`)
	clientInfoRe = regexp.MustCompile(`(?i)\b(contact|phone|email|company name|billing address)\b`)
)

// ClassifyChange implements Classifier. It never returns an error: regex
// matching cannot fail, so the fallback path is exercised only by external
// classifiers.
func (r *RegexClassifier) ClassifyChange(_ context.Context, state *models.ConversationState, message string, ents Entities) (models.ChangeKind, error) {
	if state == nil || strings.TrimSpace(message) == "" {
		return models.ChangeNone, nil
	}

	revising := revisionRe.MatchString(message)

	// A pure question with no revision signal is never a change, even when it
	// mentions a changeable fact ("What's the total price?").
	if isInterrogative(message) && !revising {
		return models.ChangeNone, nil
	}
	if !revising {
		return models.ChangeNone, nil
	}

	// Checks run in fact-dependency order; the first established, differing,
	// bound target wins.
	switch {
	case state.DateConfirmed && ents.Date != "" && ents.Date != state.ChosenDate:
		return models.ChangeDate, nil

	case state.LockedRoomID != "" && ents.RoomID != "" && ents.RoomID != state.LockedRoomID:
		return models.ChangeRoom, nil

	case state.LockedRoomID != "" && requirementsDiffer(state, ents):
		return models.ChangeRequirements, nil

	case state.LockedRoomID != "" && len(ents.Products) > 0:
		return models.ChangeProducts, nil

	case state.CurrentStage >= models.StageNegotiation && commercialRe.MatchString(message):
		return models.ChangeCommercial, nil

	case state.CurrentStage == models.StageConfirmation && depositRe.MatchString(message):
		return models.ChangeDeposit, nil

	case state.CurrentStage == models.StageConfirmation && siteVisitRe.MatchString(message):
		return models.ChangeSiteVisit, nil

	case len(ents.ClientInfo) > 0 && clientInfoRe.MatchString(message):
		return models.ChangeClientInfo, nil
	}

	return models.ChangeNone, nil
}

// requirementsDiffer reports whether the extracted entities revise the
// recorded requirements or participant count.
func requirementsDiffer(state *models.ConversationState, ents Entities) bool {
	if ents.Participants > 0 && ents.Participants != state.Participants {
		return true
	}
	for k, v := range ents.Requirements {
		if state.Requirements[k] != v {
			return true
		}
	}
	return false
}

func isInterrogative(message string) bool {
	trimmed := strings.TrimSpace(message)
	if strings.HasSuffix(trimmed, "?") {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, prefix := range []string{"what ", "when ", "where ", "how ", "is ", "are ", "can you tell", "do you ", "does "} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
