// internal/engine/situation.go
package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// analyzer produces a SituationAssessment from a task and a page snapshot.
// Page type, intent and relevance are pure rule-based functions of their
// inputs; approach, obstacles, success indicators and confidence come from
// the oracle and degrade to a conservative default when it fails.
type analyzer struct {
	oracle schemas.Oracle
	logger *zap.Logger
}

func newAnalyzer(oracle schemas.Oracle, logger *zap.Logger) *analyzer {
	return &analyzer{oracle: oracle, logger: logger.Named("situation")}
}

func (a *analyzer) Analyze(ctx context.Context, task string, snap *schemas.PageSnapshot) schemas.SituationAssessment {
	assessment := schemas.SituationAssessment{
		PageType: classifyPage(snap),
		Intent:   classifyIntent(task),
	}
	assessment.RelevanceScore, assessment.MatchedKeywords = relevanceScore(task, snap)

	advisory, err := a.oracle.Assess(ctx, schemas.AssessRequest{
		Task:      task,
		Snapshot:  snap,
		PageType:  assessment.PageType,
		Intent:    assessment.Intent,
		Relevance: assessment.RelevanceScore,
	})
	if err != nil {
		// Advisory only. A failed oracle call must never fail the task.
		a.logger.Warn("Oracle assessment failed, using conservative defaults.", zap.Error(err))
		advisory = schemas.OracleAssessment{Approach: schemas.ApproachCautious}
	}
	assessment.Approach = advisory.Approach
	assessment.Obstacles = advisory.Obstacles
	assessment.SuccessIndicators = advisory.SuccessIndicators
	assessment.Confidence = advisory.Confidence

	assessment.Normalize()
	return assessment
}

// classifyPage applies structural rules in priority order: a password field
// marks a login page even when other signals are present.
func classifyPage(snap *schemas.PageSnapshot) schemas.PageType {
	if snap == nil {
		return schemas.PageGeneral
	}

	formFields := 0
	hasCheckout := false
	hasCart := false

	for _, el := range snap.Elements {
		typ := strings.ToLower(el.Attributes["type"])
		if el.Tag == "input" && typ == "password" {
			return schemas.PageLogin
		}
		if isSearchInput(el) {
			return schemas.PageSearch
		}
		switch el.Tag {
		case "input", "textarea", "select":
			if typ != "hidden" && typ != "submit" && typ != "button" {
				formFields++
			}
		}
		digest := elementDigest(el)
		if strings.Contains(digest, "checkout") {
			hasCheckout = true
		}
		if strings.Contains(digest, "cart") || strings.Contains(digest, "basket") {
			hasCart = true
		}
	}

	switch {
	case hasCheckout:
		return schemas.PageCheckout
	case hasCart:
		return schemas.PageShopping
	case formFields >= 3:
		return schemas.PageForm
	default:
		return schemas.PageGeneral
	}
}

func isSearchInput(el schemas.InteractiveElement) bool {
	if el.Tag != "input" && el.Attributes["role"] != "search" {
		return false
	}
	if strings.EqualFold(el.Attributes["type"], "search") || el.Attributes["role"] == "search" {
		return true
	}
	for _, attr := range []string{"name", "id", "placeholder", "aria-label", "title"} {
		if strings.Contains(strings.ToLower(el.Attributes[attr]), "search") {
			return true
		}
	}
	return strings.Contains(strings.ToLower(el.Text), "search")
}

// Intent keyword tables. The first matching category of the first matching
// token wins; connectives promote to multi_step regardless.
var (
	connectiveWords   = wordSet("and", "then", "after", "afterwards", "next")
	navigationVerbs   = wordSet("go", "open", "visit", "navigate", "browse", "load")
	interactionVerbs  = wordSet("click", "press", "tap", "select", "choose", "toggle", "submit")
	inputVerbs        = wordSet("type", "enter", "fill", "input", "write", "paste")
	searchVerbs       = wordSet("search", "find", "look", "query", "google")
	extractionVerbs   = wordSet("get", "extract", "read", "scrape", "fetch", "copy", "grab")
	verificationVerbs = wordSet("check", "verify", "confirm", "ensure", "assert", "validate")
)

func classifyIntent(task string) schemas.TaskIntent {
	tokens := tokenize(task)

	primary := schemas.IntentInteraction
	found := false
	multiStep := false
	for _, tok := range tokens {
		if connectiveWords[tok] {
			multiStep = true
		}
		if found {
			continue
		}
		switch {
		case navigationVerbs[tok]:
			primary, found = schemas.IntentNavigation, true
		case interactionVerbs[tok]:
			primary, found = schemas.IntentInteraction, true
		case inputVerbs[tok]:
			primary, found = schemas.IntentInput, true
		case searchVerbs[tok]:
			primary, found = schemas.IntentSearch, true
		case extractionVerbs[tok]:
			primary, found = schemas.IntentExtraction, true
		case verificationVerbs[tok]:
			primary, found = schemas.IntentVerification, true
		}
	}
	if multiStep {
		return schemas.IntentMultiStep
	}
	return primary
}

var stopWords = wordSet(
	"a", "an", "the", "to", "for", "on", "in", "of", "at", "by", "with",
	"from", "into", "is", "are", "was", "be", "this", "that", "it", "its",
	"my", "your", "me", "please", "page", "button", "field", "box", "link",
)

// extractKeywords returns the lowercased task keywords with stop words
// removed. For search-style tasks the text after the search verb is the
// query payload, not something expected on the page, so it is excluded.
func extractKeywords(task string) []string {
	tokens := tokenize(task)

	for i, tok := range tokens {
		if searchVerbs[tok] {
			tokens = tokens[:i+1]
			break
		}
	}

	var keywords []string
	seen := map[string]bool{}
	for _, tok := range tokens {
		if stopWords[tok] || connectiveWords[tok] || seen[tok] || len(tok) < 2 {
			continue
		}
		seen[tok] = true
		keywords = append(keywords, tok)
	}
	return keywords
}

// relevanceScore is the fraction of task keywords that at least one page
// element matches, in [0, 1]. A task with no extractable keywords scores 0.
func relevanceScore(task string, snap *schemas.PageSnapshot) (float64, []string) {
	keywords := extractKeywords(task)
	if len(keywords) == 0 || snap == nil || len(snap.Elements) == 0 {
		return 0.0, nil
	}

	var matched []string
	for _, kw := range keywords {
		for _, el := range snap.Elements {
			if strings.Contains(elementDigest(el), kw) {
				matched = append(matched, kw)
				break
			}
		}
	}
	return float64(len(matched)) / float64(len(keywords)), matched
}

// elementDigest is the lowercased searchable text of one element: visible
// text plus attribute values.
func elementDigest(el schemas.InteractiveElement) string {
	var sb strings.Builder
	sb.WriteString(strings.ToLower(el.Text))
	for _, v := range el.Attributes {
		sb.WriteByte(' ')
		sb.WriteString(strings.ToLower(v))
	}
	return sb.String()
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

func wordSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
