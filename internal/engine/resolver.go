// internal/engine/resolver.go
package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// fuzzyThreshold is the minimum containment score an interactive element
// must reach for the last-resort strategy to accept it.
const fuzzyThreshold = 0.5

// resolver locates a concrete element handle for a descriptor. Strategies
// run in a fixed order and the first success wins; there is no scoring or
// merging across strategies, so resolution against an unchanging DOM is
// deterministic and idempotent.
type resolver struct {
	backend schemas.Backend
	logger  *zap.Logger
}

func newResolver(backend schemas.Backend, logger *zap.Logger) *resolver {
	return &resolver{backend: backend, logger: logger.Named("resolver")}
}

func (r *resolver) Resolve(ctx context.Context, desc schemas.ElementDescriptor, snap *schemas.PageSnapshot) (schemas.ElementHandle, error) {
	if desc.Empty() {
		return schemas.ElementHandle{}, schemas.NewResolutionError(desc, fmt.Errorf("descriptor is empty"))
	}

	type strategy struct {
		name string
		run  func(context.Context) (schemas.ElementHandle, error)
	}
	strategies := []strategy{
		{"immediate", func(ctx context.Context) (schemas.ElementHandle, error) {
			return r.immediate(ctx, desc)
		}},
		{"attached_wait", func(ctx context.Context) (schemas.ElementHandle, error) {
			return r.attachedWait(ctx, desc)
		}},
		{"alternative_selectors", func(ctx context.Context) (schemas.ElementHandle, error) {
			return r.alternatives(ctx, desc)
		}},
		{"text_search", func(ctx context.Context) (schemas.ElementHandle, error) {
			return r.textSearch(ctx, desc, snap)
		}},
		{"fuzzy_interactive", func(ctx context.Context) (schemas.ElementHandle, error) {
			return r.fuzzyInteractive(ctx, desc, snap)
		}},
	}

	var lastErr error
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return schemas.ElementHandle{}, schemas.NewTimeoutError("element resolution cancelled", err)
		}
		handle, err := s.run(ctx)
		if err == nil {
			r.logger.Debug("Element resolved.",
				zap.String("strategy", s.name),
				zap.String("selector", handle.Selector))
			return handle, nil
		}
		lastErr = err
	}

	return schemas.ElementHandle{}, schemas.NewResolutionError(desc,
		fmt.Errorf("all strategies exhausted (last: %w); available elements: %s", lastErr, snapshotDigest(snap)))
}

// immediate matches the exact selector or exact trimmed text against the
// live DOM without waiting.
func (r *resolver) immediate(ctx context.Context, desc schemas.ElementDescriptor) (schemas.ElementHandle, error) {
	if desc.Selector != "" {
		if handle, err := r.backend.Find(ctx, desc.Selector); err == nil {
			return handle, nil
		} else if desc.Text == "" {
			return schemas.ElementHandle{}, err
		}
	}
	if desc.Text != "" {
		return r.backend.FindByText(ctx, desc.Text)
	}
	return schemas.ElementHandle{}, fmt.Errorf("no immediate match")
}

// attachedWait waits for the selector to appear in the DOM regardless of
// visibility. Text-only descriptors have nothing to wait on here.
func (r *resolver) attachedWait(ctx context.Context, desc schemas.ElementDescriptor) (schemas.ElementHandle, error) {
	if desc.Selector == "" {
		return schemas.ElementHandle{}, fmt.Errorf("descriptor has no selector to wait on")
	}
	return r.backend.WaitAttached(ctx, desc.Selector)
}

// alternatives derives selector variants from the descriptor and retries
// the attached wait for each, in generation order.
func (r *resolver) alternatives(ctx context.Context, desc schemas.ElementDescriptor) (schemas.ElementHandle, error) {
	variants := alternativeSelectors(desc)
	if len(variants) == 0 {
		return schemas.ElementHandle{}, fmt.Errorf("no alternative selectors derivable")
	}
	var lastErr error
	for _, sel := range variants {
		if err := ctx.Err(); err != nil {
			return schemas.ElementHandle{}, err
		}
		handle, err := r.backend.WaitAttached(ctx, sel)
		if err == nil {
			return handle, nil
		}
		lastErr = err
	}
	return schemas.ElementHandle{}, fmt.Errorf("no alternative selector matched: %w", lastErr)
}

// alternativeSelectors generates variants in a deterministic order: id and
// name guesses from the text, case variants, partial attribute matches, and
// role-specific heuristics for buttons, links and inputs.
func alternativeSelectors(desc schemas.ElementDescriptor) []string {
	var out []string
	seen := map[string]bool{}
	add := func(sel string) {
		if sel != "" && !seen[sel] {
			seen[sel] = true
			out = append(out, sel)
		}
	}

	if text := strings.TrimSpace(desc.Text); text != "" {
		slug := slugify(text)
		if slug != "" {
			add("#" + slug)
			add(fmt.Sprintf("[name=%q]", slug))
			add(fmt.Sprintf("[id*=%q]", slug))
			add(fmt.Sprintf("[name*=%q]", slug))
		}
		add(fmt.Sprintf("[aria-label=%q]", text))
		add(fmt.Sprintf("[title=%q]", text))
		add(fmt.Sprintf("[placeholder=%q]", text))
		add(fmt.Sprintf("input[value=%q]", text))

		switch strings.ToLower(desc.Role) {
		case "button":
			add(fmt.Sprintf("button#%s", slug))
			add("button[type=\"submit\"]")
		case "link":
			add(fmt.Sprintf("a[href*=%q]", slug))
		case "input", "textbox":
			add(fmt.Sprintf("input[name=%q]", slug))
		}
	}

	if sel := desc.Selector; sel != "" {
		add(strings.ToLower(sel))
		add(strings.ToUpper(sel))
	}

	for name, value := range desc.Attributes {
		add(fmt.Sprintf("[%s=%q]", name, value))
		add(fmt.Sprintf("[%s*=%q]", name, value))
	}

	return out
}

// textSearch scans the snapshot for elements whose visible text contains
// the descriptor's text, case-insensitive and trimmed, and locates the
// first one that is still present in the DOM.
func (r *resolver) textSearch(ctx context.Context, desc schemas.ElementDescriptor, snap *schemas.PageSnapshot) (schemas.ElementHandle, error) {
	needle := strings.ToLower(strings.TrimSpace(desc.Text))
	if needle == "" || snap == nil {
		return schemas.ElementHandle{}, fmt.Errorf("no text to search for")
	}

	var lastErr error
	for _, el := range snap.Elements {
		if !strings.Contains(strings.ToLower(strings.TrimSpace(el.Text)), needle) {
			continue
		}
		if el.Selector == "" {
			continue
		}
		handle, err := r.backend.WaitAttached(ctx, el.Selector)
		if err == nil {
			return handle, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return schemas.ElementHandle{}, fmt.Errorf("text matches not locatable: %w", lastErr)
	}
	return schemas.ElementHandle{}, fmt.Errorf("no element text contains %q", needle)
}

// fuzzyInteractive scores every interactive element by keyword containment
// against the descriptor and picks the best match above the threshold.
// Ties keep the earliest element in document order.
func (r *resolver) fuzzyInteractive(ctx context.Context, desc schemas.ElementDescriptor, snap *schemas.PageSnapshot) (schemas.ElementHandle, error) {
	if snap == nil || len(snap.Elements) == 0 {
		return schemas.ElementHandle{}, fmt.Errorf("no elements to search")
	}

	needle := strings.ToLower(strings.TrimSpace(desc.Text))
	if needle == "" {
		needle = strings.ToLower(strings.TrimSpace(desc.Selector))
	}
	tokens := tokenize(needle)
	if len(tokens) == 0 {
		return schemas.ElementHandle{}, fmt.Errorf("no tokens to match")
	}

	best := -1
	bestScore := 0.0
	for i, el := range snap.Elements {
		if !el.Clickable && el.Tag != "input" && el.Tag != "textarea" && el.Tag != "select" {
			continue
		}
		score := containmentScore(tokens, elementDigest(el))
		if score > bestScore && score >= fuzzyThreshold {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return schemas.ElementHandle{}, fmt.Errorf("no interactive element scored above %.2f", fuzzyThreshold)
	}

	el := snap.Elements[best]
	handle, err := r.backend.WaitAttached(ctx, el.Selector)
	if err != nil {
		return schemas.ElementHandle{}, fmt.Errorf("fuzzy match %q not locatable: %w", el.Selector, err)
	}
	return handle, nil
}

// containmentScore is the fraction of descriptor tokens contained in the
// element digest.
func containmentScore(tokens []string, digest string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	hits := 0
	for _, tok := range tokens {
		if strings.Contains(digest, tok) {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}

// slugify lowercases text and joins its tokens with hyphens, yielding the
// kind of identifier pages commonly use for ids and names.
func slugify(text string) string {
	return strings.Join(tokenize(text), "-")
}

// snapshotDigest summarizes the available elements for resolution error
// diagnostics.
func snapshotDigest(snap *schemas.PageSnapshot) string {
	if snap == nil || len(snap.Elements) == 0 {
		return "(none)"
	}
	const maxListed = 10
	var parts []string
	for i, el := range snap.Elements {
		if i >= maxListed {
			parts = append(parts, fmt.Sprintf("... %d more", len(snap.Elements)-maxListed))
			break
		}
		parts = append(parts, fmt.Sprintf("%s[%s]", el.Tag, el.Selector))
	}
	return strings.Join(parts, ", ")
}
