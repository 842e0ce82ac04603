// Package feedback classifies free-text user reactions to a troubleshooting
// step. Classification is deterministic keyword matching against per-language
// tables, never a model call, so the engine's state transitions stay
// reproducible.
package feedback

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagnosd/internal/langpack"
)

// Category is the classified outcome of an attempted step.
type Category string

const (
	// CategorySuccess means the feedback signals the step resolved the problem.
	CategorySuccess Category = "success"

	// CategoryFailure means the feedback signals the step did not help.
	CategoryFailure Category = "failure"

	// CategoryPartial means the feedback is mixed but hedged, suggesting
	// partial progress.
	CategoryPartial Category = "partial"

	// CategoryAmbiguous means no clear signal was found. Treated as
	// non-success for escalation counting.
	CategoryAmbiguous Category = "ambiguous"
)

// Success reports whether the category counts as a resolved step.
func (c Category) Success() bool {
	return c == CategorySuccess
}

// Outcome is the result of classifying one piece of feedback.
type Outcome struct {
	Category Category

	// HumanRequest is set when the feedback asks for a human expert,
	// independently of the category.
	HumanRequest bool
}

// Classifier maps user feedback to an Outcome using language tables.
type Classifier struct {
	pack   *langpack.Pack
	logger *zap.Logger
}

// NewClassifier creates a feedback classifier.
func NewClassifier(pack *langpack.Pack, logger *zap.Logger) (*Classifier, error) {
	if pack == nil {
		return nil, errors.New("language pack is required for classifier")
	}
	if logger == nil {
		return nil, errors.New("logger is required for classifier")
	}
	return &Classifier{pack: pack, logger: logger}, nil
}

// Classify classifies feedback text in the given session language.
//
// A lone positive signal is success, a lone negative signal is failure.
// Mixed or absent signals are partial when hedging words appear, otherwise
// ambiguous. Empty feedback is always ambiguous.
func (c *Classifier) Classify(text, language string) Outcome {
	lowered := strings.ToLower(strings.TrimSpace(text))
	table := c.pack.Table(language)

	outcome := Outcome{
		Category:     categorize(lowered, table),
		HumanRequest: c.pack.MatchesHumanRequest(lowered, language),
	}

	c.logger.Debug("feedback classified",
		zap.String("language", language),
		zap.String("category", string(outcome.Category)),
		zap.Bool("human_request", outcome.HumanRequest),
	)
	return outcome
}

func categorize(lowered string, table langpack.Table) Category {
	if lowered == "" {
		return CategoryAmbiguous
	}

	positive := matchesAny(lowered, table.Positive)
	negative := matchesAny(lowered, table.Negative)

	switch {
	case positive && !negative:
		return CategorySuccess
	case negative && !positive:
		return CategoryFailure
	case matchesAny(lowered, table.Hedging):
		return CategoryPartial
	default:
		return CategoryAmbiguous
	}
}

func matchesAny(lowered string, phrases []string) bool {
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}
