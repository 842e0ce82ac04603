// Package analysis turns a free-text problem description, optionally
// enriched with machine context, into a validated diagnostic assessment
// with a confidence score.
//
// The text-completion provider is treated as untrusted: its output is
// parsed against a fixed JSON shape, validated field by field, and repaired
// where a safe default exists (duration defaults, confidence clamping,
// safety warning injection). One stricter re-prompt is attempted before
// giving up.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagnosd/internal/langpack"
	"github.com/fyrsmithlabs/diagnosd/internal/provider"
)

var tracer = otel.Tracer("diagnosd/analysis")

// defaultEstimatedDuration is used when the provider omits or mangles the
// duration; it is advisory, not worth failing over.
const defaultEstimatedDuration = 30

// Analyzer produces diagnostic assessments from problem descriptions.
type Analyzer struct {
	completer provider.Completer
	pack      *langpack.Pack
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewAnalyzer creates a problem analyzer.
func NewAnalyzer(completer provider.Completer, pack *langpack.Pack, logger *zap.Logger) (*Analyzer, error) {
	if completer == nil {
		return nil, errors.New("completion client is required for analyzer")
	}
	if pack == nil {
		return nil, errors.New("language pack is required for analyzer")
	}
	if logger == nil {
		return nil, errors.New("logger is required for analyzer")
	}
	return &Analyzer{
		completer: completer,
		pack:      pack,
		logger:    logger,
		tracer:    tracer,
	}, nil
}

// Analyze produces an assessment and a confidence score in [0,1].
//
// Machine context is advisory; its absence never fails the call. Provider
// failures and unparsable output get one retry with a stricter reformat
// prompt, then surface as *GenerationError.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Assessment, float64, error) {
	ctx, span := a.tracer.Start(ctx, "Analyzer.Analyze")
	defer span.End()

	if strings.TrimSpace(req.Problem) == "" {
		return nil, 0, ErrEmptyProblem
	}
	req.Language = a.pack.Resolve(req.Language)

	assessment, err := a.generateOnce(ctx, req, false)
	if err != nil {
		a.logger.Warn("assessment generation failed, re-prompting strictly",
			zap.String("language", req.Language),
			zap.Error(err),
		)
		assessment, err = a.generateOnce(ctx, req, true)
		if err != nil {
			span.RecordError(err)
			return nil, 0, &GenerationError{Attempts: 2, Err: err}
		}
	}

	a.applySafetyRule(req, assessment)

	if assessment.ConfidenceLevel == ConfidenceVeryLow {
		assessment.RequiresExpert = true
	}

	score := assessment.ConfidenceLevel.Score()

	a.logger.Info("assessment generated",
		zap.String("category", assessment.ProblemCategory),
		zap.String("confidence", string(assessment.ConfidenceLevel)),
		zap.Int("causes", len(assessment.LikelyCauses)),
		zap.Int("steps", len(assessment.RecommendedSteps)),
		zap.Bool("requires_expert", assessment.RequiresExpert),
	)

	return assessment, score, nil
}

// generateOnce performs one provider round trip and parses the result.
func (a *Analyzer) generateOnce(ctx context.Context, req Request, strict bool) (*Assessment, error) {
	prompt := buildDiagnosticPrompt(req, strict)

	resp, err := a.completer.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("provider call failed: %w", err)
	}

	a.logger.Debug("provider response",
		zap.String("model", resp.Model),
		zap.Duration("latency", resp.Latency),
		zap.Int("output_tokens", resp.OutputTokens),
	)

	return parseAssessment(resp.Content)
}

// applySafetyRule injects a generic warning when the problem or any likely
// cause mentions a hazard but the provider supplied no warning, and drops
// blank warnings either way.
func (a *Analyzer) applySafetyRule(req Request, assessment *Assessment) {
	assessment.SafetyWarnings = dropBlank(assessment.SafetyWarnings)
	if len(assessment.SafetyWarnings) > 0 {
		return
	}

	hazardous := a.pack.HasSafetyKeyword(req.Problem, req.Language)
	if !hazardous {
		for _, cause := range assessment.LikelyCauses {
			if a.pack.HasSafetyKeyword(cause, req.Language) {
				hazardous = true
				break
			}
		}
	}

	if hazardous {
		assessment.SafetyWarnings = []string{a.pack.SafetyWarning(req.Language)}
	}
}

// rawAssessment is the fixed JSON shape expected from the provider.
// estimated_duration is loosely typed because models return it as a
// number, a numeric string, or "30 minutes".
type rawAssessment struct {
	ProblemCategory   string      `json:"problem_category"`
	LikelyCauses      []string    `json:"likely_causes"`
	ConfidenceLevel   string      `json:"confidence_level"`
	RecommendedSteps  []PlanStep  `json:"recommended_steps"`
	SafetyWarnings    []string    `json:"safety_warnings"`
	EstimatedDuration interface{} `json:"estimated_duration"`
	RequiresExpert    bool        `json:"requires_expert"`
}

// parseAssessment parses and validates provider output.
func parseAssessment(content string) (*Assessment, error) {
	payload, err := extractJSONObject(content)
	if err != nil {
		return nil, err
	}

	var raw rawAssessment
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse assessment JSON: %w", err)
	}

	causes := dropBlank(raw.LikelyCauses)
	if len(causes) == 0 {
		return nil, errors.New("assessment has no likely causes")
	}
	steps := dropBlankSteps(raw.RecommendedSteps)
	if len(steps) == 0 {
		return nil, errors.New("assessment has no recommended steps")
	}

	assessment := &Assessment{
		ProblemCategory:   strings.TrimSpace(raw.ProblemCategory),
		LikelyCauses:      causes,
		ConfidenceLevel:   ParseConfidenceLevel(raw.ConfidenceLevel),
		RecommendedSteps:  steps,
		SafetyWarnings:    dropBlank(raw.SafetyWarnings),
		EstimatedDuration: coerceDuration(raw.EstimatedDuration),
		RequiresExpert:    raw.RequiresExpert,
	}
	if assessment.ProblemCategory == "" {
		assessment.ProblemCategory = "general"
	}

	return assessment, nil
}

// extractJSONObject strips markdown fences and surrounding prose, returning
// the outermost JSON object in content.
func extractJSONObject(content string) (string, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end < start {
		return "", errors.New("no JSON object in provider response")
	}
	return content[start : end+1], nil
}

// coerceDuration converts the loosely typed duration to positive minutes,
// falling back to the default since duration is advisory.
func coerceDuration(v interface{}) int {
	switch d := v.(type) {
	case float64:
		if d > 0 {
			return int(d)
		}
	case string:
		fields := strings.Fields(d)
		if len(fields) > 0 {
			if n, err := strconv.Atoi(fields[0]); err == nil && n > 0 {
				return n
			}
		}
	case json.Number:
		if n, err := d.Int64(); err == nil && n > 0 {
			return int(n)
		}
	}
	return defaultEstimatedDuration
}

func dropBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func dropBlankSteps(steps []PlanStep) []PlanStep {
	out := make([]PlanStep, 0, len(steps))
	for _, s := range steps {
		s.Instruction = strings.TrimSpace(s.Instruction)
		if s.Instruction == "" {
			continue
		}
		s.ExpectedOutcomes = dropBlank(s.ExpectedOutcomes)
		out = append(out, s)
	}
	return out
}
