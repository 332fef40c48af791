package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docsage/docsage/llm"
	"github.com/docsage/docsage/message"
)

type reflector struct {
	llm       llm.Client
	prompt    string
	threshold float64
	logger    *slog.Logger
}

// reflectOutput is the raw critique contract. It is the single place where
// free-form model output is normalized into structured Assessment fields;
// everything downstream decides on those fields alone.
type reflectOutput struct {
	IsComplete      bool            `json:"is_complete"`
	Confidence      confidenceValue `json:"confidence"`
	MissingAspects  []string        `json:"missing_aspects"`
	NeedsRefinement bool            `json:"needs_refinement"`
}

// confidenceValue accepts either a numeric confidence in [0,1] or the legacy
// "high"/"medium"/"low" labels some models emit.
type confidenceValue float64

func (c *confidenceValue) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		if num < 0 {
			num = 0
		}
		if num > 1 {
			num = 1
		}
		*c = confidenceValue(num)
		return nil
	}

	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return fmt.Errorf("confidence must be a number or label: %s", string(data))
	}
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "high":
		*c = 0.9
	case "medium":
		*c = 0.6
	case "low":
		*c = 0.3
	default:
		return fmt.Errorf("unknown confidence label %q", label)
	}
	return nil
}

func newReflector(client llm.Client, cfg *Config, logger *slog.Logger) *reflector {
	return &reflector{
		llm:       client,
		prompt:    cfg.ReflectPrompt,
		threshold: cfg.ConfidenceThreshold,
		logger:    logger,
	}
}

// conservativeAssessment accepts the current draft. It is the fallback used
// whenever the critique cannot be obtained or parsed, since terminating with
// the best available draft is always safe.
func conservativeAssessment() *Assessment {
	return &Assessment{
		Complete:        true,
		Confidence:      0.5,
		NeedsRefinement: false,
	}
}

// Assess critiques the draft against the original question. It never fails:
// generator errors and malformed critiques degrade to accepting the draft.
// The refinement decision is recomputed from the structured fields only, so
// an inconsistent model flag cannot force an extra round.
func (r *reflector) Assess(ctx context.Context, question string, draft *Draft) *Assessment {
	if r.llm == nil || draft == nil {
		return conservativeAssessment()
	}

	userPrompt := fmt.Sprintf("Question:\n%s\n\nDraft answer (round %d, cited sources: %s):\n%s\n\nReturn JSON only.",
		question, draft.Round, strings.Join(draft.Sources, ", "), draft.Text)
	msgs := []*message.Message{
		message.NewMessage(message.RoleSystem, r.prompt),
		message.NewMessage(message.RoleUser, userPrompt),
	}

	resp, err := r.llm.Complete(ctx, msgs)
	if err != nil {
		r.logger.Warn("reflection failed, accepting current draft", "error", err)
		return conservativeAssessment()
	}
	if resp == nil || strings.TrimSpace(resp.Text()) == "" {
		r.logger.Warn("reflection returned empty output, accepting current draft")
		return conservativeAssessment()
	}

	out, err := decodeJSON[reflectOutput](resp.Text())
	if err != nil {
		r.logger.Warn("reflection output unparseable, accepting current draft", "error", err)
		return conservativeAssessment()
	}

	aspects := make([]string, 0, len(out.MissingAspects))
	for _, aspect := range out.MissingAspects {
		aspect = strings.TrimSpace(aspect)
		if aspect != "" {
			aspects = append(aspects, aspect)
		}
	}

	assessment := &Assessment{
		Complete:       out.IsComplete,
		Confidence:     float64(out.Confidence),
		MissingAspects: aspects,
	}
	assessment.NeedsRefinement = !assessment.Complete ||
		assessment.Confidence < r.threshold ||
		len(assessment.MissingAspects) > 0
	return assessment
}
