package engine

import (
	"strings"

	"github.com/docsage/docsage/config"
	"github.com/docsage/docsage/history"
)

// Config controls one question-answering session. All knobs are fixed at
// session creation; the engine never reads environment or files itself.
type Config struct {
	Name                string  // Logical name for tracing/logging
	MaxRounds           int     // Upper bound for the refinement round counter
	ConfidenceThreshold float64 // Reflection confidence below this triggers refinement
	RetrievalK          int     // Hits requested per sub-query
	ContextChunkBudget  int     // Max chunks placed into a synthesis prompt
	ContextTokenBudget  int     // Optional token cap for the evidence block (0 disables)
	SynthesisRetries    int     // Total synthesis attempts before the session fails
	GraphMaxVisits      int     // Safety guard for graph execution (0 = derived from MaxRounds)

	PlannerPrompt   string // System prompt for the query planner
	SynthesisPrompt string // System prompt for the answer synthesizer
	ReflectPrompt   string // System prompt for the reflector
	NoAnswerMessage string // Answer emitted when retrieval finds nothing

	tokenizer Tokenizer
	history   history.Store
}

// Option customises the engine configuration.
type Option func(*Config)

// WithName sets the logical engine name used in logs and traces.
func WithName(name string) Option {
	return func(cfg *Config) {
		if strings.TrimSpace(name) != "" {
			cfg.Name = name
		}
	}
}

// WithMaxRounds caps how many refinement rounds a session may run. Zero means
// a single round with no refinement.
func WithMaxRounds(n int) Option {
	return func(cfg *Config) {
		if n >= 0 {
			cfg.MaxRounds = n
		}
	}
}

// WithConfidenceThreshold sets the reflection confidence below which the
// engine keeps refining.
func WithConfidenceThreshold(t float64) Option {
	return func(cfg *Config) {
		if t >= 0 && t <= 1 {
			cfg.ConfidenceThreshold = t
		}
	}
}

// WithRetrievalK sets how many hits each sub-query requests.
func WithRetrievalK(k int) Option {
	return func(cfg *Config) {
		if k > 0 {
			cfg.RetrievalK = k
		}
	}
}

// WithContextChunkBudget caps how many chunks flow into a synthesis prompt;
// lowest-similarity chunks are dropped first.
func WithContextChunkBudget(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.ContextChunkBudget = n
		}
	}
}

// WithContextTokenBudget adds a token cap on the evidence block. Requires a
// tokenizer; ignored otherwise.
func WithContextTokenBudget(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.ContextTokenBudget = n
		}
	}
}

// WithSynthesisRetries sets the total number of synthesis attempts.
func WithSynthesisRetries(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.SynthesisRetries = n
		}
	}
}

// WithGraphMaxVisits tweaks the safety guard for graph traversal.
func WithGraphMaxVisits(max int) Option {
	return func(cfg *Config) {
		if max > 0 {
			cfg.GraphMaxVisits = max
		}
	}
}

// WithPlannerPrompt sets the system prompt used for query decomposition.
func WithPlannerPrompt(prompt string) Option {
	return func(cfg *Config) {
		if prompt != "" {
			cfg.PlannerPrompt = prompt
		}
	}
}

// WithSynthesisPrompt sets the answer-writer system prompt.
func WithSynthesisPrompt(prompt string) Option {
	return func(cfg *Config) {
		if prompt != "" {
			cfg.SynthesisPrompt = prompt
		}
	}
}

// WithReflectPrompt sets the self-critique system prompt.
func WithReflectPrompt(prompt string) Option {
	return func(cfg *Config) {
		if prompt != "" {
			cfg.ReflectPrompt = prompt
		}
	}
}

// WithNoAnswerMessage customises the answer used when no relevant content is found.
func WithNoAnswerMessage(message string) Option {
	return func(cfg *Config) {
		if strings.TrimSpace(message) != "" {
			cfg.NoAnswerMessage = message
		}
	}
}

// WithTokenizer plugs in a tokenizer for the context token budget.
func WithTokenizer(tok Tokenizer) Option {
	return func(cfg *Config) {
		if tok != nil {
			cfg.tokenizer = tok
		}
	}
}

// WithHistory archives every completed session to the given store. Archive
// failures are logged and never fail the session.
func WithHistory(store history.Store) Option {
	return func(cfg *Config) {
		if store != nil {
			cfg.history = store
		}
	}
}

func defaultConfig() *Config {
	return &Config{
		Name:                "docsage",
		MaxRounds:           3,
		ConfidenceThreshold: 0.7,
		RetrievalK:          5,
		ContextChunkBudget:  12,
		SynthesisRetries:    2,
		PlannerPrompt: `You are a query planning assistant for a document question-answering system. Decide whether the user question needs to be broken down into sub-queries for better retrieval.
Respond with strict JSON only: {"needs_decomposition": true|false, "reasoning": "brief explanation", "sub_queries": ["..."]}.
Rules:
- Simple, single-topic questions: set needs_decomposition to false and sub_queries to [].
- Compound questions (comparisons, enumerations, multi-part asks): set needs_decomposition to true and emit one focused sub-query per distinct concept, each phrased as a standalone search string that preserves the question's intent.
- Never emit more than 5 sub-queries and never return prose outside the JSON object.`,
		SynthesisPrompt: `You are a research writer answering questions from a private document collection. Use only the supplied context passages; never invent facts or sources.
Guidelines:
1. Synthesize across passages and resolve agreements or contradictions before concluding.
2. Attribute factual statements to their source with [source] citations.
3. If the context cannot answer the question, say so explicitly and describe what is missing instead of guessing.`,
		ReflectPrompt: `You are a quality assessor for a document question-answering system. Judge whether the draft answer fully addresses the question given the evidence it cites.
Respond with strict JSON only: {"is_complete": true|false, "confidence": 0.0-1.0, "missing_aspects": ["..."], "needs_refinement": true|false}.
Rules:
- is_complete is true only when every part of the question is answered.
- confidence reflects how well the cited evidence supports the draft.
- missing_aspects lists short, searchable topics that would close real gaps; leave it empty when there are none.
- Never return prose outside the JSON object.`,
		NoAnswerMessage: "No relevant content was found in the document collection for this question.",
	}
}

func applyOptions(cfg *Config, opts []Option) *Config {
	if cfg == nil {
		cfg = defaultConfig()
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// validate checks configuration invariants before a session can run.
func (cfg *Config) validate() error {
	v := config.NewValidator()
	v.RequireNonEmpty("name", cfg.Name)
	v.RequireNonNegative("max_rounds", cfg.MaxRounds)
	v.ValidateFloatRange("confidence_threshold", cfg.ConfidenceThreshold, 0, 1)
	v.RequirePositive("retrieval_k", cfg.RetrievalK)
	v.RequirePositive("context_chunk_budget", cfg.ContextChunkBudget)
	v.RequirePositive("synthesis_retries", cfg.SynthesisRetries)
	return v.Error()
}
