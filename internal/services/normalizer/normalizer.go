// Package normalizer maps heterogeneous provider replies onto ConciergeReply.
package normalizer

import (
	"tripconcierge/internal/adapters/ai"
	"tripconcierge/internal/domain/reply"
	"tripconcierge/pkg/logger"
)

// Normalizer picks a parser per provider and falls back to a degraded
// reply whenever parsing fails. It never returns an error.
type Normalizer struct {
	parsers  map[string]Parser
	fallback Parser
	log      *logger.Logger
}

// Option configures a Normalizer
type Option func(*Normalizer)

// WithParser sets the strategy for one provider
func WithParser(provider string, p Parser) Option {
	return func(n *Normalizer) { n.parsers[provider] = p }
}

// New creates a normalizer: model backends cite inline, the edge backend
// answers structured, anything else is plain text
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		parsers: map[string]Parser{
			ai.BackendClaude: CitationParser{},
			ai.BackendOpenAI: CitationParser{},
			ai.BackendGemini: CitationParser{},
			ai.BackendEdge:   StructuredParser{},
		},
		fallback: PlainTextParser{},
		log:      logger.Get().With("component", "normalizer"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Parse converts raw into a reply; failed, empty or unparseable input
// yields the degraded default
func (n *Normalizer) Parse(raw reply.Raw) reply.ConciergeReply {
	if !raw.OK {
		return degraded(raw)
	}

	parser, ok := n.parsers[raw.Provider]
	if !ok {
		parser = n.fallback
	}

	out, err := parser.Parse(raw)
	if err != nil {
		n.log.Warnw("Malformed provider reply, using default",
			"provider", raw.Provider,
			"model", raw.Model,
			"text_len", len(raw.Text),
			"error", err,
		)
		return degraded(raw)
	}

	if out.Sources == nil {
		out.Sources = []reply.Source{}
	}
	out.Kind = reply.KindAnswer
	if len(out.Sources) > 0 {
		out.Kind = reply.KindCitedAnswer
	}
	out.IsDegraded = false
	out.Usage = raw.Usage
	out.Provider = raw.Provider
	return out
}

func degraded(raw reply.Raw) reply.ConciergeReply {
	r := reply.Degraded()
	r.Provider = raw.Provider
	r.Usage = raw.Usage
	return r
}
