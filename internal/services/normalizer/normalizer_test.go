package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripconcierge/internal/domain/reply"
	"tripconcierge/pkg/errors"
)

func TestParse_EmptyTextIsDegraded(t *testing.T) {
	n := New()
	for _, provider := range []string{"claude", "openai", "gemini", "edge", "unknown"} {
		r := n.Parse(reply.Raw{Provider: provider, OK: true, Text: "  \n"})
		assert.True(t, r.IsDegraded, provider)
		assert.Equal(t, reply.KindDegraded, r.Kind)
		assert.NotEmpty(t, r.Content)
		assert.NotNil(t, r.Sources)
		assert.Empty(t, r.Sources)
	}
}

func TestParse_FailedCallIsDegraded(t *testing.T) {
	usage := &reply.TokenUsage{PromptTokens: 10}
	r := New().Parse(reply.Raw{Provider: "claude", OK: false, Error: "timeout", Usage: usage})
	assert.True(t, r.IsDegraded)
	assert.Equal(t, reply.DefaultApology, r.Content)
	assert.Equal(t, "claude", r.Provider)
	assert.Same(t, usage, r.Usage)
}

func TestParse_CitationsExtracted(t *testing.T) {
	text := "Book Tasca do Chico for fado [1], then walk to the Miradouro [2].\n\n" +
		"Sources:\n" +
		"[1] Tasca do Chico - https://tascadochico.pt\n" +
		"[2] Visit Lisboa - https://visitlisboa.com/miradouros\n"

	r := New().Parse(reply.Raw{Provider: "claude", OK: true, Text: text})

	require.False(t, r.IsDegraded)
	assert.Equal(t, reply.KindCitedAnswer, r.Kind)
	assert.Equal(t, "Book Tasca do Chico for fado [1], then walk to the Miradouro [2].", r.Content)
	require.Len(t, r.Sources, 2)
	assert.Equal(t, reply.Source{Title: "Tasca do Chico", URL: "https://tascadochico.pt"}, r.Sources[0])
	assert.Equal(t, "https://visitlisboa.com/miradouros", r.Sources[1].URL)
}

func TestParse_MarkdownLinks(t *testing.T) {
	text := "Try [Time Out Market](https://timeout.com/market) or [Ramiro](https://ramiro.pt). " +
		"Again: [Ramiro](https://ramiro.pt)"

	r := New().Parse(reply.Raw{Provider: "openai", OK: true, Text: text})

	assert.Equal(t, "Try Time Out Market or Ramiro. Again: Ramiro", r.Content)
	require.Len(t, r.Sources, 2)
	assert.Equal(t, "Time Out Market", r.Sources[0].Title)
}

func TestParse_PlainAnswer(t *testing.T) {
	r := New().Parse(reply.Raw{
		Provider: "gemini",
		OK:       true,
		Text:     "Pack an umbrella.",
		Usage:    &reply.TokenUsage{TotalTokens: 12},
	})

	assert.Equal(t, reply.KindAnswer, r.Kind)
	assert.Equal(t, "Pack an umbrella.", r.Content)
	assert.Equal(t, 12, r.Usage.TotalTokens)
	assert.NotNil(t, r.Sources)
}

func TestParse_GroundingSourcesKept(t *testing.T) {
	r := New().Parse(reply.Raw{
		Provider: "gemini",
		OK:       true,
		Text:     "Sunny all weekend.",
		Sources:  []reply.Source{{URL: "https://weather.example"}},
	})
	require.Len(t, r.Sources, 1)
	assert.Equal(t, "https://weather.example", r.Sources[0].Title)
	assert.Equal(t, reply.KindCitedAnswer, r.Kind)
}

func TestParse_StructuredPassThrough(t *testing.T) {
	r := New().Parse(reply.Raw{
		Provider: "edge",
		OK:       true,
		Text:     `{"content":"Take tram 28.","sources":[{"title":"Carris","url":"https://carris.pt"}]}`,
	})
	assert.False(t, r.IsDegraded)
	assert.Equal(t, "Take tram 28.", r.Content)
	require.Len(t, r.Sources, 1)
}

func TestParse_StructuredEnvelopeWithPlainText(t *testing.T) {
	r := New().Parse(reply.Raw{
		Provider: "edge",
		OK:       true,
		Text:     "Take tram 28 [1].",
		Sources:  []reply.Source{{Title: "Carris", URL: "https://carris.pt"}},
	})
	assert.Equal(t, "Take tram 28 [1].", r.Content)
	assert.Len(t, r.Sources, 1)
}

func TestParse_MalformedJSONIsDegraded(t *testing.T) {
	r := New().Parse(reply.Raw{Provider: "edge", OK: true, Text: `{"content": "unterminated`})
	assert.True(t, r.IsDegraded)
	assert.Equal(t, reply.DefaultApology, r.Content)
}

func TestParse_OnlyCitationsIsDegraded(t *testing.T) {
	r := New().Parse(reply.Raw{Provider: "claude", OK: true, Text: "Sources:\n[1] A - https://a.example"})
	assert.True(t, r.IsDegraded)
}

func TestParse_CustomParser(t *testing.T) {
	n := New(WithParser("claude", ParserFunc(func(raw reply.Raw) (reply.ConciergeReply, error) {
		return reply.ConciergeReply{}, errors.ErrMalformedResponse
	})))
	assert.True(t, n.Parse(reply.Raw{Provider: "claude", OK: true, Text: "fine"}).IsDegraded)
}
