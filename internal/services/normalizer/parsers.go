package normalizer

import (
	"encoding/json"
	"regexp"
	"strings"

	"tripconcierge/internal/domain/reply"
	"tripconcierge/pkg/errors"
)

// Parser turns one provider's raw text into a reply; Kind and the
// usage/provider fields are filled in by the Normalizer
type Parser interface {
	Parse(raw reply.Raw) (reply.ConciergeReply, error)
}

// ParserFunc adapts a function to Parser
type ParserFunc func(raw reply.Raw) (reply.ConciergeReply, error)

func (f ParserFunc) Parse(raw reply.Raw) (reply.ConciergeReply, error) { return f(raw) }

// PlainTextParser passes text through and keeps transport-level sources
type PlainTextParser struct{}

func (PlainTextParser) Parse(raw reply.Raw) (reply.ConciergeReply, error) {
	content := strings.TrimSpace(raw.Text)
	if content == "" {
		return reply.ConciergeReply{}, errors.Wrap(errors.ErrMalformedResponse, "empty text")
	}
	return reply.ConciergeReply{Content: content, Sources: dedupe(raw.Sources)}, nil
}

// StructuredParser accepts backends that answer with a JSON object
// {"content": "...", "sources": [...]} in the text, or plain text with
// sources in the envelope
type StructuredParser struct{}

type structuredBody struct {
	Content string         `json:"content"`
	Answer  string         `json:"answer"`
	Sources []reply.Source `json:"sources"`
}

func (StructuredParser) Parse(raw reply.Raw) (reply.ConciergeReply, error) {
	text := strings.TrimSpace(raw.Text)
	if !strings.HasPrefix(text, "{") {
		return PlainTextParser{}.Parse(raw)
	}

	var body structuredBody
	if err := json.Unmarshal([]byte(text), &body); err != nil {
		return reply.ConciergeReply{}, errors.Wrapf(errors.ErrMalformedResponse, "decode structured reply: %v", err)
	}

	content := strings.TrimSpace(body.Content)
	if content == "" {
		content = strings.TrimSpace(body.Answer)
	}
	if content == "" {
		return reply.ConciergeReply{}, errors.Wrap(errors.ErrMalformedResponse, "structured reply without content")
	}

	return reply.ConciergeReply{
		Content: content,
		Sources: dedupe(append(body.Sources, raw.Sources...)),
	}, nil
}

var (
	// [1] Title - https://example.com   or   1. Title - https://example.com
	sourceLine = regexp.MustCompile(`^\s*(?:\[(\d+)\]|(\d+)\.)\s+(.+?)\s+[-–:]\s+(https?://\S+)\s*$`)
	// [title](https://example.com)
	markdownLink = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)\s]+)\)`)
	sourcesLabel = regexp.MustCompile(`(?i)^\s*(?:#+\s*)?(?:\*\*)?sources?:?(?:\*\*)?\s*$`)
)

// CitationParser reads free text that cites with [n] markers and lists
// "[n] Title - URL" lines, plus inline markdown links
type CitationParser struct{}

func (CitationParser) Parse(raw reply.Raw) (reply.ConciergeReply, error) {
	var (
		body    []string
		sources []reply.Source
	)
	for _, line := range strings.Split(raw.Text, "\n") {
		if m := sourceLine.FindStringSubmatch(line); m != nil {
			sources = append(sources, reply.Source{Title: strings.TrimSpace(m[3]), URL: m[4]})
			continue
		}
		body = append(body, line)
	}

	// drop a dangling "Sources:" heading left after the list was removed
	for len(body) > 0 && (strings.TrimSpace(body[len(body)-1]) == "" || sourcesLabel.MatchString(body[len(body)-1])) {
		body = body[:len(body)-1]
	}

	content := markdownLink.ReplaceAllStringFunc(strings.Join(body, "\n"), func(link string) string {
		m := markdownLink.FindStringSubmatch(link)
		sources = append(sources, reply.Source{Title: m[1], URL: m[2]})
		return m[1]
	})

	content = strings.TrimSpace(content)
	if content == "" {
		return reply.ConciergeReply{}, errors.Wrap(errors.ErrMalformedResponse, "reply has citations but no text")
	}

	return reply.ConciergeReply{
		Content: content,
		Sources: dedupe(append(sources, raw.Sources...)),
	}, nil
}

// dedupe drops sources without URL and repeated URLs, keeping first-seen order
func dedupe(in []reply.Source) []reply.Source {
	out := make([]reply.Source, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if s.URL == "" || seen[s.URL] {
			continue
		}
		seen[s.URL] = true
		if s.Title == "" {
			s.Title = s.URL
		}
		out = append(out, s)
	}
	return out
}
