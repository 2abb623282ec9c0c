package reply

import "time"

// Kind tags which variant of ConciergeReply is populated
type Kind string

const (
	// KindAnswer is a plain provider answer
	KindAnswer Kind = "answer"
	// KindCitedAnswer is an answer that carries Sources
	KindCitedAnswer Kind = "cited_answer"
	// KindDegraded is a synthesized apology when no real answer is available
	KindDegraded Kind = "degraded"
	// KindQuotaNotice is returned instead of an answer once the daily quota is used up
	KindQuotaNotice Kind = "quota_notice"
)

// ConciergeReply is the only shape a caller ever receives for a turn
type ConciergeReply struct {
	Kind       Kind        `json:"kind"`
	Content    string      `json:"content"`
	Usage      *TokenUsage `json:"usage,omitempty"`
	Sources    []Source    `json:"sources"`
	IsDegraded bool        `json:"is_degraded"`
	Provider   string      `json:"provider,omitempty"`
	Quota      *QuotaInfo  `json:"quota,omitempty"`
}

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// QuotaInfo accompanies KindQuotaNotice replies
type QuotaInfo struct {
	Remaining int           `json:"remaining"` // -1 = unlimited
	ResetAt   time.Time     `json:"reset_at"`
	ResetIn   time.Duration `json:"reset_in"`
}

// DefaultApology is the content of every degraded reply
const DefaultApology = "Sorry, I couldn't reach the trip assistant right now. Please try again in a moment."

// Degraded returns the canned reply used when no provider answer is available
func Degraded() ConciergeReply {
	return ConciergeReply{
		Kind:       KindDegraded,
		Content:    DefaultApology,
		Sources:    []Source{},
		IsDegraded: true,
	}
}

// Raw is a provider answer before normalization
type Raw struct {
	Provider string
	OK       bool
	Text     string
	Usage    *TokenUsage
	Sources  []Source
	Error    string
	Model    string
}
