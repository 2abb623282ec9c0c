package concierge

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"tripconcierge/internal/domain/reply"
	"tripconcierge/pkg/templates"
)

// QuotaNotice builds the reply shown instead of an answer once the daily
// quota is used up
func QuotaNotice(limit int, resetAt, now time.Time) reply.ConciergeReply {
	data := struct {
		Limit      int
		ResetHuman string
		ResetAt    string
	}{
		Limit:      limit,
		ResetHuman: humanize.RelTime(resetAt, now, "ago", "from now"),
		ResetAt:    resetAt.Format("Mon 15:04 MST"),
	}

	content, err := templates.Get().Render("concierge/quota_notice", data)
	if err != nil {
		content = fmt.Sprintf("You've reached today's concierge limit. It resets %s.", data.ResetHuman)
	}

	return reply.ConciergeReply{
		Kind:    reply.KindQuotaNotice,
		Content: content,
		Sources: []reply.Source{},
		Quota: &reply.QuotaInfo{
			Remaining: 0,
			ResetAt:   resetAt,
			ResetIn:   resetAt.Sub(now),
		},
	}
}
