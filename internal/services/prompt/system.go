package prompt

import (
	"time"

	"tripconcierge/internal/domain/trip"
	"tripconcierge/pkg/templates"
)

type systemData struct {
	Title       string
	Location    string
	CurrentDate time.Time
	Dates       trip.DateRange
	Pro         bool
}

// SystemPrompt renders the concierge preamble for a trip
func SystemPrompt(tc *trip.Context, isPro bool) (string, error) {
	data := systemData{Pro: isPro, Title: "your trip"}
	if tc != nil {
		if tc.Title != "" {
			data.Title = tc.Title
		}
		data.Location = tc.Location
		data.CurrentDate = tc.CurrentDate
		data.Dates = tc.Dates
	}
	return templates.Get().Render("concierge/system", data)
}
