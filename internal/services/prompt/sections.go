package prompt

import (
	"fmt"
	"sort"
	"strings"

	"tripconcierge/internal/domain/trip"
)

const dateLayout = "Mon 2 Jan 2006"
const timeLayout = "Mon 2 Jan 15:04"

// section renders one labeled block; an empty result is omitted
type section struct {
	label  string
	render func(c *trip.Context) string
}

// sections in priority order; truncation cuts from the end
var sections = []section{
	{"Trip", renderBasics},
	{"Preferences", renderPreferences},
	{"Spending", renderSpending},
	{"Visited places", renderVisited},
	{"Group dynamics", renderGroup},
	{"Shared links", renderLinks},
	{"Polls", renderPolls},
	{"Files", renderFiles},
	{"Schedule", renderSchedule},
	{"Confirmations", renderConfirmations},
	{"Weather", renderWeather},
}

func renderBasics(c *trip.Context) string {
	var b strings.Builder
	line := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}

	line("Title", c.Title)
	line("Location", c.Location)
	if !c.Dates.IsZero() {
		line("Dates", c.Dates.Start.Format(dateLayout)+" - "+c.Dates.End.Format(dateLayout))
	}
	if !c.CurrentDate.IsZero() {
		line("Today", c.CurrentDate.Format(dateLayout))
	}
	if len(c.Participants) > 0 {
		names := make([]string, 0, len(c.Participants))
		for _, p := range c.Participants {
			if p.Role != "" {
				names = append(names, p.Name+" ("+p.Role+")")
				continue
			}
			names = append(names, p.Name)
		}
		line("Participants", strings.Join(names, ", "))
	}
	acc := c.Accommodation.Name
	if c.Accommodation.Address != "" {
		acc += ", " + c.Accommodation.Address
	}
	line("Staying at", strings.TrimPrefix(acc, ", "))
	return b.String()
}

func renderPreferences(c *trip.Context) string {
	p := c.Preferences
	if p == nil {
		return ""
	}
	var b strings.Builder
	list := func(k string, v []string) {
		if len(v) > 0 {
			fmt.Fprintf(&b, "%s: %s\n", k, strings.Join(v, ", "))
		}
	}
	list("Dietary", p.Dietary)
	list("Vibe", p.Vibe)
	list("Accessibility", p.Accessibility)
	if p.Budget != "" {
		fmt.Fprintf(&b, "Budget: %s\n", p.Budget)
	}
	if p.TimePreference != "" {
		fmt.Fprintf(&b, "Preferred times: %s\n", p.TimePreference)
	}
	return b.String()
}

func renderSpending(c *trip.Context) string {
	s := c.SpendingPatterns
	if s == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Total spent: %s %s\n", s.TotalSpent.StringFixed(2), s.Currency)

	cats := make([]string, 0, len(s.ByCategory))
	for k := range s.ByCategory {
		cats = append(cats, k)
	}
	sort.Strings(cats)
	for _, k := range cats {
		fmt.Fprintf(&b, "- %s: %s %s\n", k, s.ByCategory[k].StringFixed(2), s.Currency)
	}
	if s.TopPayer != "" {
		fmt.Fprintf(&b, "Paid most: %s\n", s.TopPayer)
	}
	return b.String()
}

func renderVisited(c *trip.Context) string {
	var b strings.Builder
	for _, p := range c.VisitedPlaces {
		if p.Category != "" {
			fmt.Fprintf(&b, "- %s (%s)\n", p.Name, p.Category)
			continue
		}
		fmt.Fprintf(&b, "- %s\n", p.Name)
	}
	return b.String()
}

func renderGroup(c *trip.Context) string {
	var b strings.Builder
	if g := c.GroupDynamics; g != nil {
		if len(g.MostActive) > 0 {
			fmt.Fprintf(&b, "Most active: %s\n", strings.Join(g.MostActive, ", "))
		}
		if g.DecisionStyle != "" {
			fmt.Fprintf(&b, "Decision style: %s\n", g.DecisionStyle)
		}
		if g.Notes != "" {
			fmt.Fprintf(&b, "Notes: %s\n", g.Notes)
		}
	}
	if len(c.ChatHistory) > 0 {
		b.WriteString("Recent group chat:\n")
		for _, m := range trailing(c.ChatHistory, 5) {
			fmt.Fprintf(&b, "- %s: %s\n", m.Author, m.Text)
		}
	}
	return b.String()
}

func renderLinks(c *trip.Context) string {
	var b strings.Builder
	for _, l := range c.Links {
		fmt.Fprintf(&b, "- %s: %s\n", l.Title, l.URL)
	}
	return b.String()
}

func renderPolls(c *trip.Context) string {
	var b strings.Builder
	for _, p := range c.Polls {
		opts := make([]string, 0, len(p.Options))
		for _, o := range p.Options {
			opts = append(opts, fmt.Sprintf("%s (%d)", o.Text, o.Votes))
		}
		fmt.Fprintf(&b, "- %s [%s]: %s\n", p.Question, p.Status, strings.Join(opts, ", "))
	}
	return b.String()
}

func renderFiles(c *trip.Context) string {
	var b strings.Builder
	for _, f := range c.Files {
		if f.Kind != "" {
			fmt.Fprintf(&b, "- %s (%s)\n", f.Name, f.Kind)
			continue
		}
		fmt.Fprintf(&b, "- %s\n", f.Name)
	}
	if n := len(c.Photos); n > 0 {
		fmt.Fprintf(&b, "Photos shared: %d\n", n)
	}
	return b.String()
}

func renderSchedule(c *trip.Context) string {
	var b strings.Builder
	for _, e := range c.UpcomingEvents {
		fmt.Fprintf(&b, "- %s: %s", e.StartTime.Format(timeLayout), e.Title)
		if e.Location != "" {
			fmt.Fprintf(&b, " @ %s", e.Location)
		}
		b.WriteString("\n")
	}
	if len(c.RecentUpdates) > 0 {
		b.WriteString("Recent updates:\n")
		for _, u := range c.RecentUpdates {
			fmt.Fprintf(&b, "- %s: %s\n", u.Author, u.Text)
		}
	}
	return b.String()
}

func renderConfirmations(c *trip.Context) string {
	keys := make([]string, 0, len(c.ConfirmationNumbers))
	for k := range c.ConfirmationNumbers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, c.ConfirmationNumbers[k])
	}
	return b.String()
}

func renderWeather(c *trip.Context) string {
	w := c.Weather
	if w == nil {
		return ""
	}
	return fmt.Sprintf("%s, %.0f°C / %.0f°C\n", w.Summary, w.HighC, w.LowC)
}

func trailing[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
