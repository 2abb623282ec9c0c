package trip

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier names the context source that produced a Context
type Tier string

const (
	TierEnhanced Tier = "enhanced"
	TierBasic    Tier = "basic"
	TierMinimal  Tier = "minimal"
)

// Context is everything the concierge knows about a trip for one turn.
// Exactly one tier produces it; it is not modified after being returned.
type Context struct {
	TripID              string            `json:"trip_id"`
	Title               string            `json:"title"`
	Location            string            `json:"location"`
	Dates               DateRange         `json:"dates"`
	Participants        []Participant     `json:"participants"`
	Accommodation       Accommodation     `json:"accommodation"`
	CurrentDate         time.Time         `json:"current_date"`
	UpcomingEvents      []Event           `json:"upcoming_events"`
	RecentUpdates       []Update          `json:"recent_updates"`
	ConfirmationNumbers map[string]string `json:"confirmation_numbers"`

	// Enrichments, filled by the enhanced tier only
	Preferences      *Preferences      `json:"preferences,omitempty"`
	SpendingPatterns *SpendingPatterns `json:"spending_patterns,omitempty"`
	GroupDynamics    *GroupDynamics    `json:"group_dynamics,omitempty"`
	VisitedPlaces    []Place           `json:"visited_places,omitempty"`
	Files            []File            `json:"files,omitempty"`
	Photos           []Photo           `json:"photos,omitempty"`
	Links            []Link            `json:"links,omitempty"`
	Polls            []Poll            `json:"polls,omitempty"`
	ChatHistory      []ChatMessage     `json:"chat_history,omitempty"`
	Weather          *Weather          `json:"weather,omitempty"`

	Tier Tier `json:"tier"`
}

type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsZero reports whether no dates are known
func (d DateRange) IsZero() bool {
	return d.Start.IsZero() && d.End.IsZero()
}

type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

type Accommodation struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

type Event struct {
	Title     string    `json:"title"`
	Location  string    `json:"location,omitempty"`
	StartTime time.Time `json:"start_time"`
}

type Update struct {
	Author string    `json:"author"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

type Preferences struct {
	Dietary        []string `json:"dietary,omitempty"`
	Vibe           []string `json:"vibe,omitempty"`
	Accessibility  []string `json:"accessibility,omitempty"`
	Budget         string   `json:"budget,omitempty"`
	TimePreference string   `json:"time_preference,omitempty"`
}

type SpendingPatterns struct {
	Currency   string                     `json:"currency"`
	TotalSpent decimal.Decimal            `json:"total_spent"`
	ByCategory map[string]decimal.Decimal `json:"by_category,omitempty"`
	TopPayer   string                     `json:"top_payer,omitempty"`
}

type GroupDynamics struct {
	MostActive    []string `json:"most_active,omitempty"`
	DecisionStyle string   `json:"decision_style,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

type Place struct {
	Name      string    `json:"name"`
	Category  string    `json:"category,omitempty"`
	VisitedAt time.Time `json:"visited_at"`
}

type File struct {
	Name string `json:"name"`
	Kind string `json:"kind,omitempty"`
}

type Photo struct {
	Caption string    `json:"caption,omitempty"`
	TakenAt time.Time `json:"taken_at"`
}

type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type Poll struct {
	Question string       `json:"question"`
	Options  []PollOption `json:"options"`
	Status   string       `json:"status"` // open, closed
}

type PollOption struct {
	Text  string `json:"text"`
	Votes int    `json:"votes"`
}

type ChatMessage struct {
	Author string    `json:"author"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

type Weather struct {
	Summary string  `json:"summary"`
	HighC   float64 `json:"high_c"`
	LowC    float64 `json:"low_c"`
}
