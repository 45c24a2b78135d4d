// Package views derives what each screen shows from a store snapshot.
// Every function here is pure.
package views

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"predictionclub/internal/models"
	"predictionclub/internal/store"
)

// View names a screen
type View string

const (
	ViewHome    View = "home"
	ViewRewards View = "rewards"
	ViewProfile View = "profile"
	ViewCreate  View = "create"
)

const (
	// FeedPreviewSize is how many topics the collapsed feed shows
	FeedPreviewSize = 3

	WagerMin     int64 = 10
	WagerStep    int64 = 10
	WagerDefault int64 = 50
)

// RequiresAuth reports whether a view is only reachable when signed in
func RequiresAuth(v View) bool {
	return v == ViewCreate || v == ViewProfile
}

// Resolve returns the view to show for a navigation request and whether the
// sign-in prompt should open instead
func Resolve(st store.State, requested View) (View, bool) {
	if RequiresAuth(requested) && st.User == nil {
		return ViewHome, true
	}
	return requested, false
}

// NavItem is one entry of the navigation bar
type NavItem struct {
	View  View   `json:"view"`
	Label string `json:"label"`
}

// NavItems are the navigation entries in display order
var NavItems = []NavItem{
	{View: ViewHome, Label: "Hub"},
	{View: ViewRewards, Label: "Rewards"},
	{View: ViewProfile, Label: "Profile"},
}

// Nav is the navigation bar
type Nav struct {
	Items    []NavItem `json:"items"`
	LoggedIn bool      `json:"logged_in"`
	Points   int64     `json:"points"`
	Name     string    `json:"name,omitempty"`
	Avatar   string    `json:"avatar,omitempty"`
}

func NavBar(st store.State) Nav {
	n := Nav{Items: NavItems}
	if st.User != nil {
		n.LoggedIn = true
		n.Points = st.User.Points
		n.Name = st.User.Name
		n.Avatar = st.User.Avatar
	}
	return n
}

// FeedView is the topic list
type FeedView struct {
	Heading  string         `json:"heading"`
	Topics   []models.Topic `json:"topics"`
	Total    int            `json:"total"`
	Expanded bool           `json:"expanded"`
	HasMore  bool           `json:"has_more"`
}

// Feed shows the first FeedPreviewSize topics, or all of them when expanded
func Feed(st store.State, expanded bool) FeedView {
	f := FeedView{
		Heading:  "Active Markets",
		Topics:   st.Topics,
		Total:    len(st.Topics),
		Expanded: expanded,
	}
	if expanded {
		f.Heading = "All Markets"
	} else if len(st.Topics) > FeedPreviewSize {
		f.Topics = st.Topics[:FeedPreviewSize]
		f.HasMore = true
	}
	if f.Topics == nil {
		f.Topics = []models.Topic{}
	}
	return f
}

// Slider describes the wager input
type Slider struct {
	Min     int64 `json:"min"`
	Max     int64 `json:"max"`
	Step    int64 `json:"step"`
	Default int64 `json:"default"`
}

// TopicDetailView is a single topic with the prediction form
type TopicDetailView struct {
	Topic        models.Topic `json:"topic"`
	Options      []string     `json:"options"`
	Slider       Slider       `json:"slider"`
	CanPredict   bool         `json:"can_predict"`
	Reason       string       `json:"reason,omitempty"`
	PotentialWin int64        `json:"potential_win"`
	PoolLabel    string       `json:"pool_label"`
	EndsLabel    string       `json:"ends_label"`
}

// PredictionOptions are the outcomes a user can pick
var PredictionOptions = []string{"Yes", "No"}

// TopicDetail returns the detail of topic id, or false when it is unknown
func TopicDetail(st store.State, id string) (TopicDetailView, bool) {
	var topic *models.Topic
	for i := range st.Topics {
		if st.Topics[i].ID == id {
			topic = &st.Topics[i]
			break
		}
	}
	if topic == nil {
		return TopicDetailView{}, false
	}

	d := TopicDetailView{
		Topic:     *topic,
		Options:   PredictionOptions,
		Slider:    Slider{Min: WagerMin, Step: WagerStep},
		PoolLabel: humanize.Comma(topic.PoolSize) + " In Pool",
		EndsLabel: "Ends " + topic.EndTime.Format("Jan 2, 2006"),
	}

	switch {
	case st.User == nil:
		d.Reason = "Sign in to make a prediction."
	case topic.Status != models.TopicStatusActive:
		d.Reason = "This market is " + string(topic.Status) + "."
	case st.User.Points < WagerMin:
		d.Reason = "Not enough points to predict."
	default:
		d.CanPredict = true
	}

	if st.User != nil {
		d.Slider.Max = st.User.Points
		d.Slider.Default = min(WagerDefault, st.User.Points)
		d.PotentialWin = store.PotentialWin(d.Slider.Default)
	}
	return d, true
}

// PredictionRow is a prediction joined with its topic
type PredictionRow struct {
	models.Prediction
	TopicTitle string `json:"topic_title"`
}

// GraphPoint is one sample of the profile chart
type GraphPoint struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

// ProfileView is the signed-in user's page
type ProfileView struct {
	User         models.User          `json:"user"`
	Won          int                  `json:"won"`
	Predictions  []PredictionRow      `json:"predictions"`
	Transactions []models.Transaction `json:"transactions"`
	Redemptions  []models.Redemption  `json:"redemptions"`
	Graph        []GraphPoint         `json:"graph"`
	MemberSince  string               `json:"member_since"`
}

// Profile returns false when nobody is signed in
func Profile(st store.State) (ProfileView, bool) {
	if st.User == nil {
		return ProfileView{}, false
	}
	p := ProfileView{
		User:         *st.User,
		Predictions:  []PredictionRow{},
		Transactions: st.Transactions,
		Graph:        []GraphPoint{},
		MemberSince:  st.User.JoinedAt.Format("January 2006"),
	}
	if p.Transactions == nil {
		p.Transactions = []models.Transaction{}
	}

	titles := make(map[string]string, len(st.Topics))
	for _, t := range st.Topics {
		titles[t.ID] = t.Title
	}
	for _, pr := range st.Predictions {
		if pr.UserID != "" && pr.UserID != st.User.ID {
			continue
		}
		if pr.Status == models.PredictionWon {
			p.Won++
		}
		title, ok := titles[pr.TopicID]
		if !ok {
			title = "Unknown topic"
		}
		p.Predictions = append(p.Predictions, PredictionRow{Prediction: pr, TopicTitle: title})
	}

	for _, r := range st.Redemptions {
		if r.UserID == st.User.ID {
			p.Redemptions = append(p.Redemptions, r)
		}
	}

	// the chart reads the ledger oldest first
	for i := len(p.Transactions) - 1; i >= 0; i-- {
		p.Graph = append(p.Graph, GraphPoint{
			Name:   humanize.Comma(int64(len(p.Graph))),
			Amount: p.Transactions[i].Amount,
		})
	}
	return p, true
}

// RewardCard is a reward with its affordability
type RewardCard struct {
	models.Reward
	CanAfford bool `json:"can_afford"`
}

// Rewards lists the catalog. Nothing is affordable when signed out.
func Rewards(st store.State) []RewardCard {
	cards := make([]RewardCard, 0, len(st.Rewards))
	for _, r := range st.Rewards {
		cards = append(cards, RewardCard{
			Reward:    r,
			CanAfford: st.User != nil && st.User.Points >= r.Cost,
		})
	}
	return cards
}

// Toasts are the visible notifications, oldest first
func Toasts(st store.State) []models.Notification {
	if st.Notifications == nil {
		return []models.Notification{}
	}
	return st.Notifications
}

// ValidateDraft returns the problems with a create-topic form, for display only.
// The store validates again on submit.
func ValidateDraft(d store.TopicDraft, now time.Time) []string {
	var problems []string
	if strings.TrimSpace(d.Title) == "" {
		problems = append(problems, "Title is required.")
	}
	if strings.TrimSpace(d.Description) == "" {
		problems = append(problems, "Description is required.")
	}
	if d.Category != "" && !d.Category.Valid() {
		problems = append(problems, "Pick one of the listed categories.")
	}
	if d.EndTime.IsZero() {
		problems = append(problems, "End time is required.")
	} else if !d.EndTime.After(now) {
		problems = append(problems, "End time must be in the future.")
	}
	return problems
}

// FormatPoints renders a balance like "1,250 PTS"
func FormatPoints(points int64) string {
	return humanize.Comma(points) + " PTS"
}

// EndsIn renders the time left on a topic
func EndsIn(t models.Topic, now time.Time) string {
	if !t.EndTime.After(now) {
		return "Ended"
	}
	return "Ends " + humanize.RelTime(t.EndTime, now, "ago", "from now")
}
