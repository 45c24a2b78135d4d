package views

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictionclub/internal/models"
	"predictionclub/internal/store"
)

var now = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

func sampleState(points int64) store.State {
	st := store.State{
		Topics: []models.Topic{
			{ID: "t1", Title: "Snow Day", PoolSize: 15400, Status: models.TopicStatusActive, EndTime: now.Add(24 * time.Hour)},
			{ID: "t2", Title: "Homecoming", PoolSize: 28000, Status: models.TopicStatusActive},
			{ID: "t3", Title: "Cafeteria Pizza", Status: models.TopicStatusClosed},
			{ID: "t4", Title: "Fire Drill", Status: models.TopicStatusActive},
		},
		Rewards: []models.Reward{
			{ID: "r1", Name: "Starbucks $5 Card", Cost: 1000},
			{ID: "r2", Name: "Bulldog Hoodie", Cost: 5000},
		},
	}
	if points >= 0 {
		st.User = &models.User{ID: "u1", Name: "Alex", Points: points, JoinedAt: now.AddDate(0, -1, 0)}
		st.Session = store.SessionAuthenticated
	}
	return st
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		points    int64
		requested View
		want      View
		prompt    bool
	}{
		{name: "anonymous profile", points: -1, requested: ViewProfile, want: ViewHome, prompt: true},
		{name: "anonymous create", points: -1, requested: ViewCreate, want: ViewHome, prompt: true},
		{name: "anonymous rewards", points: -1, requested: ViewRewards, want: ViewRewards},
		{name: "signed in profile", points: 10, requested: ViewProfile, want: ViewProfile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, prompt := Resolve(sampleState(tt.points), tt.requested)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.prompt, prompt)
		})
	}
}

func TestFeed(t *testing.T) {
	st := sampleState(-1)

	collapsed := Feed(st, false)
	assert.Equal(t, "Active Markets", collapsed.Heading)
	assert.Len(t, collapsed.Topics, 3)
	assert.True(t, collapsed.HasMore)
	assert.Equal(t, 4, collapsed.Total)

	expanded := Feed(st, true)
	assert.Equal(t, "All Markets", expanded.Heading)
	assert.Len(t, expanded.Topics, 4)
	assert.False(t, expanded.HasMore)

	empty := Feed(store.State{}, false)
	assert.NotNil(t, empty.Topics)
	assert.False(t, empty.HasMore)
}

func TestTopicDetail(t *testing.T) {
	d, ok := TopicDetail(sampleState(580), "t1")
	require.True(t, ok)
	assert.True(t, d.CanPredict)
	assert.Equal(t, []string{"Yes", "No"}, d.Options)
	assert.Equal(t, Slider{Min: 10, Max: 580, Step: 10, Default: 50}, d.Slider)
	assert.Equal(t, int64(75), d.PotentialWin)
	assert.Equal(t, "15,400 In Pool", d.PoolLabel)

	d, ok = TopicDetail(sampleState(-1), "t1")
	require.True(t, ok)
	assert.False(t, d.CanPredict)
	assert.NotEmpty(t, d.Reason)

	d, _ = TopicDetail(sampleState(580), "t3")
	assert.False(t, d.CanPredict)

	d, _ = TopicDetail(sampleState(30), "t1")
	assert.Equal(t, int64(30), d.Slider.Default)

	_, ok = TopicDetail(sampleState(580), "missing")
	assert.False(t, ok)
}

func TestProfile(t *testing.T) {
	_, ok := Profile(sampleState(-1))
	assert.False(t, ok)

	st := sampleState(380)
	st.Predictions = []models.Prediction{
		{ID: "p1", UserID: "u1", TopicID: "t1", Status: models.PredictionWon},
		{ID: "p2", UserID: "u1", TopicID: "t2", Status: models.PredictionPending},
		{ID: "p3", UserID: "u1", TopicID: "gone", Status: models.PredictionWon},
	}
	st.Transactions = []models.Transaction{
		{Kind: models.TransactionInitial, Amount: 500},
		{Kind: models.TransactionPrediction, Amount: -100},
		{Kind: models.TransactionPrediction, Amount: -20},
	}

	p, ok := Profile(st)
	require.True(t, ok)
	assert.Equal(t, 2, p.Won)
	require.Len(t, p.Predictions, 3)
	assert.Equal(t, "Snow Day", p.Predictions[0].TopicTitle)
	assert.Equal(t, "Unknown topic", p.Predictions[2].TopicTitle)
	assert.Equal(t, []GraphPoint{{"0", -20}, {"1", -100}, {"2", 500}}, p.Graph)
	assert.Equal(t, "September 2026", p.MemberSince)
}

func TestRewardsAffordability(t *testing.T) {
	tests := []struct {
		name   string
		points int64
		want   []bool
	}{
		{name: "signed out", points: -1, want: []bool{false, false}},
		{name: "580 points", points: 580, want: []bool{false, false}},
		{name: "exactly 1000", points: 1000, want: []bool{true, false}},
		{name: "rich", points: 9000, want: []bool{true, true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cards := Rewards(sampleState(tt.points))
			var got []bool
			for _, c := range cards {
				got = append(got, c.CanAfford)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateDraft(t *testing.T) {
	assert.Empty(t, ValidateDraft(store.TopicDraft{Title: "t", Description: "d", EndTime: now.Add(time.Hour)}, now))
	assert.Len(t, ValidateDraft(store.TopicDraft{}, now), 3)
	assert.Equal(t, []string{"End time must be in the future."},
		ValidateDraft(store.TopicDraft{Title: "t", Description: "d", EndTime: now}, now))
	assert.Equal(t, []string{"Pick one of the listed categories."},
		ValidateDraft(store.TopicDraft{Title: "t", Description: "d", Category: "Gossip", EndTime: now.Add(time.Hour)}, now))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "1,250 PTS", FormatPoints(1250))
	assert.Equal(t, "Ended", EndsIn(models.Topic{EndTime: now}, now))
	assert.Contains(t, EndsIn(models.Topic{EndTime: now.Add(72 * time.Hour)}, now), "from now")
	assert.True(t, RequiresAuth(ViewCreate))
	assert.False(t, RequiresAuth(ViewHome))
	assert.True(t, NavBar(sampleState(5)).LoggedIn)
	assert.Equal(t, int64(0), NavBar(sampleState(-1)).Points)
}
