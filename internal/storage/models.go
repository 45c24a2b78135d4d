package storage

import (
	"time"
)

// columnKind controls how a column is written and read back
type columnKind int

const (
	kindText columnKind = iota
	kindInt
	kindFloat
	kindBool // nullable INTEGER 0/1
	kindTime // TEXT, RFC3339 in UTC
)

type column struct {
	name string
	kind columnKind
}

// table describes a collection exposed through Query/Insert
type table struct {
	name     string
	key      string
	columns  []column
	writable bool
}

func (t table) column(name string) (column, bool) {
	for _, c := range t.columns {
		if c.name == name {
			return c, true
		}
	}
	return column{}, false
}

func (t table) columnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.name
	}
	return names
}

var tables = map[string]table{
	"user_profiles": {
		name: "user_profiles",
		key:  "id",
		columns: []column{
			{"id", kindText},
			{"name", kindText},
			{"avatar_url", kindText},
			{"created_at", kindTime},
		},
		writable: true,
	},
	"user_points": {
		name: "user_points",
		key:  "user_id",
		columns: []column{
			{"user_id", kindText},
			{"current_points", kindInt},
		},
	},
	"topics": {
		name: "topics",
		key:  "id",
		columns: []column{
			{"id", kindText},
			{"title", kindText},
			{"description", kindText},
			{"category", kindText},
			{"end_time", kindTime},
			{"pool_size", kindInt},
			{"participant_count", kindInt},
			{"image_url", kindText},
			{"status", kindText},
			{"odds", kindFloat},
			{"created_by", kindText},
			{"created_at", kindTime},
		},
		writable: true,
	},
	"predictions": {
		name: "predictions",
		key:  "id",
		columns: []column{
			{"id", kindText},
			{"user_id", kindText},
			{"topic_id", kindText},
			{"prediction_value", kindText},
			{"wager", kindInt},
			{"created_at", kindTime},
			{"is_correct", kindBool},
		},
		writable: true,
	},
}

// SeedTopic is a sample topic loaded by Seed
type SeedTopic struct {
	ID           string
	Title        string
	Description  string
	Category     string
	Participants int64
	EndsIn       time.Duration
	PoolSize     int64
	Image        string
	Odds         float64
	CreatedBy    string
}

// SampleTopics are the launch topics of the club
var SampleTopics = []SeedTopic{
	{
		ID:           "t1",
		Title:        "The Great Snowstorm",
		Description:  "Will WCHS declare a snow day for tomorrow (Friday)? Based on current NOAA patterns.",
		Category:     "Immediate Heat",
		Participants: 1240,
		EndsIn:       24 * time.Hour,
		PoolSize:     45000,
		Image:        "https://picsum.photos/800/600?grayscale",
		Odds:         2.1,
		CreatedBy:    "admin",
	},
	{
		ID:           "t2",
		Title:        "Bulldogs vs. Titans",
		Description:  "Varsity Basketball: Will the Bulldogs win by more than 10 points tonight?",
		Category:     "Varsity Glory",
		Participants: 856,
		EndsIn:       12000 * time.Second,
		PoolSize:     28000,
		Image:        "https://picsum.photos/800/601?grayscale",
		Odds:         1.8,
		CreatedBy:    "admin",
	},
	{
		ID:           "t3",
		Title:        "Spicy Chicken Shortage",
		Description:  "Will the cafeteria run out of Spicy Chicken Sandwiches before 12:30 PM?",
		Category:     "Campus Life",
		Participants: 342,
		EndsIn:       40000 * time.Second,
		PoolSize:     12000,
		Image:        "https://picsum.photos/800/602?grayscale",
		Odds:         3.5,
		CreatedBy:    "u2",
	},
	{
		ID:           "t4",
		Title:        "Spring Musical Lead",
		Description:  "Who will be cast as the lead in the upcoming Spring production?",
		Category:     "Student Voice",
		Participants: 512,
		EndsIn:       600000 * time.Second,
		PoolSize:     15500,
		Image:        "https://picsum.photos/800/603?grayscale",
		Odds:         4.0,
		CreatedBy:    "u3",
	},
}
