package models

import (
	"time"
)

// DefaultOdds is the payout multiplier applied to every wager
const DefaultOdds = 1.5

// DefaultTopicImage is shown for topics created without an image
const DefaultTopicImage = "https://images.unsplash.com/photo-1541534741688-6078c6bfb5c5?w=800&q=80"

// WelcomeBonus is the point grant every new account starts with
const WelcomeBonus int64 = 500

// DefaultRank is the rank label for users without a computed rank
const DefaultRank = "Novice"

// User represents the signed-in student
type User struct {
	ID       string    `json:"id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Avatar   string    `json:"avatar"`
	Points   int64     `json:"points"`
	Rank     string    `json:"rank"`
	JoinedAt time.Time `json:"joined_at"`
	// Demo is set for users fabricated locally without a backend session
	Demo bool `json:"demo,omitempty"`
}

// Category groups topics in the feed. The label is also the stored value.
type Category string

const (
	CategoryHot    Category = "Immediate Heat"
	CategorySports Category = "Varsity Glory"
	CategoryCampus Category = "Campus Life"
	CategoryCustom Category = "Student Voice"
)

// Categories lists every category in display order
var Categories = []Category{CategoryHot, CategorySports, CategoryCampus, CategoryCustom}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	switch c {
	case CategoryHot, CategorySports, CategoryCampus, CategoryCustom:
		return true
	}
	return false
}

// ParseCategory accepts either the label or a short name (hot, sports, campus, custom)
func ParseCategory(s string) (Category, bool) {
	switch s {
	case "hot", "HOT", "Hot":
		return CategoryHot, true
	case "sports", "SPORTS", "Sports":
		return CategorySports, true
	case "campus", "CAMPUS", "Campus":
		return CategoryCampus, true
	case "custom", "CUSTOM", "Custom":
		return CategoryCustom, true
	}
	c := Category(s)
	return c, c.Valid()
}

// TopicStatus is the lifecycle state of a topic
type TopicStatus string

const (
	TopicStatusActive  TopicStatus = "active"
	TopicStatusClosed  TopicStatus = "closed"
	TopicStatusSettled TopicStatus = "settled"
)

// Valid reports whether s is a known topic status
func (s TopicStatus) Valid() bool {
	switch s {
	case TopicStatusActive, TopicStatusClosed, TopicStatusSettled:
		return true
	}
	return false
}

// Topic represents a question students can wager on
type Topic struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Category     Category    `json:"category"`
	Participants int64       `json:"participants"`
	EndTime      time.Time   `json:"end_time"`
	PoolSize     int64       `json:"pool_size"`
	Image        string      `json:"image"`
	Status       TopicStatus `json:"status"`
	Odds         float64     `json:"odds"`
	CreatedBy    string      `json:"created_by,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// PredictionStatus is the settlement state of a prediction
type PredictionStatus string

const (
	PredictionPending PredictionStatus = "pending"
	PredictionWon     PredictionStatus = "won"
	PredictionLost    PredictionStatus = "lost"
)

// Valid reports whether s is a known prediction status
func (s PredictionStatus) Valid() bool {
	switch s {
	case PredictionPending, PredictionWon, PredictionLost:
		return true
	}
	return false
}

// PredictionStatusFromResult maps the backend is_correct tri-state
func PredictionStatusFromResult(isCorrect *bool) PredictionStatus {
	if isCorrect == nil {
		return PredictionPending
	}
	if *isCorrect {
		return PredictionWon
	}
	return PredictionLost
}

// Prediction represents a wager placed by a user on a topic
type Prediction struct {
	ID           string           `json:"id"`
	UserID       string           `json:"user_id"`
	TopicID      string           `json:"topic_id"`
	Value        string           `json:"value"`
	Wager        int64            `json:"wager"`
	PotentialWin int64            `json:"potential_win"`
	Status       PredictionStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
}

// TransactionKind classifies a ledger entry
type TransactionKind string

const (
	TransactionInitial      TransactionKind = "initial"
	TransactionPrediction   TransactionKind = "prediction"
	TransactionWin          TransactionKind = "win"
	TransactionCreateReward TransactionKind = "create_reward"
	TransactionRedeem       TransactionKind = "redeem"
)

// Valid reports whether k is a known transaction kind
func (k TransactionKind) Valid() bool {
	switch k {
	case TransactionInitial, TransactionPrediction, TransactionWin, TransactionCreateReward, TransactionRedeem:
		return true
	}
	return false
}

// Transaction represents a signed balance change. Entries are append-only.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Kind        TransactionKind `json:"kind"`
	Amount      int64           `json:"amount"` // negative for debits
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Reward is a catalog entry that can be bought with points
type Reward struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Cost        int64  `json:"cost" yaml:"cost"`
	Description string `json:"description" yaml:"description"`
	Image       string `json:"image" yaml:"image"`
	Remaining   int64  `json:"remaining" yaml:"remaining"`
}

// RedemptionStatus is the fulfilment state of a redemption
type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "pending"
	RedemptionFulfilled RedemptionStatus = "fulfilled"
)

// Valid reports whether s is a known redemption status
func (s RedemptionStatus) Valid() bool {
	switch s {
	case RedemptionPending, RedemptionFulfilled:
		return true
	}
	return false
}

// Redemption records a reward purchase
type Redemption struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	RewardID  string           `json:"reward_id"`
	Code      *string          `json:"code,omitempty"`
	Status    RedemptionStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

// NotificationKind is the tone of a toast
type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationError   NotificationKind = "error"
)

// Valid reports whether k is a known notification kind
func (k NotificationKind) Valid() bool {
	return k == NotificationSuccess || k == NotificationError
}

// Notification is a short-lived message shown to the user
type Notification struct {
	ID        string           `json:"id"`
	Message   string           `json:"message"`
	Kind      NotificationKind `json:"kind"`
	CreatedAt time.Time        `json:"created_at"`
}
