package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"predictionclub/internal/models"
	"predictionclub/internal/store"
	"predictionclub/internal/views"
)

// EscapeMarkdown escapes special characters for Telegram MarkdownV2
func EscapeMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune("\\_*[]()~`>#+-=|{}.!", r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func bold(s string) string {
	return "*" + EscapeMarkdown(s) + "*"
}

func code(s string) string {
	return "`" + strings.NewReplacer("\\", "\\\\", "`", "\\`").Replace(s) + "`"
}

// formatPoints formats a balance as points
func formatPoints(points int64) string {
	return views.FormatPoints(points)
}

// truncateString shortens s to maxLen runes
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

var helpLines = []string{
	"/feed - Active markets",
	"/all - Every market",
	"/topic <id> - Market details",
	"/predict <id> <Yes|No> <amount> - Place a prediction",
	"/create <title> | <description> | <category> | <hours> - Create a market",
	"/rewards - Reward store",
	"/redeem <id> - Redeem a reward",
	"/profile - Your points and history",
	"/signin <email> <password> - Sign in",
	"/signup <email> <password> - Create an account",
	"/demo <email> - Try it without an account",
	"/logout - Sign out",
	"/suggest <idea> - Check a topic idea",
}

func renderHelp() string {
	return "📚 " + bold("Available Commands") + "\n\n" + EscapeMarkdown(strings.Join(helpLines, "\n"))
}

func renderWelcome(st store.State) string {
	nav := views.NavBar(st)
	if !nav.LoggedIn {
		return "Welcome to the Prediction Club\\! 🎉\n\n" +
			EscapeMarkdown("Predict campus events, climb the ranks and redeem rewards. Use /signup or /demo to get started, or /help for every command.")
	}
	return fmt.Sprintf("Welcome back, %s\\! 🎉\n\nYou have %s\\.\n\n%s",
		EscapeMarkdown(nav.Name), bold(formatPoints(nav.Points)), EscapeMarkdown("Use /feed to see what's hot."))
}

func renderFeed(feed views.FeedView, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s \\(%d\\)\n\n", bold(feed.Heading), feed.Total)
	if len(feed.Topics) == 0 {
		b.WriteString(EscapeMarkdown("No markets at the moment. Use /create to start one!"))
		return b.String()
	}
	for i, t := range feed.Topics {
		fmt.Fprintf(&b, "%s %s\n", bold(strconv.Itoa(i+1)+"."), EscapeMarkdown(truncateString(t.Title, 50)))
		fmt.Fprintf(&b, "   %s %s\n", EscapeMarkdown(string(t.Category)), code(t.ID))
		fmt.Fprintf(&b, "   💰 %s \\| 👥 %d \\| ⏰ %s\n\n",
			EscapeMarkdown(formatPoints(t.PoolSize)), t.Participants, EscapeMarkdown(views.EndsIn(t, now)))
	}
	if feed.HasMore {
		b.WriteString(EscapeMarkdown("Use /all to see every market."))
	} else {
		b.WriteString(EscapeMarkdown("Use /topic <id> for details."))
	}
	return b.String()
}

func renderTopic(d views.TopicDetailView, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n\n", bold(d.Topic.Title), EscapeMarkdown(string(d.Topic.Category)))
	if d.Topic.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", EscapeMarkdown(d.Topic.Description))
	}
	fmt.Fprintf(&b, "💰 %s\n👥 %d participants\n⏰ %s\n",
		EscapeMarkdown(d.PoolLabel), d.Topic.Participants, EscapeMarkdown(views.EndsIn(d.Topic, now)))
	fmt.Fprintf(&b, "🎲 Odds %s\n\n", EscapeMarkdown(strconv.FormatFloat(d.Topic.Odds, 'f', 1, 64)+"x"))

	if !d.CanPredict {
		b.WriteString(EscapeMarkdown(d.Reason))
		return b.String()
	}
	example := fmt.Sprintf("/predict %s %s %d", d.Topic.ID, d.Options[0], d.Slider.Default)
	fmt.Fprintf(&b, "%s\n%s",
		EscapeMarkdown(fmt.Sprintf("Wager %d to %d points in steps of %d. %d points could win %d.",
			d.Slider.Min, d.Slider.Max, d.Slider.Step, d.Slider.Default, d.PotentialWin)),
		code(example))
	return b.String()
}

func predictionStatusEmoji(s models.PredictionStatus) string {
	switch s {
	case models.PredictionWon:
		return "✅"
	case models.PredictionLost:
		return "❌"
	default:
		return "⏳"
	}
}

func renderProfile(p views.ProfileView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👤 %s\n\n", bold(p.User.Name))
	fmt.Fprintf(&b, "%s\n", EscapeMarkdown(fmt.Sprintf("Balance: %s", formatPoints(p.User.Points))))
	fmt.Fprintf(&b, "%s\n", EscapeMarkdown("Rank: "+p.User.Rank))
	fmt.Fprintf(&b, "%s\n", EscapeMarkdown(fmt.Sprintf("Predictions won: %d", p.Won)))
	fmt.Fprintf(&b, "%s\n", EscapeMarkdown("Member since: "+p.MemberSince))

	b.WriteString("\n🎲 " + bold("Predictions") + "\n")
	if len(p.Predictions) == 0 {
		b.WriteString(EscapeMarkdown("No predictions yet. Use /feed to find a market!") + "\n")
	}
	const maxRows = 10
	for i, pr := range p.Predictions {
		if i == maxRows {
			b.WriteString(EscapeMarkdown(fmt.Sprintf("...and %d more", len(p.Predictions)-maxRows)) + "\n")
			break
		}
		fmt.Fprintf(&b, "%s %s\n", predictionStatusEmoji(pr.Status), EscapeMarkdown(fmt.Sprintf("%s: %s %d (wins %d)",
			truncateString(pr.TopicTitle, 40), pr.Value, pr.Wager, pr.PotentialWin)))
	}

	b.WriteString("\n🧾 " + bold("Transactions") + "\n")
	if len(p.Transactions) == 0 {
		b.WriteString(EscapeMarkdown("No transactions yet."))
	}
	for i, t := range p.Transactions {
		if i == maxRows {
			break
		}
		sign := ""
		if t.Amount > 0 {
			sign = "+"
		}
		fmt.Fprintf(&b, "%s\n", EscapeMarkdown(fmt.Sprintf("%s%d  %s", sign, t.Amount, t.Description)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderRewards(cards []views.RewardCard, st store.State) string {
	var b strings.Builder
	b.WriteString("🎁 " + bold("Rewards") + "\n\n")
	for _, c := range cards {
		mark := "🔒"
		if c.CanAfford {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%s %s %s\n   %s\n\n", mark, bold(c.Name), code(c.ID),
			EscapeMarkdown(fmt.Sprintf("%s · %d left", formatPoints(c.Cost), c.Remaining)))
	}
	if st.User == nil {
		b.WriteString(EscapeMarkdown("Sign in to redeem rewards."))
	} else {
		b.WriteString(EscapeMarkdown(fmt.Sprintf("You have %s. Use /redeem <id>.", formatPoints(st.User.Points))))
	}
	return b.String()
}

// renderOutcome is the reply to an action: the error, or the newest notification
func renderOutcome(err error, st store.State) string {
	var last *models.Notification
	if n := len(st.Notifications); n > 0 {
		last = &st.Notifications[n-1]
	}
	if err != nil {
		if last != nil && last.Kind == models.NotificationError {
			return "❌ " + EscapeMarkdown(last.Message)
		}
		return "❌ " + EscapeMarkdown(errorText(err))
	}
	if last == nil {
		return "✅ " + EscapeMarkdown("Done.")
	}
	if last.Kind == models.NotificationError {
		return "❌ " + EscapeMarkdown(last.Message)
	}
	return "✅ " + EscapeMarkdown(last.Message)
}

// parsePredict reads "<id> <Yes|No> <amount>"
func parsePredict(payload string) (topicID, value string, amount int64, err error) {
	fields := strings.Fields(payload)
	if len(fields) != 3 {
		return "", "", 0, fmt.Errorf("usage: /predict <id> <Yes|No> <amount>")
	}
	switch strings.ToLower(fields[1]) {
	case "yes":
		value = "Yes"
	case "no":
		value = "No"
	default:
		return "", "", 0, fmt.Errorf("pick Yes or No")
	}
	amount, err = strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return "", "", 0, fmt.Errorf("amount must be a whole number of points")
	}
	return fields[0], value, amount, nil
}

// parseCreate reads "<title> | <description> | <category> | <hours>"
func parseCreate(payload string, now time.Time) (store.TopicDraft, error) {
	parts := strings.Split(payload, "|")
	if len(parts) != 4 {
		return store.TopicDraft{}, fmt.Errorf("usage: /create <title> | <description> | <category> | <hours>")
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	category, ok := models.ParseCategory(parts[2])
	if !ok {
		return store.TopicDraft{}, fmt.Errorf("category must be one of hot, sports, campus or custom")
	}
	hours, err := strconv.Atoi(parts[3])
	if err != nil || hours <= 0 {
		return store.TopicDraft{}, fmt.Errorf("hours must be a positive whole number")
	}
	return store.TopicDraft{
		Title:       parts[0],
		Description: parts[1],
		Category:    category,
		EndTime:     now.Add(time.Duration(hours) * time.Hour),
	}, nil
}
