package service

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/telebot.v3"

	"predictionclub/internal/bot"
	"predictionclub/internal/logger"
	"predictionclub/internal/models"
	"predictionclub/internal/store"
)

// Sender is the part of *telebot.Bot the broadcaster needs
type Sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Broadcaster announces new topics on the public news channel
type Broadcaster struct {
	sender    Sender
	mu        sync.Mutex
	channelID string
	wg        sync.WaitGroup
}

// NewBroadcaster creates a broadcaster. An empty channelID disables publishing.
func NewBroadcaster(sender Sender, channelID string) *Broadcaster {
	return &Broadcaster{
		sender:    sender,
		channelID: strings.TrimSpace(channelID),
	}
}

// SetSender attaches the Telegram client once it exists
func (b *Broadcaster) SetSender(sender Sender) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sender = sender
}

// Enabled reports whether a channel and a client are configured
func (b *Broadcaster) Enabled() bool {
	if b == nil || b.channelID == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sender != nil
}

// Listener returns a topic listener that publishes in the background, so
// creating a topic never waits on Telegram
func (b *Broadcaster) Listener() store.TopicListener {
	return func(topic models.Topic, creator models.User) {
		if !b.Enabled() {
			return
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.PublishNewTopic(topic, creator)
		}()
	}
}

// Wait blocks until background publishes are done
func (b *Broadcaster) Wait() {
	b.wg.Wait()
}

// PublishNewTopic broadcasts a new topic to the public channel
func (b *Broadcaster) PublishNewTopic(topic models.Topic, creator models.User) {
	if !b.Enabled() {
		logger.Debug(creator.ID, "broadcast_skipped", "CHANNEL_ID not configured")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	_, err := b.sender.Send(b.getChannelRecipient(), formatNewTopic(topic, creator), &telebot.SendOptions{
		ParseMode: telebot.ModeMarkdownV2,
	})
	if err != nil {
		logger.Debug(creator.ID, "broadcast_error", fmt.Sprintf("channel=%s error=%v", b.channelID, err))
		return
	}
	logger.Debug(creator.ID, "broadcast_new_topic", fmt.Sprintf("topic_id=%s channel=%s", topic.ID, b.channelID))
}

func formatNewTopic(topic models.Topic, creator models.User) string {
	name := creator.Name
	if name == "" {
		name = "A student"
	}
	return fmt.Sprintf("🆕 *New Topic*\n\n*%s*\n%s\n\n🏷 %s\n👤 Creator: %s\n⏰ Ends: %s\n\n🎯 Place your predictions\\!",
		bot.EscapeMarkdown(truncateString(topic.Title, 80)),
		bot.EscapeMarkdown(truncateString(topic.Description, 200)),
		bot.EscapeMarkdown(string(topic.Category)),
		bot.EscapeMarkdown(name),
		bot.EscapeMarkdown(topic.EndTime.UTC().Format("2006-01-02 15:04")+" UTC"))
}

// getChannelRecipient returns the appropriate recipient for the configured channel
func (b *Broadcaster) getChannelRecipient() telebot.Recipient {
	if strings.HasPrefix(b.channelID, "@") {
		return &telebot.Chat{Username: b.channelID}
	}
	return &telebot.Chat{ID: parseChannelID(b.channelID)}
}

// parseChannelID parses a channel ID string (supports numeric IDs)
func parseChannelID(channelID string) int64 {
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// truncateString truncates a string to maxLen and adds ellipsis if needed
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return strings.TrimSpace(string(runes[:maxLen-3])) + "..."
}
