package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/telebot.v3"

	"predictionclub/internal/auth"
	"predictionclub/internal/gateway"
	"predictionclub/internal/logger"
	"predictionclub/internal/registry"
	"predictionclub/internal/store"
	"predictionclub/internal/suggest"
	"predictionclub/internal/views"
)

// commandTimeout bounds the backend calls made by one command
const commandTimeout = 30 * time.Second

// Bot serves the club over Telegram chat. Each Telegram user shares the
// session store the Mini App uses for the same account.
type Bot struct {
	tb        *telebot.Bot
	sessions  *registry.Registry
	suggester *suggest.Service
	webAppURL string
	now       func() time.Time
}

type reply struct {
	text   string
	markup *telebot.ReplyMarkup
}

type command func(ctx context.Context, s *store.Store, payload string) reply

// New connects to Telegram and registers every command
func New(token string, sessions *registry.Registry, suggester *suggest.Service, webAppURL string) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}

	tb, err := telebot.NewBot(telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		tb:        tb,
		sessions:  sessions,
		suggester: suggester,
		webAppURL: webAppURL,
		now:       time.Now,
	}
	b.register()
	return b, nil
}

// Telebot returns the underlying client, for broadcasting
func (b *Bot) Telebot() *telebot.Bot {
	return b.tb
}

// Start polls for updates until Stop is called
func (b *Bot) Start() {
	logger.Info("", "bot_started", "@"+b.tb.Me.Username)
	b.tb.Start()
}

// Stop ends polling
func (b *Bot) Stop() {
	b.tb.Stop()
}

func (b *Bot) register() {
	b.handle("start", b.cmdStart)
	b.handle("help", func(context.Context, *store.Store, string) reply {
		return reply{text: renderHelp()}
	})
	b.handle("feed", b.cmdFeed(false))
	b.handle("all", b.cmdFeed(true))
	b.handle("topic", b.cmdTopic)
	b.handle("predict", b.cmdPredict)
	b.handle("create", b.cmdCreate)
	b.handle("rewards", b.cmdRewards)
	b.handle("redeem", b.cmdRedeem)
	b.handle("profile", b.cmdProfile)
	b.handle("signin", b.cmdSignIn)
	b.handle("signup", b.cmdSignUp)
	b.handle("demo", b.cmdDemo)
	b.handle("logout", b.cmdLogout)
	b.handle("suggest", b.cmdSuggest)

	commands := make([]telebot.Command, 0, len(helpLines))
	for _, line := range helpLines {
		name, desc, _ := strings.Cut(line, " - ")
		name, _, _ = strings.Cut(strings.TrimPrefix(name, "/"), " ")
		commands = append(commands, telebot.Command{Text: name, Description: desc})
	}
	if err := b.tb.SetCommands(commands); err != nil {
		logger.Warn("", "bot_set_commands", err.Error())
	}
}

func (b *Bot) handle(name string, cmd command) {
	b.tb.Handle("/"+name, func(c telebot.Context) error {
		if c.Sender() == nil || c.Message() == nil {
			return nil
		}
		key := auth.TelegramKey(c.Sender().ID)
		logger.Debug(key, "command_"+name, "")

		s, err := b.sessions.Get(key)
		if err != nil {
			logger.Error(key, "command_"+name, err)
			return c.Send("Error opening your session. Please try again later.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		r := cmd(ctx, s, strings.TrimSpace(c.Message().Payload))
		return c.Send(r.text, &telebot.SendOptions{
			ParseMode:   telebot.ModeMarkdownV2,
			ReplyMarkup: r.markup,
		})
	})
}

func (b *Bot) cmdStart(_ context.Context, s *store.Store, _ string) reply {
	r := reply{text: renderWelcome(s.Snapshot())}
	if b.webAppURL != "" {
		markup := &telebot.ReplyMarkup{}
		markup.InlineKeyboard = [][]telebot.InlineButton{{{
			Text:   "🚀 Open Prediction Club",
			WebApp: &telebot.WebApp{URL: b.webAppURL},
		}}}
		r.markup = markup
	}
	return r
}

func (b *Bot) cmdFeed(expanded bool) command {
	return func(_ context.Context, s *store.Store, _ string) reply {
		return reply{text: renderFeed(views.Feed(s.Snapshot(), expanded), b.now())}
	}
}

func (b *Bot) cmdTopic(_ context.Context, s *store.Store, payload string) reply {
	if payload == "" {
		return usage("/topic <id>")
	}
	detail, ok := views.TopicDetail(s.Snapshot(), payload)
	if !ok {
		return reply{text: "❌ " + EscapeMarkdown(store.ErrTopicNotFound.Message)}
	}
	return reply{text: renderTopic(detail, b.now())}
}

func (b *Bot) cmdPredict(ctx context.Context, s *store.Store, payload string) reply {
	topicID, value, amount, err := parsePredict(payload)
	if err != nil {
		return reply{text: "❌ " + EscapeMarkdown(err.Error())}
	}
	err = s.PlaceWager(ctx, topicID, value, amount)
	return reply{text: renderOutcome(err, s.Snapshot())}
}

func (b *Bot) cmdCreate(ctx context.Context, s *store.Store, payload string) reply {
	draft, err := parseCreate(payload, b.now())
	if err != nil {
		return reply{text: "❌ " + EscapeMarkdown(err.Error())}
	}
	if problems := views.ValidateDraft(draft, b.now()); len(problems) > 0 {
		return reply{text: "❌ " + EscapeMarkdown(strings.Join(problems, " "))}
	}
	topic, err := s.CreateTopic(ctx, draft)
	text := renderOutcome(err, s.Snapshot())
	if err == nil {
		text += "\n" + EscapeMarkdown("Share it: /topic ") + code(topic.ID)
	}
	return reply{text: text}
}

func (b *Bot) cmdRewards(_ context.Context, s *store.Store, _ string) reply {
	st := s.Snapshot()
	return reply{text: renderRewards(views.Rewards(st), st)}
}

func (b *Bot) cmdRedeem(_ context.Context, s *store.Store, payload string) reply {
	if payload == "" {
		return usage("/redeem <id>")
	}
	err := s.RedeemReward(payload)
	return reply{text: renderOutcome(err, s.Snapshot())}
}

func (b *Bot) cmdProfile(_ context.Context, s *store.Store, _ string) reply {
	p, ok := views.Profile(s.Snapshot())
	if !ok {
		return reply{text: EscapeMarkdown("You are not signed in. Use /signin, /signup or /demo first.")}
	}
	return reply{text: renderProfile(p)}
}

func (b *Bot) cmdSignIn(ctx context.Context, s *store.Store, payload string) reply {
	email, password, ok := credentials(payload)
	if !ok {
		return usage("/signin <email> <password>")
	}
	return authReply(s.SignIn(ctx, email, password), s.Snapshot())
}

func (b *Bot) cmdSignUp(ctx context.Context, s *store.Store, payload string) reply {
	email, password, ok := credentials(payload)
	if !ok {
		return usage("/signup <email> <password>")
	}
	return authReply(s.SignUp(ctx, email, password), s.Snapshot())
}

func (b *Bot) cmdDemo(_ context.Context, s *store.Store, payload string) reply {
	if payload == "" {
		return usage("/demo <email>")
	}
	err := s.Login(payload)
	return reply{text: renderOutcome(err, s.Snapshot())}
}

func (b *Bot) cmdLogout(ctx context.Context, s *store.Store, _ string) reply {
	s.Logout(ctx)
	return reply{text: "👋 " + EscapeMarkdown("Signed out.")}
}

func (b *Bot) cmdSuggest(ctx context.Context, _ *store.Store, payload string) reply {
	if payload == "" {
		return usage("/suggest <idea>")
	}
	commentary, ok := b.suggester.Analyze(ctx, payload)
	if !ok {
		return reply{text: EscapeMarkdown("Topic suggestions are unavailable right now.")}
	}
	return reply{text: "🤖 " + EscapeMarkdown(commentary)}
}

// authReply greets the user once a session is established
func authReply(err error, st store.State) reply {
	if err != nil || st.User == nil {
		return reply{text: renderOutcome(err, st)}
	}
	return reply{text: fmt.Sprintf("✅ Signed in as %s\\. You have %s\\.",
		bold(st.User.Name), bold(formatPoints(st.User.Points)))}
}

func usage(form string) reply {
	return reply{text: EscapeMarkdown("Usage: ") + code(form)}
}

func credentials(payload string) (email, password string, ok bool) {
	fields := strings.Fields(payload)
	if len(fields) != 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}

// errorText picks the user-facing text of an action error
func errorText(err error) string {
	var verr *store.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	var aerr *gateway.AuthError
	if errors.As(err, &aerr) {
		return aerr.UserMessage()
	}
	return "Something went wrong. Please try again."
}
