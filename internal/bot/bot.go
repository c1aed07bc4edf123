// Package bot is the Telegram front-end: each Telegram user gets a tipping
// session keyed by their user id.
package bot

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/tucnak/telebot.v2"

	"github.com/rovshanmuradov/tipstark/internal/tipping"
)

const stateTTL = 5 * time.Minute

const stateAwaitingTip = "awaiting_tip"

type userState struct {
	state     string
	timestamp time.Time
}

type Bot struct {
	telegramBot *telebot.Bot
	manager     *tipping.Manager
	logger      *zap.Logger
	connector   string

	stateMutex sync.RWMutex
	userStates map[int64]userState

	watchMutex sync.Mutex
	watching   map[int64]func()

	stopChan chan struct{}
}

// NewBot creates a long-polling bot. connector is used by /connect when
// the user names none.
func NewBot(token string, manager *tipping.Manager, connector string, logger *zap.Logger) (*Bot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b, err := telebot.NewBot(telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Bot{
		telegramBot: b,
		manager:     manager,
		logger:      logger.Named("bot"),
		connector:   connector,
		userStates:  make(map[int64]userState),
		watching:    make(map[int64]func()),
		stopChan:    make(chan struct{}),
	}, nil
}

// Start registers handlers and polls until Stop is called.
func (b *Bot) Start() {
	b.registerHandlers()
	b.logger.Info("The bot has been launched")

	go b.telegramBot.Start()

	<-b.stopChan
	b.telegramBot.Stop()

	b.watchMutex.Lock()
	for id, unsubscribe := range b.watching {
		unsubscribe()
		delete(b.watching, id)
	}
	b.watchMutex.Unlock()
	b.logger.Info("The bot has been stopped")
}

func (b *Bot) Stop() {
	close(b.stopChan)
}

func sessionKey(userID int64) string {
	return fmt.Sprintf("tg:%d", userID)
}

func (b *Bot) setState(userID int64, state string) {
	b.stateMutex.Lock()
	b.userStates[userID] = userState{state: state, timestamp: time.Now()}
	b.stateMutex.Unlock()
}

// takeState returns and clears the user's conversation state unless it
// has expired.
func (b *Bot) takeState(userID int64) string {
	b.stateMutex.Lock()
	defer b.stateMutex.Unlock()
	st, ok := b.userStates[userID]
	delete(b.userStates, userID)
	if !ok || time.Since(st.timestamp) > stateTTL {
		return ""
	}
	return st.state
}

// watch forwards the user's tip status changes to their chat.
func (b *Bot) watch(user *telebot.User) {
	b.watchMutex.Lock()
	defer b.watchMutex.Unlock()
	if _, ok := b.watching[user.ID]; ok {
		return
	}

	events, unsubscribe := b.manager.Hub().Subscribe(sessionKey(user.ID))
	b.watching[user.ID] = unsubscribe
	go func() {
		for ev := range events {
			if ev.Previous == "" {
				continue
			}
			b.sendMessage(user, formatTipEvent(ev))
		}
	}()
}

func (b *Bot) unwatch(userID int64) {
	b.watchMutex.Lock()
	unsubscribe, ok := b.watching[userID]
	delete(b.watching, userID)
	b.watchMutex.Unlock()
	if ok {
		unsubscribe()
	}
}

func (b *Bot) sendMessage(to *telebot.User, message string) {
	if _, err := b.telegramBot.Send(to, message); err != nil {
		b.logger.Error("Error sending message",
			zap.Int64("userID", to.ID),
			zap.Error(err),
		)
	}
}
