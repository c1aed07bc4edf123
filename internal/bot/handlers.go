package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/tucnak/telebot.v2"

	"github.com/rovshanmuradov/tipstark/internal/domain"
)

const commandTimeout = 2 * time.Minute

func (b *Bot) registerHandlers() {
	b.telegramBot.Handle("/start", b.handleStart)
	b.telegramBot.Handle("/help", b.handleHelp)
	b.telegramBot.Handle("/connect", b.handleConnect)
	b.telegramBot.Handle("/disconnect", b.handleDisconnect)
	b.telegramBot.Handle("/balance", b.handleBalance)
	b.telegramBot.Handle("/creators", b.handleCreators)
	b.telegramBot.Handle("/tip", b.handleTip)
	b.telegramBot.Handle("/history", b.handleHistory)
	b.telegramBot.Handle("/stats", b.handleStats)
	b.telegramBot.Handle(telebot.OnText, b.handleText)
}

const helpText = `/start - Start working with the bot
/connect [connector] - Connect your wallet
/disconnect - Disconnect your wallet
/balance - Show your token balance
/creators [query] - Browse creators
/tip <address> <amount> [message] - Tip a creator
/history - Your recent tips
/stats - Platform statistics
/help - Command reference`

func (b *Bot) handleStart(m *telebot.Message) {
	b.manager.Open(sessionKey(m.Sender.ID))
	b.sendMessage(m.Sender, "Welcome to tipstark! Connect a wallet with /connect, then tip creators with /tip. Use /help for all commands.")
}

func (b *Bot) handleHelp(m *telebot.Message) {
	b.sendMessage(m.Sender, helpText)
}

func (b *Bot) handleConnect(m *telebot.Message) {
	connector := strings.TrimSpace(m.Payload)
	if connector == "" {
		connector = b.connector
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	s := b.manager.Open(sessionKey(m.Sender.ID))
	if err := s.Connect(ctx, connector); err != nil {
		b.logger.Warn("Wallet connection failed", zap.Int64("userID", m.Sender.ID), zap.Error(err))
		b.sendMessage(m.Sender, "Could not connect wallet: "+userError(err))
		return
	}
	b.watch(m.Sender)

	state := s.Wallet.State()
	b.sendMessage(m.Sender, "Wallet connected: "+state.Address+"\nBalance: "+state.Balance.String())
}

func (b *Bot) handleDisconnect(m *telebot.Message) {
	b.unwatch(m.Sender.ID)
	b.manager.Close(sessionKey(m.Sender.ID))
	b.sendMessage(m.Sender, "Wallet disconnected.")
}

func (b *Bot) handleBalance(m *telebot.Message) {
	s, err := b.manager.Get(sessionKey(m.Sender.ID))
	if err != nil || !s.Wallet.Connected() {
		b.sendMessage(m.Sender, "No wallet connected. Use /connect first.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := s.Wallet.RefreshBalance(ctx); err != nil {
		b.logger.Warn("Balance refresh failed", zap.Int64("userID", m.Sender.ID), zap.Error(err))
	}
	b.sendMessage(m.Sender, "Your balance: "+s.Wallet.State().Balance.String())
}

func (b *Bot) handleCreators(m *telebot.Message) {
	creators, err := b.manager.Directory().Search(m.Payload, "")
	if err != nil {
		b.sendMessage(m.Sender, userError(err))
		return
	}
	b.sendMessage(m.Sender, formatCreators(creators))
}

func (b *Bot) handleTip(m *telebot.Message) {
	if strings.TrimSpace(m.Payload) == "" {
		b.setState(m.Sender.ID, stateAwaitingTip)
		b.sendMessage(m.Sender, "Enter the creator address and amount separated by a space, optionally followed by a message (for example: 0x04a1...9f 2.5 great stream):")
		return
	}
	b.submitTip(m.Sender, m.Payload)
}

func (b *Bot) handleText(m *telebot.Message) {
	if b.takeState(m.Sender.ID) != stateAwaitingTip {
		return
	}
	b.submitTip(m.Sender, m.Text)
}

func (b *Bot) submitTip(user *telebot.User, input string) {
	recipient, amount, message, err := parseTipArgs(input)
	if err != nil {
		b.sendMessage(user, "Invalid format. "+err.Error())
		return
	}

	s, err := b.manager.Get(sessionKey(user.ID))
	if err != nil {
		b.sendMessage(user, "No wallet connected. Use /connect first.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	tip, err := s.Ledger.SubmitTip(ctx, recipient, amount, message)
	if err != nil {
		b.sendMessage(user, "Tip not sent: "+userError(err))
		return
	}
	b.sendMessage(user, "Tip sent! "+formatTip(*tip)+"\nYou will be notified when it is confirmed.")
}

func (b *Bot) handleHistory(m *telebot.Message) {
	s, err := b.manager.Get(sessionKey(m.Sender.ID))
	if err != nil {
		b.sendMessage(m.Sender, "No wallet connected. Use /connect first.")
		return
	}
	b.sendMessage(m.Sender, formatHistory(s.Ledger.Tips()))
}

func (b *Bot) handleStats(m *telebot.Message) {
	b.sendMessage(m.Sender, formatStats(b.manager.Stats(sessionKey(m.Sender.ID))))
}

// userError hides internal detail for errors the user cannot act on.
func userError(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrConnection):
		return err.Error()
	case errors.Is(err, domain.ErrSubmission):
		return "the transaction could not be submitted, please try again"
	default:
		return "something went wrong, please try again later"
	}
}
