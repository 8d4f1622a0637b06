package services

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	tele "gopkg.in/telebot.v3"
)

// BroadcastResult carries per-destination delivery counts for one message
type BroadcastResult struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// chatSender is the part of the telebot API the broadcaster uses
type chatSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// TelegramBroadcaster fans one message out to every registered chat. Each
// delivery is attempted independently; one chat's failure never prevents
// attempts on the others.
type TelegramBroadcaster struct {
	mu      sync.RWMutex
	bot     chatSender
	chatIDs map[int64]struct{}
}

// NewTelegramBroadcaster connects a Telegram bot for the given token and
// registers the initial chat ids.
func NewTelegramBroadcaster(token string, chatIDs []int64) (*TelegramBroadcaster, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	log.Printf("Telegram bot initialized: %s", bot.Me.Username)

	b := &TelegramBroadcaster{bot: bot, chatIDs: make(map[int64]struct{})}
	for _, id := range chatIDs {
		b.chatIDs[id] = struct{}{}
	}
	return b, nil
}

// Broadcast sends an HTML message to every registered chat and returns the
// aggregate delivery counts.
func (b *TelegramBroadcaster) Broadcast(message string) BroadcastResult {
	chats := b.Chats()
	if len(chats) == 0 {
		log.Println("No Telegram chats registered for broadcasting")
		return BroadcastResult{}
	}

	var result BroadcastResult
	for _, id := range chats {
		if _, err := b.bot.Send(tele.ChatID(id), message, tele.ModeHTML); err != nil {
			log.Printf("Failed to send message to chat %d: %v", id, err)
			result.Failed++
			continue
		}
		result.Success++
	}

	log.Printf("Broadcast complete: %d successful, %d failed", result.Success, result.Failed)
	return result
}

// RegisterChat adds a chat id to the broadcast list
func (b *TelegramBroadcaster) RegisterChat(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chatIDs[id] = struct{}{}
	log.Printf("Chat %d registered for broadcasts", id)
}

// UnregisterChat removes a chat id from the broadcast list
func (b *TelegramBroadcaster) UnregisterChat(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.chatIDs, id)
	log.Printf("Chat %d unregistered from broadcasts", id)
}

// Chats returns the registered chat ids in stable order
func (b *TelegramBroadcaster) Chats() []int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]int64, 0, len(b.chatIDs))
	for id := range b.chatIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
