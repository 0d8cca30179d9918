package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chainsentry/chainsentry/store"
)

// Telegram delivers alerts through the bot sendMessage API to the chat
// bound to the user.
type Telegram struct {
	token  string
	store  *store.Store
	base   string
	client *http.Client
}

// NewTelegram builds the telegram sink.
func NewTelegram(token string, st *store.Store) *Telegram {
	return &Telegram{
		token:  token,
		store:  st,
		base:   "https://api.telegram.org",
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the text to the user's bound chat. Users without a chat
// binding are skipped silently; they simply have not linked the bot yet.
func (t *Telegram) Send(ctx context.Context, userID, text string) error {
	chatID, ok := t.store.ChatID(userID)
	if !ok {
		return nil
	}
	body, err := json.Marshal(map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.base, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}
	return nil
}
