package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"spot-hedge-bot/internal/config"

	"go.uber.org/zap"
)

const (
	telegramBaseURL = "https://api.telegram.org"
	queueSize       = 32
)

type Telegram struct {
	enabled  bool
	token    string
	chatID   string
	baseURL  string
	client   *http.Client
	log      *zap.Logger
	cooldown time.Duration
	now      func() time.Time

	queue    chan string
	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewTelegram(cfg config.TelegramConfig, log *zap.Logger) *Telegram {
	return newTelegram(cfg, log, telegramBaseURL, &http.Client{Timeout: 10 * time.Second})
}

func newTelegram(cfg config.TelegramConfig, log *zap.Logger, baseURL string, client *http.Client) *Telegram {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Telegram{
		enabled:  cfg.Enabled,
		token:    strings.TrimSpace(cfg.Token),
		chatID:   strings.TrimSpace(cfg.ChatID),
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		log:      log,
		cooldown: cfg.Cooldown,
		now:      time.Now,
		queue:    make(chan string, queueSize),
		lastSent: make(map[string]time.Time),
	}
}

func (t *Telegram) Enabled() bool {
	return t != nil && t.enabled
}

// Start drains queued alerts until ctx is done.
func (t *Telegram) Start(ctx context.Context) {
	if !t.Enabled() {
		return
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-t.queue:
				if err := t.Send(ctx, msg); err != nil {
					t.log.Warn("telegram alert failed", zap.Error(err))
				}
			}
		}
	}()
}

// Notify queues message without blocking. Messages sharing key are sent at
// most once per cooldown; a full queue drops the message.
func (t *Telegram) Notify(key, message string) bool {
	if !t.Enabled() {
		return false
	}
	if key != "" && t.cooldown > 0 {
		now := t.now()
		t.mu.Lock()
		last, seen := t.lastSent[key]
		if seen && now.Sub(last) < t.cooldown {
			t.mu.Unlock()
			return false
		}
		t.lastSent[key] = now
		t.mu.Unlock()
	}
	select {
	case t.queue <- message:
		return true
	default:
		t.log.Warn("telegram alert queue full", zap.String("key", key))
		return false
	}
}

func (t *Telegram) Send(ctx context.Context, message string) error {
	if !t.enabled {
		return nil
	}
	if t.token == "" || t.chatID == "" {
		return errors.New("telegram token and chat_id are required")
	}
	if strings.TrimSpace(message) == "" {
		return errors.New("telegram message is empty")
	}
	body, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    message,
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("telegram send failed: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		desc := strings.TrimSpace(result.Description)
		if desc == "" {
			desc = "unknown telegram error"
		}
		return fmt.Errorf("telegram send failed: %s", desc)
	}
	return nil
}
