package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notification carries an alert to a human-facing channel.
type Notification struct {
	Pair         string
	ObservedAt   time.Time
	SpotRate     decimal.Decimal
	AverageRate  decimal.Decimal
	ChangePct    decimal.Decimal
	ThresholdPct decimal.Decimal
	WindowSize   int
}

// NewNotification converts an alert into percentage-based notification fields.
func NewNotification(a Alert, threshold float64, windowSize int) Notification {
	hundred := decimal.NewFromInt(100)
	return Notification{
		Pair:         a.Rate.CurrencyPair,
		ObservedAt:   a.Rate.Time(),
		SpotRate:     decimal.NewFromFloat(a.Rate.Rate),
		AverageRate:  decimal.NewFromFloat(a.AverageRate),
		ChangePct:    decimal.NewFromFloat(a.PctChange).Mul(hundred),
		ThresholdPct: decimal.NewFromFloat(threshold).Mul(hundred),
		WindowSize:   windowSize,
	}
}

// Notifier pushes notifications to an external channel.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier sends messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("pair", note.Pair).
		Time("observed_at", note.ObservedAt).
		Msg("alert sent (telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Spot Rate Alert]\n")
	builder.WriteString(fmt.Sprintf("Pair: %s\n", note.Pair))
	builder.WriteString(fmt.Sprintf("Observed: %s UTC\n", note.ObservedAt.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Spot: %s\n", note.SpotRate.StringFixed(6)))
	builder.WriteString(fmt.Sprintf("Average: %s", note.AverageRate.StringFixed(6)))
	if note.WindowSize > 0 {
		builder.WriteString(fmt.Sprintf(" (last %d samples)", note.WindowSize))
	}
	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf("Change: %s%% (threshold %s%%)\n", note.ChangePct.StringFixed(2), note.ThresholdPct.StringFixed(2)))
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
