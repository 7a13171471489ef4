package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Notifier sends alerts to a Telegram chat via the Bot API.
type Notifier struct {
	botToken   string
	chatID     string
	httpClient *http.Client
	enabled    bool
	baseURL    string // overridable for testing; defaults to Telegram API
}

// NewNotifier creates a Notifier. Notifications are enabled only when both
// botToken and chatID are non-empty.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken:   botToken,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		enabled:    botToken != "" && chatID != "",
	}
}

// Enabled reports whether the notifier is active.
func (n *Notifier) Enabled() bool { return n.enabled }

// Send posts a message to the configured Telegram chat.
func (n *Notifier) Send(ctx context.Context, msg string) error {
	if !n.enabled {
		return nil
	}

	endpoint := n.baseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	}
	vals := url.Values{
		"chat_id":    {n.chatID},
		"text":       {msg},
		"parse_mode": {"HTML"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.URL.RawQuery = vals.Encode()

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("notify: telegram %d: %s", resp.StatusCode, body.Description)
	}
	return nil
}

// NotifyOrderSubmitted sends an alert for a live order submission.
func (n *Notifier) NotifyOrderSubmitted(ctx context.Context, agent, market, side string, price, shares float64) error {
	msg := fmt.Sprintf(
		"<b>Order Submitted</b>\nAgent: <code>%s</code>\nMarket: <code>%s</code>\nSide: %s\nPrice: %.4f\nShares: %.2f",
		agent, market, side, price, shares,
	)
	return n.Send(ctx, msg)
}

// NotifyAgentPaused sends an alert when an agent is taken out of rotation.
func (n *Notifier) NotifyAgentPaused(ctx context.Context, agent, reason string) error {
	msg := fmt.Sprintf("<b>Agent Paused</b>\nAgent: <code>%s</code>\nReason: %s", agent, reason)
	return n.Send(ctx, msg)
}

// NotifyAgentResumed sends an alert when a paused agent returns to rotation.
func (n *Notifier) NotifyAgentResumed(ctx context.Context, agent string, score float64) error {
	msg := fmt.Sprintf("<b>Agent Resumed</b>\nAgent: <code>%s</code>\nScore: %.2f", agent, score)
	return n.Send(ctx, msg)
}

// NotifyRegimeChange sends an alert for a confirmed regime transition.
func (n *Notifier) NotifyRegimeChange(ctx context.Context, from, to string, confidence float64) error {
	msg := fmt.Sprintf(
		"<b>Regime Change</b>\nFrom: %s\nTo: %s\nConfidence: %.2f",
		from, to, confidence,
	)
	return n.Send(ctx, msg)
}

// NotifyPolicyUpdate sends an alert for a committed policy version.
func (n *Notifier) NotifyPolicyUpdate(ctx context.Context, version int, author, reason string) error {
	msg := fmt.Sprintf(
		"<b>Policy Updated</b>\nVersion: %d\nAuthor: <code>%s</code>\nReason: %s",
		version, author, reason,
	)
	return n.Send(ctx, msg)
}

// NotifyEmergencyStop sends an emergency stop alert.
func (n *Notifier) NotifyEmergencyStop(ctx context.Context, reason string) error {
	msg := fmt.Sprintf("<b>EMERGENCY STOP</b>\n%s\nNew intents blocked until operator review.", reason)
	return n.Send(ctx, msg)
}
