package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	xproxy "golang.org/x/net/proxy"

	"domain-renewer/internal/config"
	"domain-renewer/internal/models"
)

const telegramAPIURL = "https://api.telegram.org"

// Notifier interface for different notification channels
type Notifier interface {
	Send(result *models.RunResult, message string) error
}

// NotifyService fans a run report out to all configured channels. Delivery
// is best-effort: a channel failure is logged by the caller, never fatal.
type NotifyService struct {
	notifiers []Notifier
}

// NewNotifyService creates a new notification service. Channels without
// configuration are simply absent; sending with none configured is a no-op.
func NewNotifyService(cfg *config.NotificationsConfig, proxyURL string) *NotifyService {
	service := &NotifyService{
		notifiers: make([]Notifier, 0),
	}

	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		service.notifiers = append(service.notifiers, NewTelegramNotifier(&cfg.Telegram, proxyURL))
	}

	if cfg.Webhook.Enabled && cfg.Webhook.URL != "" {
		service.notifiers = append(service.notifiers, NewWebhookNotifier(&cfg.Webhook))
	}

	return service
}

// SendReport sends the run report through all configured channels.
func (s *NotifyService) SendReport(result *models.RunResult) error {
	if len(s.notifiers) == 0 {
		return nil
	}

	message := FormatReport(result)

	var lastErr error
	successCount := 0
	for _, notifier := range s.notifiers {
		if err := notifier.Send(result, message); err != nil {
			fmt.Printf("[ERROR] %T notification failed: %v\n", notifier, err)
			lastErr = err
			continue
		}
		successCount++
	}

	if successCount > 0 {
		// At least one channel got through.
		return nil
	}
	return lastErr
}

// FormatReport renders the run summary message, following the shape the
// deployment's operators are used to reading.
func FormatReport(result *models.RunResult) string {
	when := result.StartedAt.Format("2006-01-02 15:04:05")

	if !result.OK() {
		return fmt.Sprintf("❌ *Domain renewal run failed*\nTime: %s\nAttempt: %d\nError: %s\nPlease check manually.",
			when, result.Attempt, truncate(result.FatalErr, 200))
	}

	renewed := result.Count(models.OutcomeRenewed)
	skipped := result.Count(models.OutcomeSkipped)
	failed := result.Count(models.OutcomeFailed)

	var b strings.Builder
	if failed > 0 {
		b.WriteString("⚠️ *Domain renewal report*\n")
	} else {
		b.WriteString("✅ *Domain renewal report*\n")
	}
	fmt.Fprintf(&b, "Time: %s\nAttempt: %d\nRenewed: %d\nSkipped: %d\nFailed: %d",
		when, result.Attempt, renewed, skipped, failed)

	if names := result.Domains(models.OutcomeRenewed); len(names) > 0 {
		b.WriteString("\n\nRenewed:")
		for i, name := range names {
			if i == 5 {
				fmt.Fprintf(&b, "\n… and %d more", len(names)-5)
				break
			}
			fmt.Fprintf(&b, "\n• %s", name)
		}
	}

	if lastErr := result.LastError(); failed > 0 && lastErr != "" {
		fmt.Fprintf(&b, "\n\nLast error: %s", truncate(lastErr, 200))
	}

	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// TelegramNotifier sends Telegram notifications
type TelegramNotifier struct {
	config *config.TelegramConfig
	client *http.Client
}

// NewTelegramNotifier creates a new Telegram notifier. The outbound proxy,
// when configured, applies here too: deployments that need a proxy for the
// portal usually need one for Telegram as well.
func NewTelegramNotifier(cfg *config.TelegramConfig, proxyURL string) *TelegramNotifier {
	client := &http.Client{Timeout: 20 * time.Second}

	if proxyURL != "" {
		if transport, err := proxyTransport(proxyURL); err != nil {
			fmt.Printf("[TELEGRAM] Failed to configure proxy: %v\n", err)
		} else {
			client.Transport = transport
		}
	}

	return &TelegramNotifier{config: cfg, client: client}
}

// Send sends the rendered run message to the configured chat.
func (t *TelegramNotifier) Send(_ *models.RunResult, message string) error {
	base := t.config.APIURL
	if base == "" {
		base = telegramAPIURL
	}
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(base, "/"), t.config.BotToken)

	payload := map[string]interface{}{
		"chat_id":    t.config.ChatID,
		"text":       message,
		"parse_mode": "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := t.client.Post(apiURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// WebhookNotifier sends webhook notifications
type WebhookNotifier struct {
	config *config.WebhookConfig
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(cfg *config.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{config: cfg}
}

// Send posts the structured run result to the configured endpoint.
func (w *WebhookNotifier) Send(result *models.RunResult, message string) error {
	payload := map[string]interface{}{
		"message":    message,
		"started_at": result.StartedAt.Format(time.RFC3339),
		"attempt":    result.Attempt,
		"renewed":    result.Count(models.OutcomeRenewed),
		"skipped":    result.Count(models.OutcomeSkipped),
		"failed":     result.Count(models.OutcomeFailed),
		"outcomes":   result.Outcomes,
		"fatal":      result.FatalErr,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := http.Post(w.config.URL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// proxyTransport builds an HTTP transport routed through an http:// or
// socks5:// proxy endpoint.
func proxyTransport(proxyURL string) (*http.Transport, error) {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	transport := &http.Transport{}
	switch u.Scheme {
	case "socks5", "socks5h":
		dialer, err := xproxy.FromURL(u, xproxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 proxy: %w", err)
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %s", u.Scheme)
	}

	return transport, nil
}
