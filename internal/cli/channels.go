package cli

import (
	"context"
	"log/slog"

	"budgetledger/internal/config"
	applog "budgetledger/internal/log"
	"budgetledger/internal/notify"
	"budgetledger/internal/notify/email"
	"budgetledger/internal/notify/sheets"
	"budgetledger/internal/notify/webhook"
)

// DeliveryChannels builds the external alert channels enabled by cfg:
// email when SMTP_HOST is set, webhook when ALERT_WEBHOOK_URL is set and the
// Sheets journal when GOOGLE_SPREADSHEET_ID is set. A journal that cannot
// authenticate is skipped with an error log rather than stopping startup.
func DeliveryChannels(ctx context.Context, cfg *config.Config, logger *slog.Logger) []notify.Channel {
	var channels []notify.Channel

	if cfg.EmailEnabled() {
		channels = append(channels, email.New(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			Currency: cfg.CurrencySymbol,
		}))
	}

	if cfg.AlertWebhookURL != "" {
		channels = append(channels, webhook.New(webhook.Config{
			URL:        cfg.AlertWebhookURL,
			MaxRetries: cfg.WebhookMaxRetries,
			Timeout:    cfg.NotifyTimeout,
			Logger:     logger,
		}))
	}

	if cfg.GoogleSpreadsheetID != "" {
		client, err := sheets.NewClient(ctx, cfg.GoogleSpreadsheetID)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets journal, continuing without it",
				applog.FieldComponent, applog.ComponentSheets,
				applog.FieldError, err)
		} else {
			channels = append(channels, sheets.NewJournal(client, cfg.GoogleAlertsSheet))
		}
	}

	return channels
}
