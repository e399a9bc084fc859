// Package sheets journals budget alerts as rows of a Google Sheets tab.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"budgetledger/internal/core"
)

// RowAppender writes one row at the end of a sheet.
type RowAppender interface {
	AppendRow(ctx context.Context, sheet string, row []any) (string, error)
}

// Journal appends one row per alert:
// raised at | kind | owner id | owner name | category | limit | spent | message
type Journal struct {
	appender RowAppender
	sheet    string
}

func NewJournal(appender RowAppender, sheet string) *Journal {
	if sheet == "" {
		sheet = "Alerts"
	}
	return &Journal{appender: appender, sheet: sheet}
}

func (j *Journal) Name() string { return "sheets" }

func (j *Journal) Deliver(ctx context.Context, alert core.Alert) error {
	ref, err := j.appender.AppendRow(ctx, j.sheet, Row(alert))
	if err != nil {
		return fmt.Errorf("append alert row: %w", err)
	}
	slog.DebugContext(ctx, "Alert journaled",
		"owner_id", alert.OwnerID,
		"alert_kind", alert.Kind,
		"range", ref)
	return nil
}

// Row lays out an alert as sheet cells.
func Row(alert core.Alert) []any {
	return []any{
		alert.RaisedAt.UTC().Format(time.RFC3339),
		string(alert.Kind),
		alert.OwnerID,
		alert.OwnerName,
		alert.Category,
		alert.Limit.StringFixed(2),
		alert.Spent.StringFixed(2),
		alert.Body,
	}
}

// Client appends rows through the Sheets API.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
}

var _ RowAppender = (*Client)(nil)

// NewClient creates a Sheets client authenticated with service account
// credentials from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewClient(ctx context.Context, spreadsheetID string) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	creds, err := serviceAccountCredentials()
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", spreadsheetID)
	return &Client{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func serviceAccountCredentials() ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); inline != "" {
		return []byte(inline), nil
	}
	path := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

func (c *Client) AppendRow(ctx context.Context, sheet string, row []any) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:H", sheet)
	vr := &gsheet.ValueRange{Values: [][]any{row}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", sheet, err)
	}
	if resp.Updates != nil {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}
