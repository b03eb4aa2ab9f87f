// Package google reads the user directory from a Google Sheets spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/ports"
)

var _ ports.UserLister = (*UserSheet)(nil)

// Config selects the spreadsheet and how to authenticate against it.
type Config struct {
	SpreadsheetID   string
	SheetName       string // default "Users"
	CredentialsJSON string // inline service account key
	CredentialsFile string // path to a service account key
}

// UserSheet lists users from a sheet whose first row is a header naming
// the Name, Email, Image and CreatedAt columns, in any order.
type UserSheet struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *applog.Logger
}

// NewUserSheet builds the Sheets client. Extra client options replace the
// service account credentials, which tests use to point at a fake endpoint.
func NewUserSheet(ctx context.Context, cfg Config, logger *applog.Logger, opts ...goption.ClientOption) (*UserSheet, error) {
	if logger == nil {
		logger = applog.Nop()
	}
	logger = logger.WithComponent(applog.ComponentSheets)

	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName := strings.TrimSpace(cfg.SheetName)
	if sheetName == "" {
		sheetName = "Users"
	}

	if len(opts) == 0 {
		credentialsJSON, err := loadCredentials(cfg)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsReadonlyScope),
		}
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	logger.InfoContext(ctx, "Google Sheets user directory ready", "sheet", sheetName)
	return &UserSheet{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName, logger: logger}, nil
}

func loadCredentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// ListUsers reads the whole sheet. Rows without an email are skipped.
func (s *UserSheet) ListUsers(ctx context.Context) ([]core.User, error) {
	rng := fmt.Sprintf("%s!A:Z", s.sheetName)
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	users, err := parseUsers(resp.Values)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "Users read from sheet", "range", rng, applog.FieldCount, len(users))
	return users, nil
}
