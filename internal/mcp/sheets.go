package mcp

import (
	"context"

	"github.com/honeycarbs/placement-pipeline/internal/config"
	"github.com/honeycarbs/placement-pipeline/internal/spreadsheet"
	"github.com/honeycarbs/placement-pipeline/pkg/logging"
	sheetsclient "github.com/honeycarbs/placement-pipeline/pkg/sheets"
)

// provideSheetsClient returns nil without error when no credentials are
// configured; the sheet import and export tools are then not registered.
func provideSheetsClient(ctx context.Context, cfg config.Config, logger *logging.Logger) (*sheetsclient.Client, error) {
	if cfg.Sheets.CredentialsPath == "" {
		logger.Info("Google Sheets client not configured (GOOGLE_SHEETS_CREDENTIALS_PATH not set)")
		return nil, nil
	}

	client, err := sheetsclient.NewClient(ctx, sheetsclient.Config{
		CredentialsPath: cfg.Sheets.CredentialsPath,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Google Sheets client initialized")
	return client, nil
}

func newSheetRowSource(client *sheetsclient.Client) *spreadsheet.SheetReader {
	return spreadsheet.NewSheetReader(client)
}
