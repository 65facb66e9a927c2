package config

import (
	"github.com/spf13/viper"

	"github.com/Veraticus/clanbank/internal/sheets"
)

// LoadSheetsConfig builds the Google Sheets export configuration. Values
// from v (config file or CLANBANK_SHEETS_* variables) win over the
// GOOGLE_SHEETS_* variables, which win over defaults.
func LoadSheetsConfig(v *viper.Viper) (*sheets.Config, error) {
	cfg := sheets.DefaultConfig()

	fields := []struct {
		dest *string
		key  string
		path bool
	}{
		{key: "sheets.service_account_path", dest: &cfg.ServiceAccountPath, path: true},
		{key: "sheets.client_id", dest: &cfg.ClientID},
		{key: "sheets.client_secret", dest: &cfg.ClientSecret},
		{key: "sheets.refresh_token", dest: &cfg.RefreshToken},
		{key: "sheets.spreadsheet_id", dest: &cfg.SpreadsheetID},
		{key: "sheets.spreadsheet_name", dest: &cfg.SpreadsheetName},
		{key: "sheets.time_zone", dest: &cfg.TimeZone},
	}
	for _, s := range fields {
		val := v.GetString(s.key)
		if val == "" {
			continue
		}
		if s.path {
			val = ExpandPath(val)
		}
		*s.dest = val
	}
	if v.IsSet("sheets.enable_formatting") {
		cfg.EnableFormatting = v.GetBool("sheets.enable_formatting")
	}

	cfg.LoadFromEnv()
	cfg.ServiceAccountPath = ExpandPath(cfg.ServiceAccountPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
