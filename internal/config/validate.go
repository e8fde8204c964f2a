package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that the fields a command depends on are set. mode selects
// the requirement set: "serve", "warm", "import", "migrate", or "stats".
func (c *Config) Validate(mode string) error {
	var missing []string

	needStore := func() {
		if c.Store.Driver != "postgres" && c.Store.Driver != "sqlite" {
			missing = append(missing, "store.driver must be postgres or sqlite")
		}
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
	}

	switch mode {
	case "serve":
		needStore()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			missing = append(missing, "server.port must be between 1 and 65535")
		}
		if c.DDAGIS.BaseURL == "" {
			missing = append(missing, "dda_gis.base_url is required")
		}
		if c.LandStatus.BaseURL == "" {
			missing = append(missing, "land_status.base_url is required")
		}
	case "warm":
		needStore()
		if c.DDAGIS.BaseURL == "" {
			missing = append(missing, "dda_gis.base_url is required")
		}
	case "import", "migrate", "stats":
		needStore()
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}
