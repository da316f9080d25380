package cliconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultSiteFileName is the per-deployment identity file inside StateDir.
const DefaultSiteFileName = "site.json"

// LoadSiteInfo fills in the site identity fields that were not configured
// explicitly. The site id comes from a site.json dropped into the state
// directory at deploy time; the hostname falls back to the machine's.
// Both fields are optional: an empty value just omits the matching header
// on outbound requests.
func LoadSiteInfo(cfg *Config) error {
	if cfg.SiteID == "" && cfg.StateDir != "" {
		id, err := readSiteID(cfg.StateDir)
		if err != nil {
			return fmt.Errorf("read site id: %w", err)
		}
		cfg.SiteID = id
	}

	if cfg.Hostname == "" {
		if h, err := os.Hostname(); err == nil {
			cfg.Hostname = h
		}
	}
	return nil
}

func readSiteID(stateDir string) (string, error) {
	b, err := os.ReadFile(filepath.Join(stateDir, DefaultSiteFileName))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var doc siteFile
	if err := json.Unmarshal(b, &doc); err != nil {
		return "", err
	}
	return doc.SiteID, nil
}

type siteFile struct {
	SiteID string `json:"site_id"`
}
