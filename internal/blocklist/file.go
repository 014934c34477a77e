package blocklist

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk blocklist format:
//
//	blocked_domains:
//	  - evil.com
//	  - ads.example.net
type fileConfig struct {
	BlockedDomains []string `yaml:"blocked_domains"`
}

// LoadFile reads a YAML blocklist file and adds every entry to b. It returns
// the number of entries that were newly added.
func (b *Blocklist) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path is from user config.
	if err != nil {
		return 0, fmt.Errorf("reading blocklist: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return 0, fmt.Errorf("parsing blocklist %s: %w", path, err)
	}

	added := 0
	for _, d := range cfg.BlockedDomains {
		if b.Add(d) {
			added++
		}
	}
	return added, nil
}
