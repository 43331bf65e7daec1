package esixcfg

import (
	"fmt"
	"os"

	"github.com/AdguardTeam/golibs/errors"
	"gopkg.in/yaml.v3"
)

// Load reads and validates the YAML config at path, resolving each static
// address's TypeName into its [iface.AddrType]. A missing file is not an
// error: it yields a zero-value Config (no static entries) that is returned
// without validation; [Config.Validate] would reject its zero TCPWindow.
func Load(path string) (c *Config, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}

	c = &Config{}
	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("unmarshaling %q: %w", path, err)
	}

	if err = c.Validate(); err != nil {
		return nil, fmt.Errorf("validating %q: %w", path, err)
	}

	for i := range c.StaticAddresses {
		if err = c.StaticAddresses[i].resolveType(); err != nil {
			return nil, fmt.Errorf("%q: %w", path, err)
		}
	}

	return c, nil
}
