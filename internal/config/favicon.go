package config

import (
	"encoding/base64"
	"os"
)

// LoadFavicon reads the PNG at c.FaviconPath and returns it as a
// data:image/png;base64,... URI suitable for StatusResponse.favicon. A
// blank path, a missing file, or any read error degrades to an empty
// string rather than failing startup: status replies are best-effort,
// per spec.md's Status phase being advisory only.
func (c *Config) LoadFavicon() string {
	if c.FaviconPath == "" {
		return ""
	}
	data, err := os.ReadFile(c.FaviconPath)
	if err != nil {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}
