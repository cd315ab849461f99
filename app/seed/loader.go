package seed

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a seed list: channel feed URLs to
// register at startup.
type File struct {
	Channels []Channel `yaml:"channels"`
}

type Channel struct {
	URL string `yaml:"url"`
}

// Load reads and validates the seed file at path and returns the
// channel URLs in file order. A missing path yields an empty list.
func Load(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	urls := make([]string, 0, len(file.Channels))
	for i, channel := range file.Channels {
		if err := validate(channel.URL); err != nil {
			return nil, fmt.Errorf("invalid channel %d in %s: %w", i, path, err)
		}
		urls = append(urls, channel.URL)
	}

	return urls, nil
}

func validate(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("url is required")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url %q must use http or https", rawURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("url %q has no host", rawURL)
	}

	return nil
}
