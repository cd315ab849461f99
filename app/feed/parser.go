package feed

import (
	"bytes"
	"strings"

	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses raw feed bytes and normalizes them into channel metadata
// plus an ordered sequence of items. A MalformedItemError from any
// single entry aborts normalization of the entire feed.
func (p *Parser) Run(data []byte) (*Metadata, []Item, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, &ParseError{Err: err}
	}

	metadata := &Metadata{
		Title:       parsed.Title,
		Description: parsed.Description,
	}

	items := make([]Item, 0, len(parsed.Items))
	for i, item := range parsed.Items {
		normalized, err := p.normalizeItem(item, i)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, normalized)
	}

	return metadata, items, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item, index int) (Item, error) {
	guid := strings.TrimSpace(item.GUID)
	if guid == "" {
		return Item{}, &MalformedItemError{Index: index}
	}

	normalized := Item{
		GUID:  guid,
		Title: item.Title,
	}

	// An unparseable publish date is left as the zero time rather than
	// failing the item.
	if item.PublishedParsed != nil {
		normalized.Date = item.PublishedParsed.UTC()
	}

	// Extract first enclosure if available (RSS 2.0 spec allows only one per item)
	if len(item.Enclosures) > 0 && item.Enclosures[0] != nil {
		normalized.Enclosure = &Enclosure{
			URL:  item.Enclosures[0].URL,
			Type: item.Enclosures[0].Type,
		}
	}

	return normalized, nil
}
