package catalog

import "fmt"

// Document key layout. Items are keyed under their owning channel so a
// single prefix scan enumerates all items of one channel.
const (
	ChannelPrefix = "channels/"
	ItemPrefix    = "items/"
)

func ChannelKey(channelID string) string {
	return ChannelPrefix + channelID
}

func ItemKey(channelID, itemID string) string {
	return fmt.Sprintf("%s%s/%s", ItemPrefix, channelID, itemID)
}

func ChannelItemsPrefix(channelID string) string {
	return ItemPrefix + channelID + "/"
}
