package api

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/podshelf/podshelf/app/catalog"
)

// accepts reports whether the request's Accept header admits the given
// media type. An absent header accepts everything.
func accepts(c *gin.Context, mediaType string) bool {
	header := c.GetHeader("Accept")
	if header == "" {
		return true
	}

	prefix := mediaType[:strings.Index(mediaType, "/")]
	for _, part := range strings.Split(header, ",") {
		accepted := strings.TrimSpace(part)
		if i := strings.Index(accepted, ";"); i >= 0 {
			accepted = strings.TrimSpace(accepted[:i])
		}
		if accepted == mediaType || accepted == "*/*" || accepted == prefix+"/*" {
			return true
		}
	}

	return false
}

// forwardEnclosure relays a GET or HEAD for the item's media asset from
// its origin, streaming the body without buffering or caching.
func (h *Handler) forwardEnclosure(c *gin.Context, method string, enclosure *catalog.Enclosure) {
	if enclosure == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "item has no enclosure"})
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), method, enclosure.URL, nil)
	if err != nil {
		slog.Error("Failed to create enclosure request", "url", enclosure.URL, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to forward enclosure"})
		return
	}

	// Range passes through so clients can seek within the media file
	if rangeHeader := c.GetHeader("Range"); rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := h.proxyClient.Do(req)
	if err != nil {
		slog.Error("Failed to forward enclosure request", "url", enclosure.URL, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to reach enclosure origin"})
		return
	}
	defer resp.Body.Close()

	for _, header := range []string{"Content-Type", "Content-Length", "Content-Range", "Accept-Ranges", "Last-Modified", "ETag"} {
		if value := resp.Header.Get(header); value != "" {
			c.Header(header, value)
		}
	}
	if resp.Header.Get("Content-Type") == "" && enclosure.Type != "" {
		c.Header("Content-Type", enclosure.Type)
	}

	c.Status(resp.StatusCode)

	if method == http.MethodHead {
		return
	}

	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		// Too late for an error status; the client likely went away
		slog.Debug("Enclosure stream interrupted", "url", enclosure.URL, "error", err)
	}
}
