// Package http bridges wallet redirect callbacks delivered over loopback
// HTTP into the handshake channel.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/walletbridge/handshake"
)

// RedirectHandler consumes a raw callback URL. Satisfied by
// *handshake.Channel.
type RedirectHandler interface {
	HandleRedirect(rawURL string) bool
}

var _ RedirectHandler = (*handshake.Channel)(nil)

// SetupRouter sets up the Gin router serving the two callback routes. The
// wallet app redirects carry their parameters in the query string; the full
// URL is reconstructed and forwarded to the channel.
func SetupRouter(channel RedirectHandler) *gin.Engine {
	router := gin.Default()

	handle := func(c *gin.Context) {
		raw := requestURL(c)
		if !channel.HandleRedirect(raw) {
			c.Status(http.StatusNotFound)
			return
		}
		c.Status(http.StatusNoContent)
	}

	router.GET("/onconnect", handle)
	router.GET("/onsign", handle)

	return router
}

func requestURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.String()
}
