package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"supportbot/internal/bot"
)

// Relay is what the HTTP layer needs from a bot
type Relay interface {
	Name() string
	Username() string
	WebhookHandler() http.HandlerFunc
}

type botInfo struct {
	Name     string `json:"name"`
	Username string `json:"username"`
}

// NewRouter serves health checks and the list of bots. In webhook mode it also
// accepts the updates of every bot
func NewRouter(webhookMode bool, relays []Relay) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	r.GET("/", func(c *gin.Context) {
		mode := "polling"
		if webhookMode {
			mode = "webhook"
		}
		c.String(http.StatusOK, "Support bot is running (mode: %s)", mode)
	})

	r.GET("/bots", func(c *gin.Context) {
		bots := make([]botInfo, 0, len(relays))
		for _, relay := range relays {
			bots = append(bots, botInfo{
				Name:     relay.Name(),
				Username: relay.Username(),
			})
		}
		c.JSON(http.StatusOK, gin.H{"bots": bots})
	})

	// A polling bot drains the same update queue, so the route must not exist there
	if !webhookMode {
		return r
	}

	byName := make(map[string]Relay, len(relays))
	for _, relay := range relays {
		byName[relay.Name()] = relay
	}
	r.POST(bot.WebhookPath(":bot"), func(c *gin.Context) {
		relay, ok := byName[c.Param("bot")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown bot"})
			return
		}
		relay.WebhookHandler().ServeHTTP(c.Writer, c.Request)
	})

	return r
}
