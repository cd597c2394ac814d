package bridge

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	ws "github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"portalkeys-go/internal/config"
	"portalkeys-go/internal/logging"
)

const (
	readDeadline = 90 * time.Second
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// RegisterRoutes mounts the bridge endpoints on a gin engine.
func RegisterRoutes(r *gin.Engine, svc Services) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	grp := r.Group("/")
	grp.Use(accessKeyAuth(svc.Config))
	grp.GET("/ws", func(c *gin.Context) {
		serveSocket(c, svc)
	})
}

// accessKeyAuth gates requests behind the configured access key. The key
// arrives as a bearer header or an access_key query parameter; when no key
// is configured the endpoint is open and expected to stay loopback-only.
func accessKeyAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !config.AccessKeyConfigured(cfg) {
			c.Next()
			return
		}
		candidate := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if candidate == "" || candidate == c.GetHeader("Authorization") {
			candidate = c.Query("access_key")
		}
		if !config.CheckAccessKey(cfg, candidate) {
			logging.WithReq(c, nil).Warn("rejected connection with bad access key")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid access key"})
			return
		}
		c.Next()
	}
}

var upgrader = ws.Upgrader{CheckOrigin: func(r *http.Request) bool {
	// The UI connects from a local surface without a meaningful Origin;
	// same-host origins are also fine.
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return strings.Contains(origin, r.Host)
}}

// serveSocket runs one UI connection: each received text frame is a wire
// string handed to the handler, and every reply is written back in order.
func serveSocket(c *gin.Context, svc Services) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	defer conn.Close()

	entry := logging.WithReq(c, log.Fields{"component": "bridge"})
	entry.Info("ui connected")
	defer entry.Info("ui disconnected")

	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(ws.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	handler := NewHandler(svc)
	ctx := c.Request.Context()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != ws.TextMessage {
			continue
		}
		started := time.Now()
		replies := handler.Handle(ctx, string(data))
		entry.WithField("duration_ms", logging.DurationMS(time.Since(started))).Debug("message handled")
		for _, reply := range replies {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(ws.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}
}
