// This is a http type of reporter.
// It fetches data from the coordinator's status view
// and publishes it on read-only http routes.

package reporter

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crosslock/relay-go/relayer"
)

const (
	ROUTE_HEALTH = "/health"
	ROUTE_STATUS = "/status"
)

// StatusSource is implemented by *relayer.Coordinator.
type StatusSource interface {
	Status(ctx context.Context) (*relayer.Status, error)
}

type HttpReporter struct {
	serverIP   string // listen ip
	serverPort string // listen port

	// upstream data source
	source StatusSource
}

func NewHttpReporter(serverIP string, serverPort string, source StatusSource) *HttpReporter {
	return &HttpReporter{
		serverIP:   serverIP,
		serverPort: serverPort,
		source:     source,
	}
}

// Hook up routes & handlers
func (h *HttpReporter) SetupRouter() *gin.Engine {
	router := gin.Default()

	router.GET(ROUTE_HEALTH, Health)
	router.GET(ROUTE_STATUS, h.Status)

	return router
}

// Hook up router & ip:port
func (h *HttpReporter) Run() {
	router := h.SetupRouter()
	address := h.serverIP + ":" + h.serverPort
	if err := router.Run(address); err != nil {
		panic(err)
	}
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Fetch the live status view and publish it on the route.
func (h *HttpReporter) Status(c *gin.Context) {
	st, err := h.source.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, st)
}
