package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RoomInspector exposes room sizes for diagnostics.
type RoomInspector interface {
	RoomSizes() map[string]int
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRoutes, rooms RoomInspector, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/rooms", func(c *gin.Context) {
		if rooms == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "room manager not configured"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"rooms": rooms.RoomSizes()})
	})
}

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
