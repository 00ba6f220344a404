package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/owndc/internal/core"
)

func (h *handlers) voiceRooms(c *gin.Context) {
	rooms := []core.RoomInfo{}
	if h.deps.Orch != nil {
		rooms = append(rooms, h.deps.Orch.VoiceRooms()...)
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *handlers) iceServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": h.deps.ICEServers})
}
