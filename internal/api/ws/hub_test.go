package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/visitrack/pkg/dto"
)

func TestHub_FiltersByRun(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	go hub.Run()

	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	wanted := uuid.New()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?run_id=" + wanted.String()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.BroadcastEvent(&dto.WSEvent{Type: "run_progress", RunID: uuid.New(), Data: dto.RunProgress{Percent: 10}})
	hub.BroadcastEvent(&dto.WSEvent{Type: "run_progress", RunID: wanted, Data: dto.RunProgress{Status: "running", Percent: 60}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt dto.WSEvent
	require.NoError(t, json.Unmarshal(data, &evt))
	assert.Equal(t, wanted, evt.RunID)
	assert.Equal(t, 60, evt.Data.Percent)
}

func TestHub_RejectsBadFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	r := gin.New()
	r.GET("/ws", hub.HandleWS)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ws?run_id=nope", nil))
	assert.Equal(t, 400, w.Code)
}
