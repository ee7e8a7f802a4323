package ws

import (
	"net/http"
	"time"

	"voyago/config"
	"voyago/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// PaymentEvent is pushed to the paying user's sockets whenever the
// reconciliation flow moves a payment to a new status.
type PaymentEvent struct {
	Type        string `json:"type"`
	PaymentID   uint   `json:"payment_id"`
	PiPaymentID string `json:"pi_payment_id,omitempty"`
	Status      string `json:"status"`
	BookingID   *uint  `json:"booking_id,omitempty"`
	At          int64  `json:"at"`
}

// PublishPaymentStatus fans a status transition out to the user's
// connections. Safe on a nil hub.
func (h *Hub) PublishPaymentStatus(userID uint, paymentID uint, piPaymentID, status string, bookingID *uint) {
	if h == nil {
		return
	}
	h.BroadcastToUser(userID, PaymentEvent{
		Type:        "payment_status",
		PaymentID:   paymentID,
		PiPaymentID: piPaymentID,
		Status:      status,
		BookingID:   bookingID,
		At:          time.Now().Unix(),
	})
}

// UpgradePaymentWS upgrades the connection for the payment status feed.
// The access token comes in the query string; browsers cannot set headers
// on websocket dials.
func UpgradePaymentWS(cfg *config.JWTConfig, hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		token := c.Query("token")
		if token == "" {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"token required"}`))
			return
		}
		claims, err := auth.ParseAccessToken(cfg, token)
		if err != nil {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
			return
		}
		client := &Client{
			UserID: claims.UserID,
			Send:   make(chan []byte, 256),
		}
		hub.Register(client)
		defer client.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"connected"}`))
		go writePump(client, conn)
		readPump(conn)
	}
}

// writePump copies messages from client.Send to the connection.
func writePump(c *Client, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection until the peer goes away. The feed is
// one-directional; inbound frames are discarded.
func readPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
