package websocket

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	domainEvent "github.com/AzielCF/az-flow/domains/event"
	"github.com/AzielCF/az-flow/infrastructure/valkey"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	valkeylib "github.com/valkey-io/valkey-go"
)

type client struct{}

type BroadcastMessage struct {
	Code     string `json:"code"`
	Message  string `json:"message,omitempty"`
	Result   any    `json:"result,omitempty"`
	SenderID string `json:"sender_id,omitempty"`
}

var (
	Clients    = make(map[*websocket.Conn]client)
	Register   = make(chan *websocket.Conn)
	Broadcast  = make(chan BroadcastMessage, 256)
	Unregister = make(chan *websocket.Conn)

	vkClient *valkey.Client
	wsChan   = "azflow:ws_broadcast"
	localID  string
)

// SetValkeyClient initializes the distributed broadcast system
func SetValkeyClient(client *valkey.Client, serverID string) {
	vkClient = client
	localID = serverID
}

// Hub expone el broadcast como event.IFanout para los servicios.
type Hub struct{}

func NewHub() *Hub { return &Hub{} }

// Publish nunca bloquea: si el canal está saturado la notificación se
// descarta, los observadores son best-effort.
func (h *Hub) Publish(n domainEvent.Notification) {
	msg := BroadcastMessage{
		Code:    n.Code,
		Message: n.Message,
		Result:  n.Result,
	}
	select {
	case Broadcast <- msg:
	default:
		logrus.Debug("[WS] Broadcast channel saturated, notification dropped")
	}
}

func handleRegister(conn *websocket.Conn) {
	Clients[conn] = client{}
	logrus.Debug("[WS] Connection registered")
}

func handleUnregister(conn *websocket.Conn) {
	delete(Clients, conn)
	logrus.Debug("[WS] Connection unregistered")
}

func broadcastToLocal(message BroadcastMessage) {
	marshalMessage, err := json.Marshal(message)
	if err != nil {
		logrus.Errorf("[WS] Marshal error: %v", err)
		return
	}

	for conn := range Clients {
		if err := conn.WriteMessage(websocket.TextMessage, marshalMessage); err != nil {
			logrus.Errorf("[WS] Write error: %v", err)
			closeConnection(conn)
		}
	}
}

func publishToValkey(message BroadcastMessage) {
	if vkClient == nil {
		return
	}

	// Attach local ID as sender
	message.SenderID = localID

	data, err := json.Marshal(message)
	if err != nil {
		return
	}

	ctx := context.Background()
	cmd := vkClient.Inner().B().Publish().Channel(wsChan).Message(string(data)).Build()
	if err := vkClient.Inner().Do(ctx, cmd).Error(); err != nil {
		logrus.Errorf("[WS] Failed to publish to Valkey: %v", err)
	}
}

func startValkeySubscriber() {
	if vkClient == nil {
		return
	}

	logrus.Info("[WS] Starting Valkey Pub/Sub subscriber for distributed events")
	go func() {
		err := vkClient.Inner().Receive(context.Background(), vkClient.Inner().B().Subscribe().Channel(wsChan).Build(), func(msg valkeylib.PubSubMessage) {
			var broadcastMsg BroadcastMessage
			if err := json.Unmarshal([]byte(msg.Message), &broadcastMsg); err == nil {
				// Avoid loops: ignore messages sent by this same instance
				if broadcastMsg.SenderID == localID {
					return
				}
				broadcastToLocal(broadcastMsg)
			}
		})
		if err != nil {
			logrus.Errorf("[WS] Valkey subscriber failed: %v", err)
		}
	}()
}

func closeConnection(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
	_ = conn.Close()
	delete(Clients, conn)
}

func RunHub() {
	// If Valkey is enabled, start the subscriber
	if vkClient != nil {
		startValkeySubscriber()
	}

	for {
		select {
		case conn := <-Register:
			handleRegister(conn)

		case conn := <-Unregister:
			handleUnregister(conn)

		case message := <-Broadcast:
			// 1. Send to local clients immediately
			broadcastToLocal(message)

			// 2. If Valkey is active, propagate to other servers
			if vkClient != nil {
				publishToValkey(message)
			}
		}
	}
}

func RegisterRoutes(app fiber.Router) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})

	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		defer func() {
			Unregister <- conn
			_ = conn.Close()
		}()

		Register <- conn

		// El canal es de solo lectura para el cliente; se drena para
		// detectar el cierre de la conexión.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logrus.Println("read error:", err)
				}
				return
			}
		}
	}))
}
