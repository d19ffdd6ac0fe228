package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes exposes the live snapshot stream: one websocket per
// session, fed by the hub until the client disconnects.
func RegisterRoutes(r fiber.Router, hub *Hub) {
	r.Get("/ws/:id", websocket.New(func(c *websocket.Conn) {
		client := hub.Register(c.Params("id"))
		defer hub.Unregister(client)

		done := make(chan struct{})
		go func() {
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		<-done
	}))
}
