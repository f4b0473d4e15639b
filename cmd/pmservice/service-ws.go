package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/Comcast/packmule/service"

	"github.com/gorilla/websocket"
)

// WebSocketService exposes the op protocol at /ws/api.  Each text
// message is one operation; the reply is the operation with its
// results (or err) filled in.
func WebSocketService(ctx context.Context, s *service.Service) error {

	var upgrader = websocket.Upgrader{} // use default options

	api := func(w http.ResponseWriter, r *http.Request) {
		log.Printf("WebSocketService connection")

		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error", err)
			return
		}
		defer c.Close()

		for {
			mt, message, err := c.ReadMessage()
			if err != nil {
				log.Println("read error", err)
				break
			}

			var op service.Op
			if err := json.Unmarshal(message, &op); err != nil {
				op.Err = "can't parse: " + err.Error()
			} else {
				if err = op.Do(ctx, s); err != nil {
					log.Println("op.Do error", err)
					// Conveyed via op.Err.
				}
			}

			js, err := json.Marshal(&op)
			if err != nil {
				log.Printf("marshal error %v on %#v", err, op)
				continue
			}
			if err = c.WriteMessage(mt, js); err != nil {
				log.Println("write error", err)
				break
			}
		}
	}

	http.HandleFunc("/ws/api", api)

	return nil
}
