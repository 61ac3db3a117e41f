package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quizlive-service/internal/app"
)

// WSHandler translates socket messages into session commands and fans session
// events back out. It is the only place connection identities exist; it owns
// no quiz-session state of its own.
type WSHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type hostCreatePayload struct {
	QuizID string `json:"quizId"`
}

type hostReconnectPayload struct {
	Pin       string `json:"pin"`
	HostToken string `json:"hostToken"`
}

type kickPayload struct {
	PlayerID string `json:"playerId"`
}

type checkRoomPayload struct {
	Pin string `json:"pin"`
}

type joinPayload struct {
	Pin      string `json:"pin"`
	Username string `json:"username"`
}

type answerPayload struct {
	Option int `json:"option"`
}

type answerAck struct {
	Option int `json:"option"`
}

type roomOkPayload struct {
	Pin string `json:"pin"`
}

// ServeWS upgrades the request and runs the connection's command loop. Each
// connection gets a fresh ID; the ID is a transient credential that dies with
// the socket.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	var (
		pin         string
		unsubscribe func()
		forwardDone chan struct{}
	)

	detach := func() {
		if unsubscribe != nil {
			unsubscribe()
			<-forwardDone
			unsubscribe = nil
		}
		pin = ""
	}

	fail := func(msg string) {
		select {
		case send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}:
		case <-closeSignals:
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}

		switch inbound.Type {
		case "host:create":
			var p hostCreatePayload
			if err := json.Unmarshal(inbound.Payload, &p); err != nil {
				fail("invalid payload")
				continue
			}
			if pin != "" {
				fail("already in a room")
				continue
			}
			view, err := h.service.HostSession(r.Context(), p.QuizID, connID)
			if err != nil {
				fail(err.Error())
				continue
			}
			if err := h.attachFeed(view.Pin, connID, send, closeSignals, &pin, &unsubscribe, &forwardDone); err != nil {
				fail(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "hosting", Payload: view}

		case "host:reconnect":
			var p hostReconnectPayload
			if err := json.Unmarshal(inbound.Payload, &p); err != nil {
				fail("invalid payload")
				continue
			}
			if pin != "" {
				fail("already in a room")
				continue
			}
			view, err := h.service.ReclaimHost(p.Pin, p.HostToken, connID)
			if err != nil {
				fail(err.Error())
				continue
			}
			if err := h.attachFeed(view.Pin, connID, send, closeSignals, &pin, &unsubscribe, &forwardDone); err != nil {
				fail(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "hosting", Payload: view}

		case "host:start":
			if err := h.service.Start(pin, connID); err != nil {
				fail(err.Error())
			}

		case "host:next":
			if err := h.service.Next(pin, connID); err != nil {
				fail(err.Error())
			}

		case "host:abort":
			if err := h.service.Abort(pin, connID); err != nil {
				fail(err.Error())
			}

		case "host:reset":
			if err := h.service.Reset(pin, connID); err != nil {
				fail(err.Error())
			}

		case "host:kick":
			var p kickPayload
			if err := json.Unmarshal(inbound.Payload, &p); err != nil {
				fail("invalid payload")
				continue
			}
			if err := h.service.Kick(pin, connID, p.PlayerID); err != nil {
				fail(err.Error())
			}

		case "player:checkRoom":
			var p checkRoomPayload
			if err := json.Unmarshal(inbound.Payload, &p); err != nil {
				fail("invalid payload")
				continue
			}
			if err := h.service.CheckRoom(p.Pin); err != nil {
				fail(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "roomOk", Payload: roomOkPayload{Pin: p.Pin}}

		case "player:join":
			var p joinPayload
			if err := json.Unmarshal(inbound.Payload, &p); err != nil {
				fail("invalid payload")
				continue
			}
			if pin != "" {
				fail("already in a room")
				continue
			}
			view, err := h.service.Join(p.Pin, connID, p.Username)
			if err != nil {
				send <- outboundMessage[any]{Type: "joinRejected", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			if err := h.attachFeed(p.Pin, connID, send, closeSignals, &pin, &unsubscribe, &forwardDone); err != nil {
				fail(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "joined", Payload: view}

		case "player:answer":
			var p answerPayload
			if err := json.Unmarshal(inbound.Payload, &p); err != nil {
				fail("invalid payload")
				continue
			}
			if _, err := h.service.SubmitAnswer(pin, connID, p.Option); err != nil {
				fail(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "answerAck", Payload: answerAck{Option: p.Option}}

		case "player:leave":
			h.service.Leave(pin, connID)
			detach()

		default:
			fail("unsupported message type")
		}
	}

	close(closeSignals)
	if unsubscribe != nil {
		unsubscribe()
		<-forwardDone
	}
	if pin != "" {
		h.service.Disconnected(pin, connID)
	}
	close(send)
	<-writerDone
}

// attachFeed subscribes connID to the session behind sessionPin and forwards
// its events to the writer until the subscription or connection closes.
func (h *WSHandler) attachFeed(sessionPin, connID string, send chan outboundMessage[any], closeSignals chan struct{}, pin *string, unsubscribe *func(), forwardDone *chan struct{}) error {
	updates, cancel, err := h.service.Subscribe(sessionPin, connID)
	if err != nil {
		return err
	}
	*pin = sessionPin
	*unsubscribe = cancel
	done := make(chan struct{})
	*forwardDone = done

	go func() {
		defer close(done)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: ev.Type, Payload: ev.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()
	return nil
}
