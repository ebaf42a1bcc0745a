package plex

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"plexautoskip/internal/models"
)

type wsMessage struct {
	NotificationContainer notificationContainer `json:"NotificationContainer"`
}

type notificationContainer struct {
	Type                         string             `json:"type"`
	PlaySessionStateNotification []playSessionState `json:"PlaySessionStateNotification"`
}

type playSessionState struct {
	SessionKey string `json:"sessionKey"`
	State      string `json:"state"`
	ViewOffset int64  `json:"viewOffset"`
}

// Alerts subscribes to the server's notification websocket and delivers
// play-state alerts. The channel is closed when ctx is cancelled; connection
// drops are retried with exponential backoff.
func (s *Server) Alerts(ctx context.Context) (<-chan models.PlayingAlert, error) {
	ch := make(chan models.PlayingAlert, 16)
	go s.wsLoop(ctx, ch)
	return ch, nil
}

func (s *Server) wsLoop(ctx context.Context, ch chan<- models.PlayingAlert) {
	defer close(ch)
	backoff := time.Second

	for {
		err := s.wsConnect(ctx, ch)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("plex ws: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			backoff = min(backoff*2, 30*time.Second)
		}
	}
}

func (s *Server) wsConnect(ctx context.Context, ch chan<- models.PlayingAlert) error {
	wsURL := strings.Replace(s.url, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/:/websockets/notifications"

	header := http.Header{"X-Plex-Token": {s.token}}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Ping goroutine
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(
					websocket.PingMessage, nil,
					time.Now().Add(5*time.Second),
				); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		for _, a := range parseAlertMessage(msg) {
			select {
			case ch <- a:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// parseAlertMessage extracts playing alerts from a notification frame.
// Error-type containers are logged and produce no alerts; everything else
// is silently ignored.
func parseAlertMessage(data []byte) []models.PlayingAlert {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil
	}
	switch msg.NotificationContainer.Type {
	case "playing":
	case "error":
		log.Printf("plex ws: server reported error notification: %s", string(data))
		return nil
	default:
		return nil
	}
	alerts := make([]models.PlayingAlert, 0, len(msg.NotificationContainer.PlaySessionStateNotification))
	for _, ps := range msg.NotificationContainer.PlaySessionStateNotification {
		key, err := strconv.ParseInt(ps.SessionKey, 10, 64)
		if err != nil {
			continue
		}
		alerts = append(alerts, models.PlayingAlert{
			SessionKey: key,
			State:      ps.State,
			ViewOffset: ps.ViewOffset,
		})
	}
	return alerts
}
