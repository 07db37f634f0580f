package push

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// wsStream adapts a websocket connection to the Stream interface.
type wsStream struct {
	conn *websocket.Conn
}

func (s *wsStream) Next() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	return data, err
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}

// Dial opens the portal's push channel as a Stream. The token is sent as a
// Bearer header so the server can route the connection to the student's
// room.
func Dial(ctx context.Context, url, token string) (Stream, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dialing push channel %s: %w", url, err)
	}
	return &wsStream{conn: conn}, nil
}
