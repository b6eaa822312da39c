package orderfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"carsucart/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Listen connects to the order event feed at wsURL and applies events
// until ctx is done or the connection drops. It returns nil when ctx ends
// the session.
func (a *Aggregator) Listen(ctx context.Context, wsURL, token string) error {
	u, err := url.Parse(wsURL)
	if err != nil {
		return fmt.Errorf("parse feed url: %w", err)
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial order feed: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("dial order feed: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	a.log.Info("order feed connected", zap.String("url", u.Redacted()))
	for {
		var ev models.OrderEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				a.log.Warn("bad order event", zap.Error(err))
				continue
			}
			return fmt.Errorf("read order feed: %w", err)
		}
		a.ApplyEvent(ev)
	}
}
