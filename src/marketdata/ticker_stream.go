package marketdata

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

// tickMessage is one trade tick from the streaming quote feed.
type tickMessage struct {
	Symbol    string  `json:"symbol"`
	LastPrice float64 `json:"last_price"`
	Timestamp int64   `json:"ts"`
}

type subscribeMessage struct {
	Action  string   `json:"a"`
	Symbols []string `json:"v"`
}

// TickerStream maintains a websocket subscription to the quote feed and
// keeps the LTP cache current. Reconnects with a fixed delay on any
// read or dial failure until the context is cancelled.
type TickerStream struct {
	url            string
	symbols        []string
	cache          *LTPCache
	reconnectDelay time.Duration

	dial func(url string) (*websocket.Conn, error)
}

func NewTickerStream(cfg Config, symbols []string, cache *LTPCache) *TickerStream {
	return &TickerStream{
		url:            cfg.TickerURL,
		symbols:        symbols,
		cache:          cache,
		reconnectDelay: cfg.ReconnectDelay,
		dial: func(url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			return conn, err
		},
	}
}

// Run blocks until ctx is done, dialing and re-dialing the feed.
func (s *TickerStream) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.consume(ctx); err != nil {
			logger.WithFields(map[string]interface{}{
				"component": "TickerStream",
				"url":       s.url,
			}).WithError(err).Warn("tick stream interrupted, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *TickerStream) consume(ctx context.Context) error {
	conn, err := s.dial(s.url)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeMessage{Action: "subscribe", Symbols: s.symbols}); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"component": "TickerStream",
		"symbols":   len(s.symbols),
	}).Info("subscribed to tick stream")

	// Close the connection when the context ends so ReadJSON unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var msg tickMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if msg.Symbol == "" || msg.LastPrice <= 0 {
			continue
		}

		at := time.Unix(msg.Timestamp, 0)
		if msg.Timestamp == 0 {
			at = time.Now()
		}
		s.cache.Set(msg.Symbol, msg.LastPrice, at)
	}
}
