// Package feed holds long-running event feeds that push raw sales into the
// ingest path ahead of the polling runners.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nftstats/internal/domain"
)

// DefaultStreamURL is the OpenSea Stream API websocket endpoint.
const DefaultStreamURL = "wss://stream.openseabeta.com/socket/websocket"

// SaleHandler is called for each live sale event with the collection slug it
// belongs to.
type SaleHandler func(ctx context.Context, slug string, sale domain.RawSale)

// OpenSeaStreamFeed connects to the OpenSea Stream API, joins the wildcard
// collection topic, and invokes the handler for each item_sold event. It
// reconnects on disconnect.
type OpenSeaStreamFeed struct {
	wsURL     string
	apiKey    string
	onSale    SaleHandler
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewOpenSeaStreamFeed creates a feed for the given API key.
func NewOpenSeaStreamFeed(wsURL, apiKey string, onSale SaleHandler, logger *slog.Logger) *OpenSeaStreamFeed {
	if wsURL == "" {
		wsURL = DefaultStreamURL
	}
	return &OpenSeaStreamFeed{
		wsURL:  wsURL,
		apiKey: apiKey,
		onSale: onSale,
		logger: logger.With(slog.String("component", "opensea_stream_feed")),
		done:   make(chan struct{}),
	}
}

// phoenixMessage is the Stream API envelope. OpenSea's stream is a Phoenix
// channel socket; every frame carries topic/event/payload/ref.
type phoenixMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     int             `json:"ref"`
}

// itemSoldPayload is the payload of an item_sold event.
type itemSoldPayload struct {
	Payload struct {
		Chain          string `json:"chain"`
		CollectionSlug string `json:"collection_slug"`
		EventTimestamp string `json:"event_timestamp"`
		Transaction    struct {
			Hash string `json:"hash"`
		} `json:"transaction"`
		Maker struct {
			Address string `json:"address"`
		} `json:"maker"`
		Taker struct {
			Address string `json:"address"`
		} `json:"taker"`
		PaymentToken struct {
			Address  string `json:"address"`
			Decimals int    `json:"decimals"`
		} `json:"payment_token"`
		SalePrice string `json:"sale_price"`
		Quantity  int64  `json:"quantity"`
	} `json:"payload"`
}

// Run connects and processes events until ctx is cancelled or Close is
// called. Reconnects with backoff on disconnect.
func (f *OpenSeaStreamFeed) Run(ctx context.Context) error {
	if f.apiKey == "" {
		f.logger.Info("no api key configured, live feed disabled")
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}
		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("opensea stream disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(2 * time.Second):
		}
	}
}

func (f *OpenSeaStreamFeed) runConnection(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.wsURL+"?token="+f.apiKey, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("feed: dial opensea stream: %w", err)
	}
	defer conn.Close()

	join := phoenixMessage{Topic: "collection:*", Event: "phx_join", Payload: json.RawMessage("{}"), Ref: 1}
	if err := conn.WriteJSON(join); err != nil {
		return fmt.Errorf("feed: join collection topic: %w", err)
	}
	f.logger.Info("opensea stream subscribed", slog.String("topic", "collection:*"))

	// Phoenix sockets drop connections that miss two heartbeat windows.
	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	go f.heartbeat(conn, heartbeatDone)

	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		case <-heartbeatDone:
			return
		}
		conn.Close()
	}()

	for {
		var msg phoenixMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case <-f.done:
				return nil
			default:
			}
			return fmt.Errorf("feed: read opensea stream: %w", err)
		}
		if msg.Event != "item_sold" {
			continue
		}
		f.handleItemSold(ctx, msg.Payload)
	}
}

func (f *OpenSeaStreamFeed) heartbeat(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	ref := 2
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ref++
			hb := phoenixMessage{Topic: "phoenix", Event: "heartbeat", Payload: json.RawMessage("{}"), Ref: ref}
			if err := conn.WriteJSON(hb); err != nil {
				return
			}
		}
	}
}

func (f *OpenSeaStreamFeed) handleItemSold(ctx context.Context, raw json.RawMessage) {
	var ev itemSoldPayload
	if err := json.Unmarshal(raw, &ev); err != nil {
		f.logger.Debug("opensea stream decode failed", slog.String("error", err.Error()))
		return
	}

	sale, ok := f.toRawSale(ev)
	if !ok {
		return
	}
	if f.onSale != nil {
		f.onSale(ctx, ev.Payload.CollectionSlug, sale)
	}
}

func (f *OpenSeaStreamFeed) toRawSale(ev itemSoldPayload) (domain.RawSale, bool) {
	p := ev.Payload
	chain := domain.Chain(p.Chain)
	if !chain.Valid() || p.Transaction.Hash == "" {
		return domain.RawSale{}, false
	}

	quantity, err := strconv.ParseFloat(p.SalePrice, 64)
	if err != nil {
		return domain.RawSale{}, false
	}
	price := quantity
	for i := 0; i < p.PaymentToken.Decimals; i++ {
		price /= 10
	}

	ts := time.Now().Unix()
	if p.EventTimestamp != "" {
		if t, err := time.Parse(time.RFC3339, p.EventTimestamp); err == nil {
			ts = t.Unix()
		}
	}

	token := p.PaymentToken.Address
	if token == "" {
		token = chain.BaseTokenAddress()
	}

	return domain.RawSale{
		TxnHash:      p.Transaction.Hash,
		Timestamp:    ts,
		TokenAddress: chain.NormalizeAddress(token),
		Chain:        chain,
		Marketplace:  domain.MarketplaceOpenSea,
		Price:        price,
		Buyer:        p.Taker.Address,
		Seller:       p.Maker.Address,
	}, true
}

// Close stops the feed.
func (f *OpenSeaStreamFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
