package action

import (
	"context"
	"fmt"
	"net/http"

	"github.com/torosent/symphoner/internal/httpclient"
	"github.com/torosent/symphoner/internal/tracing"
	"github.com/torosent/symphoner/internal/websocket"
)

type webSocketAction struct {
	def WebSocketDefinition
	cfg websocket.Config
}

func newWebSocketAction(def Definition) (Action, error) {
	if def.WebSocket == nil {
		return nil, fmt.Errorf("websocket action requires a websocket section")
	}
	if def.WebSocket.URL == "" {
		return nil, fmt.Errorf("websocket url is required")
	}
	if def.WebSocket.Receive < 0 {
		return nil, fmt.Errorf("websocket receive must be >= 0")
	}
	return &webSocketAction{
		def: *def.WebSocket,
		cfg: websocket.Config{
			HandshakeTimeout: def.Timeout,
			ReadTimeout:      def.Timeout,
			WriteTimeout:     def.Timeout,
		},
	}, nil
}

func (a *webSocketAction) Invoke(ctx context.Context, cfg Config) *Result {
	return Completed(a.do(ctx, cfg))
}

func (a *webSocketAction) do(ctx context.Context, cfg Config) error {
	headers := http.Header{}
	for k, v := range a.def.Headers {
		headers.Set(k, httpclient.ApplyPlaceholders(v, cfg.Settings))
	}
	tracing.InjectHTTPHeaders(ctx, headers)

	wsCfg := a.cfg
	wsCfg.URL = httpclient.ApplyPlaceholders(a.def.URL, cfg.Settings)
	wsCfg.Headers = headers
	wsCfg.Metrics = cfg.Metrics

	client := websocket.NewClient(wsCfg)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	for _, text := range a.def.Messages {
		msg := websocket.Message{
			Type: websocket.TextMessage,
			Data: []byte(httpclient.ApplyPlaceholders(text, cfg.Settings)),
		}
		if err := client.Send(ctx, msg); err != nil {
			return err
		}
	}
	for i := 0; i < a.def.Receive; i++ {
		if _, err := client.Receive(ctx); err != nil {
			return err
		}
	}
	return nil
}
