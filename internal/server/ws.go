package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/stockledger/stockledger/internal/apperr"
	"github.com/stockledger/stockledger/internal/quote"
	"github.com/stockledger/stockledger/internal/symbol"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	maxWSSymbols   = 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return allowedOrigin(r.Header.Get("Origin"))
	},
}

// wsUpdate is the wire form of a quote stream event.
type wsUpdate struct {
	Symbol  string       `json:"symbol"`
	State   string       `json:"state"`
	Quote   *quote.Quote `json:"quote,omitempty"`
	Error   string       `json:"error,omitempty"`
	Code    string       `json:"code,omitempty"`
	Attempt int          `json:"attempt,omitempty"`
}

// wsCommand is a control message from the client. Currently only retry.
type wsCommand struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
}

// handleQuoteStream upgrades the connection and streams quote updates for the
// symbols named in the symbols query parameter (comma separated).
func (s *Server) handleQuoteStream(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("symbols")
	if raw == "" {
		writeError(w, apperr.New(apperr.KindValidation, apperr.CodeInvalidQuery, "symbols is required"))
		return
	}

	var syms []string
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		sym := symbol.Normalize(part)
		if sym == "" || seen[sym] {
			continue
		}
		if err := symbol.Validate(sym); err != nil {
			writeError(w, err)
			return
		}
		seen[sym] = true
		syms = append(syms, sym)
	}
	if len(syms) == 0 {
		writeError(w, apperr.New(apperr.KindValidation, apperr.CodeInvalidQuery, "no valid symbols"))
		return
	}
	if len(syms) > maxWSSymbols {
		writeError(w, apperr.New(apperr.KindValidation, apperr.CodeInvalidQuery, "too many symbols"))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	subs := make(map[string]*quote.Subscription, len(syms))
	merged := make(chan quote.Update, 64)

	for _, sym := range syms {
		sub, err := s.deps.Syncer.Subscribe(ctx, sym)
		if err != nil {
			log.Warn().Err(err).Str("symbol", sym).Msg("quote subscribe failed")
			continue
		}
		subs[sym] = sub
		if s.deps.Metrics != nil {
			s.deps.Metrics.ActiveQuoteSubs.Inc()
		}
		go func(sub *quote.Subscription) {
			for u := range sub.Updates() {
				select {
				case merged <- u:
				case <-ctx.Done():
					return
				}
			}
		}(sub)
	}
	defer func() {
		for _, sub := range subs {
			sub.Close()
			if s.deps.Metrics != nil {
				s.deps.Metrics.ActiveQuoteSubs.Dec()
			}
		}
	}()

	// Reader loop: control messages and close detection.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var cmd wsCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			if cmd.Action == "retry" {
				if sub, ok := subs[symbol.Normalize(cmd.Symbol)]; ok {
					sub.Retry()
				}
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case u := <-merged:
			msg := wsUpdate{
				Symbol:  u.Symbol,
				State:   u.State.String(),
				Quote:   u.Quote,
				Attempt: u.Attempt,
			}
			if u.Err != nil {
				msg.Error = u.Err.Error()
				msg.Code = apperr.CodeOf(u.Err)
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}
