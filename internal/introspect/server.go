// Package introspect is a small debug WebSocket endpoint that streams a
// JSON line per message the broker dispatches, for operator tooling,
// using low-level gobwas/ws framing. This is pure observability: it
// attaches a Callback-discipline subscriber and never becomes part of
// the bus's actual in-process delivery path — it only narrates messages
// already dispatched, it never transports them.
package introspect

import (
	"bufio"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"

	"github.com/adred-codev/busbox/internal/message"
	"github.com/adred-codev/busbox/internal/pubsub"
)

const (
	writeWait  = 5 * time.Second
	pingPeriod = 20 * time.Second
	sendBuffer = 64
)

// Event is one dispatched-message narration line.
type Event struct {
	MsgID       uint16 `json:"msg_id"`
	AllocatorID uint8  `json:"allocator_id"`
	PayloadLen  int    `json:"payload_len"`
	Timestamp   int64  `json:"timestamp_unix_nano"`
}

// Server narrates every message delivered to its embedded subscriber to
// all currently-connected viewers.
type Server struct {
	logger zerolog.Logger
	now    func() time.Time

	Subscriber *pubsub.Subscriber

	mu      sync.Mutex
	viewers map[chan []byte]struct{}
}

// New constructs a Server. maxPubMsgID/priority configure the embedded
// Callback subscriber; the caller must Subscribe it to whatever msg-ids
// should be narrated, then Attach it to the broker being observed.
func New(maxPubMsgID uint16, priority uint8, logger zerolog.Logger) *Server {
	s := &Server{
		logger:  logger,
		now:     time.Now,
		viewers: make(map[chan []byte]struct{}),
	}
	s.Subscriber = pubsub.NewCallbackSubscriber(nil, maxPubMsgID, priority)
	s.Subscriber.SetHandler(s.onDispatch)
	return s
}

func (s *Server) onDispatch(msgID uint16, blk message.Block) {
	_, allocatorID, _ := blk.Header.Load()
	line, err := json.Marshal(Event{
		MsgID:       msgID,
		AllocatorID: allocatorID,
		PayloadLen:  len(blk.Payload),
		Timestamp:   s.now().UnixNano(),
	})
	if err != nil {
		return
	}
	s.broadcast(line)
}

func (s *Server) broadcast(line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.viewers {
		select {
		case ch <- line:
		default:
			s.logger.Debug().Msg("introspect: viewer channel full, dropping narration line")
		}
	}
}

// ServeHTTP upgrades the connection and streams narration lines until
// the client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Debug().Err(err).Msg("introspect: upgrade failed")
		return
	}
	s.serveConn(conn)
}

func (s *Server) serveConn(conn net.Conn) {
	ch := make(chan []byte, sendBuffer)
	s.mu.Lock()
	s.viewers[ch] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.viewers, ch)
		s.mu.Unlock()
		conn.Close()
	}()

	writer := bufio.NewWriter(conn)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case line, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(writer, ws.OpText, line); err != nil {
				return
			}
			if err := writer.Flush(); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}
