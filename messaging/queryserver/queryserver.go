// Package queryserver serves read-only queries over HTTP, a websocket feed of receipts and
// the Prometheus metrics. Actions are never applied here: a POST is appended to the action
// log and the event catcher takes it from there.
package queryserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/actions"
	"arnsmachine/consensus/conductor"
	"arnsmachine/messaging/eventcatcher"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Ledger is the part of the conductor the server reads.
type Ledger interface {
	Query(q actions.Query) (interface{}, error)
	Subscribe(buffer int) (<-chan conductor.Receipt, func())
}

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = pongWait / 2
	// Largest action a client may POST.
	maxActionSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Server struct {
	ledger  Ledger
	decoder *schema.Decoder
	router  *mux.Router
	log     *eventcatcher.Writer // nil when the server does not accept actions
}

// New returns a server over l. If log is not nil, POST /action appends to it.
func New(l Ledger, log *eventcatcher.Writer) *Server {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	s := &Server{
		ledger:  l,
		decoder: decoder,
		router:  mux.NewRouter(),
		log:     log,
	}
	// catch the websocket call before anything else
	s.router.Path("/feed").Headers("Upgrade", "websocket").HandlerFunc(s.handleFeed)
	s.router.Path("/query/{kind}").Methods("GET").HandlerFunc(s.handleQuery)
	s.router.Path("/kinds").Methods("GET").HandlerFunc(s.handleKinds)
	s.router.Path("/action").Methods("POST").HandlerFunc(s.handleAction)
	s.router.Path("/metrics").Handler(promhttp.Handler())
	return s
}

func (s *Server) Handler() http.Handler {
	return cors.Default().Handler(s.router)
}

// Start serves on the configured queryAddr until terminate closes. POST /action is only
// served when log is not nil.
func Start(terminate chan struct{}, wg *sync.WaitGroup, l Ledger, log *eventcatcher.Writer) {
	arnsmachine.LogCLI("Starting the query server", 4)
	conf := arnsmachine.MakeOrGetConfig()
	srv := &http.Server{
		Handler:           New(l, log).Handler(),
		Addr:              conf.GetString("queryAddr"),
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       5 * time.Second,
		IdleTimeout:       30 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-terminate
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			arnsmachine.LogCLI(err.Error(), 2)
		}
		arnsmachine.LogCLI("Query server: stopped", 4)
	}()
	go func() {
		arnsmachine.LogCLI("listening on "+srv.Addr, 4)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			arnsmachine.LogCLI(err.Error(), 1)
			arnsmachine.Shutdown()
		}
	}()
}

type errorBody struct {
	Error  string `json:"error"`
	Tier   string `json:"tier,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		arnsmachine.LogCLI(err.Error(), 3)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var ae *arnsmachine.ActionError
	if !errors.As(err, &ae) {
		arnsmachine.LogCLI(err.Error(), 1)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Detail: err.Error()})
		return
	}
	status := http.StatusBadRequest
	if strings.HasSuffix(ae.Reason, "-not-found") {
		status = http.StatusNotFound
	} else if ae.Tier == arnsmachine.Rejection {
		status = http.StatusConflict
	}
	writeJSON(w, status, errorBody{Error: ae.Reason, Tier: ae.Tier.String(), Detail: ae.Detail})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	q, ok := actions.NewQuery(kind)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown-query", Detail: kind})
		return
	}
	if err := s.decoder.Decode(q, r.URL.Query()); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid-query", Detail: err.Error()})
		return
	}
	answer, err := s.ledger.Query(q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleKinds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, arnsmachine.GetAllKinds())
}

// handleAction checks that a line decodes, has a valid caller and keeps the log in height
// order before appending it. It answers 202 with the line's tx id: whether the action
// applies is only known once the catcher reaches it.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if s.log == nil {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "actions-disabled"})
		return
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, maxActionSize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid-envelope", Detail: err.Error()})
		return
	}
	env, _, err := eventcatcher.Decode(b)
	if err != nil {
		var ae *arnsmachine.ActionError
		if errors.As(err, &ae) {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid-envelope", Detail: err.Error()})
		return
	}
	if !arnsmachine.ValidAccount(env.Caller) {
		writeError(w, arnsmachine.ErrInvalidAddress.With("caller %q", env.Caller))
		return
	}
	if _, err := s.log.Append(b); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"txId": conductor.TxIDFor(env)})
}

// handleFeed streams every receipt to the client until it goes away.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		arnsmachine.LogCLI("failed to upgrade websocket", 3)
		return
	}
	receipts, stop := s.ledger.Subscribe(64)
	ticker := time.NewTicker(pingPeriod)
	done := make(chan struct{})

	// reader: only there to notice the close and answer pongs
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					arnsmachine.LogCLI("unexpected close of websocket", 3)
				}
				return
			}
		}
	}()

	// writer
	go func() {
		defer func() {
			ticker.Stop()
			stop()
			conn.Close()
		}()
		for {
			select {
			case <-done:
				return
			case receipt, ok := <-receipts:
				if !ok {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(receipt); err != nil {
					arnsmachine.LogCLI(err.Error(), 3)
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					arnsmachine.LogCLI("couldn't ping, closing socket", 3)
					return
				}
			}
		}
	}()
}
