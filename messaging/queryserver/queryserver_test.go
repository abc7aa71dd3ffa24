package queryserver

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/actions"
	"arnsmachine/consensus/conductor"
	"arnsmachine/messaging/eventcatcher"
)

var alice = strings.Repeat("a", 43)

type fakeLedger struct {
	asked []actions.Query
	feed  chan conductor.Receipt
}

func (f *fakeLedger) Query(q actions.Query) (interface{}, error) {
	f.asked = append(f.asked, q)
	switch t := q.(type) {
	case *actions.BalanceQuery:
		return conductor.BalanceAnswer{Address: t.Address, Balance: 42}, nil
	case *actions.RecordQuery:
		return nil, arnsmachine.ErrRecordNotFound.With("%s", t.Name)
	case *actions.StateHashQuery:
		return nil, fmt.Errorf("boom")
	}
	return struct{}{}, nil
}

func (f *fakeLedger) Subscribe(buffer int) (<-chan conductor.Receipt, func()) {
	return f.feed, func() {}
}

func get(t *testing.T, srv *httptest.Server, path string) (int, string) {
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestQueries(t *testing.T) {
	l := &fakeLedger{}
	srv := httptest.NewServer(New(l, nil).Handler())
	defer srv.Close()

	status, body := get(t, srv, "/query/balance?address="+alice+"&height=12")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"balance":42`)
	require.Len(t, l.asked, 1)
	bq := l.asked[0].(*actions.BalanceQuery)
	assert.Equal(t, alice, bq.Address)
	assert.Equal(t, int64(12), bq.Height)

	status, _ = get(t, srv, "/query/balance")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = get(t, srv, "/query/record?name=nope")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body, "record-not-found")

	status, _ = get(t, srv, "/query/state-hash")
	assert.Equal(t, http.StatusInternalServerError, status)

	status, _ = get(t, srv, "/query/fortune")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = get(t, srv, "/kinds")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"buy-record":"arns"`)

	status, _ = get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, status)
}

func TestPostAction(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "actions.jsonl")
	srv := httptest.NewServer(New(&fakeLedger{}, eventcatcher.NewWriter(logPath)).Handler())
	defer srv.Close()

	line := `{"actionKind":"transfer","caller":"` + alice + `","height":5,"timestamp":5,"payload":{"target":"` + alice + `","qty":1}}`
	resp, err := http.Post(srv.URL+"/action", "application/json", strings.NewReader(line))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/action", "application/json", strings.NewReader(`{"actionKind":"mint"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	older := strings.Replace(line, `"height":5`, `"height":4`, 1)
	resp, err = http.Post(srv.URL+"/action", "application/json", strings.NewReader(older))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "the log stays in height order")

	written, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, line+"\n", string(written))

	closed := httptest.NewServer(New(&fakeLedger{}, nil).Handler())
	defer closed.Close()
	resp, err = http.Post(closed.URL+"/action", "application/json", bytes.NewReader([]byte(line)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestFeed(t *testing.T) {
	l := &fakeLedger{feed: make(chan conductor.Receipt, 1)}
	srv := httptest.NewServer(New(l, nil).Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/feed", nil)
	require.NoError(t, err)
	defer conn.Close()

	l.feed <- conductor.Receipt{TxID: "tx", Kind: actions.KindTransfer, Applied: true, StateHash: "abc"}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got conductor.Receipt
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "tx", got.TxID)
	assert.True(t, got.Applied)
}
