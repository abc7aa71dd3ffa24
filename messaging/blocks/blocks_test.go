package blocks

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerCachesHeaders(t *testing.T) {
	hash := base64.RawURLEncoding.EncodeToString([]byte(strings.Repeat("h", 48)))
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		switch r.URL.Path {
		case "/block/height/7":
			fmt.Fprintf(w, `{"indep_hash":%q,"timestamp":"1700000000","height":7}`, hash)
		case "/block/height/8":
			fmt.Fprint(w, `not json`)
		case "/info":
			fmt.Fprint(w, `{"height":1234,"current":"abc"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := NewServer(srv.URL + "/")
	b, err := s.BlockHash(7)
	require.NoError(t, err)
	assert.Equal(t, []byte(strings.Repeat("h", 48)), b)
	_, err = s.BlockHash(7)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	bh, err := s.FetchBlock(7)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000), bh.Time)

	_, err = s.BlockHash(8)
	assert.Error(t, err)
	_, err = s.BlockHash(9)
	assert.Error(t, err)
	_, err = s.BlockHash(-1)
	assert.Error(t, err)

	tip, err := s.FetchLatest()
	require.NoError(t, err)
	assert.Equal(t, int64(1234), tip.Height)
}

func TestDerived(t *testing.T) {
	a, err := Derived("seed").BlockHash(10)
	require.NoError(t, err)
	b, err := Derived("seed").BlockHash(10)
	require.NoError(t, err)
	c, err := Derived("other").BlockHash(10)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}
