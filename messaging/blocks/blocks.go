// Package blocks provides the block hashes observer selection draws its entropy from.
package blocks

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	jsoniter "github.com/json-iterator/go"
	"github.com/sasha-s/go-deadlock"
	"github.com/spf13/cast"

	"arnsmachine/arnsmachine"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server reads block headers from an Arweave style HTTP gateway. Headers never change once
// a block is final, so every header fetched is cached for the life of the process.
type Server struct {
	base    string
	client  *http.Client
	retries int
	mutex   *deadlock.Mutex
	cache   map[int64]arnsmachine.BlockHeader
}

// NewServer returns a client for the block server at base, e.g. https://arweave.net.
func NewServer(base string) *Server {
	return &Server{
		base:    strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: 20 * time.Second},
		retries: 3,
		mutex:   &deadlock.Mutex{},
		cache:   make(map[int64]arnsmachine.BlockHeader),
	}
}

// FromConfig returns the block hash source the node should use: the configured block
// server, or a derived source in dev mode.
func FromConfig() arnsmachine.BlockHashSource {
	conf := arnsmachine.MakeOrGetConfig()
	if conf.GetBool("devMode") {
		arnsmachine.LogCLI("dev mode: observer entropy is derived, not read from the chain", 2)
		return Derived(conf.GetString("rootDir"))
	}
	return NewServer(conf.GetString("blockServer"))
}

// BlockHash implements arnsmachine.BlockHashSource.
func (s *Server) BlockHash(height int64) ([]byte, error) {
	bh, err := s.FetchBlock(height)
	if err != nil {
		return nil, err
	}
	b, err := base64.RawURLEncoding.DecodeString(bh.Hash)
	if err != nil {
		return nil, fmt.Errorf("block %d has a malformed hash %q: %w", height, bh.Hash, err)
	}
	return b, nil
}

// FetchBlock returns the header at height h.
func (s *Server) FetchBlock(h int64) (arnsmachine.BlockHeader, error) {
	if h < 0 {
		return arnsmachine.BlockHeader{}, fmt.Errorf("can't request a block height of less than 0")
	}
	s.mutex.Lock()
	bh, ok := s.cache[h]
	s.mutex.Unlock()
	if ok {
		return bh, nil
	}
	data, err := s.get(fmt.Sprintf("/block/height/%d", h))
	if err != nil {
		return bh, err
	}
	bh = arnsmachine.BlockHeader{Height: h, Hash: cast.ToString(data["indep_hash"])}
	if bh.Time, err = cast.ToInt64E(data["timestamp"]); err != nil {
		return bh, fmt.Errorf("block %d timestamp: %w", h, err)
	}
	if bh.Hash == "" {
		return bh, fmt.Errorf("block %d has no hash", h)
	}
	s.mutex.Lock()
	s.cache[h] = bh
	s.mutex.Unlock()
	return bh, nil
}

// FetchLatest returns the current tip. It is never cached.
func (s *Server) FetchLatest() (arnsmachine.BlockHeader, error) {
	data, err := s.get("/info")
	if err != nil {
		return arnsmachine.BlockHeader{}, err
	}
	height, err := cast.ToInt64E(data["height"])
	if err != nil {
		return arnsmachine.BlockHeader{}, fmt.Errorf("tip height: %w", err)
	}
	return arnsmachine.BlockHeader{Height: height, Hash: cast.ToString(data["current"])}, nil
}

func (s *Server) get(path string) (map[string]interface{}, error) {
	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
		req, err := http.NewRequest("GET", s.base+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Add("Accept", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			arnsmachine.LogCLI(err, 3)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s: not found", path)
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("%s: status %d", path, resp.StatusCode)
			arnsmachine.LogCLI(lastErr, 3)
			continue
		}
		var data map[string]interface{}
		if err := json.Unmarshal(body, &data); err != nil {
			arnsmachine.LogCLI(spew.Sdump(body), 3)
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return data, nil
	}
	return nil, lastErr
}

// Subscribe polls the tip every interval and sends each new tip until terminate closes.
func (s *Server) Subscribe(terminate chan struct{}, interval time.Duration) chan arnsmachine.BlockHeader {
	tips := make(chan arnsmachine.BlockHeader)
	go func() {
		defer close(tips)
		var last arnsmachine.BlockHeader
		for {
			select {
			case <-terminate:
				return
			case <-time.After(interval):
				tip, err := s.FetchLatest()
				if err != nil {
					arnsmachine.LogCLI(err, 2)
					continue
				}
				if tip.Height <= last.Height {
					continue
				}
				last = tip
				select {
				case tips <- tip:
				case <-terminate:
					return
				}
			}
		}
	}()
	return tips
}

// Derived is a block hash source for dev mode and tests: sha256(seed/height).
type Derived string

func (d Derived) BlockHash(height int64) ([]byte, error) {
	if height < 0 {
		return nil, fmt.Errorf("can't request a block height of less than 0")
	}
	return arnsmachine.Sha256Bytes([]byte(fmt.Sprintf("%s/%d", d, height))), nil
}
