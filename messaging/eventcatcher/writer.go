package eventcatcher

import (
	"bufio"
	"bytes"
	"fmt"
	"os"

	"github.com/sasha-s/go-deadlock"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/actions"
)

// ErrOutOfOrder is returned for a line whose height is below the last line in the log.
// Writing it would stop every replica that replays the log.
var ErrOutOfOrder = &arnsmachine.ActionError{Tier: arnsmachine.Rejection, Reason: "out-of-order"}

// Writer appends lines to the action log. It is the only thing a node writes the log with,
// so it can keep the log in height order.
type Writer struct {
	path    string
	mutex   *deadlock.Mutex
	last    int64
	scanned bool
}

func NewWriter(path string) *Writer {
	return &Writer{path: path, mutex: &deadlock.Mutex{}}
}

// Append decodes line and appends it compacted to one line. Lines that do not decode, or
// whose height is below the log's last height, are refused.
func (w *Writer) Append(line []byte) (actions.Envelope, error) {
	env, _, err := Decode(line)
	if err != nil {
		return env, err
	}
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if !w.scanned {
		if err := w.scan(); err != nil {
			return env, err
		}
	}
	if env.Height < w.last {
		return env, ErrOutOfOrder.With("height %d, the log is at %d", env.Height, w.last)
	}
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return env, err
	}
	defer f.Close()
	compact := bytes.ReplaceAll(bytes.TrimSpace(line), []byte("\n"), []byte(" "))
	if _, err := fmt.Fprintf(f, "%s\n", compact); err != nil {
		return env, err
	}
	w.last = env.Height
	return env, nil
}

// Height is the height of the last line in the log.
func (w *Writer) Height() (int64, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if !w.scanned {
		if err := w.scan(); err != nil {
			return 0, err
		}
	}
	return w.last, nil
}

// scan finds the highest height already in the log. Lines that do not decode never reach
// the ledger and are ignored.
func (w *Writer) scan() error {
	f, err := os.Open(w.path)
	if os.IsNotExist(err) {
		w.scanned = true
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<16), 1<<20)
	for scanner.Scan() {
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		env, _, err := Decode(b)
		if err != nil {
			continue
		}
		if env.Height > w.last {
			w.last = env.Height
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	w.scanned = true
	return nil
}
