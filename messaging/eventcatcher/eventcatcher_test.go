package eventcatcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/actions"
	"arnsmachine/consensus/conductor"
	"arnsmachine/consensus/epochs"
)

var (
	alice = strings.Repeat("a", 43)
	bob   = strings.Repeat("b", 43)
)

type recorder struct {
	envs []actions.Envelope
	errs map[int64]error // by height
}

func (r *recorder) Handle(env actions.Envelope) (conductor.Receipt, error) {
	r.envs = append(r.envs, env)
	receipt := conductor.Receipt{TxID: env.TxID, Kind: env.Kind, Caller: env.Caller, Height: env.Height}
	if err, ok := r.errs[env.Height]; ok {
		return receipt, err
	}
	receipt.Applied = true
	return receipt, nil
}

func (r *recorder) Seen(height int64, txID string) bool {
	for _, env := range r.envs {
		if env.Height == height && env.TxID == txID {
			return true
		}
	}
	return false
}

type seeded string

func (s seeded) BlockHash(h int64) ([]byte, error) {
	return arnsmachine.Sha256Bytes([]byte(fmt.Sprintf("%s/%d", s, h))), nil
}

func newConductor(t *testing.T) *conductor.Conductor {
	g := conductor.Genesis{Timestamp: 1_700_000_000, Balances: map[string]int64{alice: 100}}
	l, err := conductor.Ignite(arnsmachine.DefaultConstants(), g, seeded("x"))
	require.NoError(t, err)
	return conductor.New(l, seeded("x"))
}

func transferLine(height int64, qty int64) string {
	return fmt.Sprintf(`{"actionKind":"transfer","caller":%q,"height":%d,"timestamp":"1700000000","payload":{"target":%q,"qty":%d}}`,
		alice, height, bob, qty)
}

func TestDecodeLooseNumerics(t *testing.T) {
	env, _, err := Decode([]byte(`{"actionKind":"transfer","caller":"` + alice + `","height":"12","timestamp":1.7e9,"payload":{"target":"` + bob + `","qty":5}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(12), env.Height)
	assert.Equal(t, int64(1_700_000_000), env.Timestamp)
	tr, ok := env.Action.(*actions.Transfer)
	require.True(t, ok)
	assert.Equal(t, int64(5), tr.Qty)
	assert.Equal(t, bob, tr.Target)

	_, _, err = Decode([]byte(`{"actionKind":"mint","caller":"x","height":1,"timestamp":1}`))
	assert.ErrorIs(t, err, arnsmachine.ErrUnknownAction)
	_, _, err = Decode([]byte(`{"actionKind":"transfer","caller":"x","height":"soon","timestamp":1}`))
	assert.Error(t, err)

	env, _, err = Decode([]byte(`{"actionKind":"tick","caller":"` + alice + `","height":3,"timestamp":3}`))
	require.NoError(t, err)
	assert.Equal(t, actions.KindTick, env.Action.Kind())
}

func TestIngestDedupesAndDerivesTxID(t *testing.T) {
	r := &recorder{}
	c := New(r, 1000, false)
	line := []byte(transferLine(1, 10))

	receipt, err := c.Ingest(line)
	require.NoError(t, err)
	assert.True(t, receipt.Applied)
	_, err = c.Ingest(line)
	require.NoError(t, err)

	require.Len(t, r.envs, 1)
	assert.Equal(t, int64(1), c.Stats.Duplicates)
	assert.Len(t, r.envs[0].TxID, 43)
	assert.Equal(t, conductor.TxIDFor(r.envs[0]), r.envs[0].TxID)
}

func TestSignatures(t *testing.T) {
	key := strings.Repeat("01", 32)
	caller, err := arnsmachine.PublicKeyFor(key)
	require.NoError(t, err)
	env := actions.Envelope{Caller: caller, Height: 4, Timestamp: 40, Action: &actions.Transfer{Target: bob, Qty: 7}}
	signed, err := Encode(env, key)
	require.NoError(t, err)
	unsigned, err := Encode(env, "")
	require.NoError(t, err)

	r := &recorder{}
	c := New(r, 1000, true)
	_, err = c.Ingest(signed)
	require.NoError(t, err)
	_, err = c.Ingest(unsigned)
	assert.ErrorIs(t, err, ErrMalformed)

	tampered := strings.Replace(string(signed), `"qty":7`, `"qty":70`, 1)
	_, err = c.Ingest([]byte(tampered))
	assert.ErrorIs(t, err, ErrMalformed)

	require.Len(t, r.envs, 1)
	assert.Equal(t, int64(7), r.envs[0].Action.(*actions.Transfer).Qty)
	assert.Equal(t, int64(2), c.Stats.Malformed)
}

func TestReplay(t *testing.T) {
	r := &recorder{errs: map[int64]error{
		2: arnsmachine.ErrInsufficientBalance.With("test"),
	}}
	c := New(r, 1000, false)
	log := strings.Join([]string{
		transferLine(1, 1),
		"",
		"not json",
		transferLine(2, 2),
		transferLine(4, 4),
	}, "\n")
	offset, err := c.Replay(strings.NewReader(log), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(len(log)), offset)
	assert.Equal(t, Stats{Applied: 2, Rejected: 1, Malformed: 1}, c.Stats)

	r.errs[5] = fmt.Errorf("disk on fire")
	tail := transferLine(5, 5) + "\n" + transferLine(6, 6) + "\n"
	next, err := c.Replay(strings.NewReader(tail), offset)
	assert.Error(t, err)
	assert.Equal(t, offset, next)
}

func TestFollowingWaitsForPartialLines(t *testing.T) {
	r := &recorder{}
	c := New(r, 1000, false)
	c.following = true
	first := transferLine(1, 1) + "\n"
	offset, err := c.Replay(strings.NewReader(first+transferLine(2, 2)), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(len(first)), offset)
	assert.Len(t, r.envs, 1)
}

func TestCheckpointOnDistribution(t *testing.T) {
	var checkpoints []int64
	c := New(&distributor{}, 1000, false)
	c.OnCheckpoint = func(offset int64) { checkpoints = append(checkpoints, offset) }
	first := transferLine(1, 1) + "\n"
	_, err := c.Replay(strings.NewReader(first+transferLine(200, 1)+"\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{int64(len(first))}, checkpoints)
}

// distributor reports an epoch distribution on every tick past height 100.
type distributor struct{}

func (distributor) Seen(int64, string) bool { return false }

func (distributor) Handle(env actions.Envelope) (conductor.Receipt, error) {
	r := conductor.Receipt{Kind: env.Kind, Height: env.Height, Applied: true}
	if env.Height > 100 {
		r.Tick = &conductor.TickReport{Distributions: []*epochs.Distribution{{}}}
	}
	return r, nil
}

func TestRegressionStopsReplay(t *testing.T) {
	cond := newConductor(t)
	_, err := cond.TickTo(500, 1_700_000_500)
	require.NoError(t, err)
	hash := cond.HashSeq().Hash

	c := New(cond, 1000, false)
	first := transferLine(600, 10) + "\n"
	log := first + transferLine(100, 10) + "\n" + transferLine(700, 10) + "\n"
	offset, err := c.Replay(strings.NewReader(log), 0)
	assert.ErrorIs(t, err, arnsmachine.ErrHeightRegression)
	assert.Equal(t, int64(len(first)), offset, "resume at the line that regressed")
	assert.Equal(t, Stats{Applied: 1}, c.Stats)

	l := cond.Snapshot()
	assert.Equal(t, int64(600), l.LastTickedHeight)
	assert.Equal(t, int64(10), l.Balances.Get(bob))
	assert.NotEqual(t, hash, cond.HashSeq().Hash)
}

func TestDuplicatesDoNotDependOnFilterSize(t *testing.T) {
	a, b := []byte(transferLine(1, 10)), []byte(transferLine(2, 20))
	var hashes []string
	for _, capacity := range []uint{1, 1000} {
		cond := newConductor(t)
		c := New(cond, capacity, false)
		for _, line := range [][]byte{a, b, a} {
			_, err := c.Ingest(line)
			require.NoError(t, err)
		}
		assert.Equal(t, Stats{Applied: 2, Duplicates: 1}, c.Stats, "capacity %d", capacity)
		assert.Equal(t, int64(30), cond.Snapshot().Balances.Get(bob))
		hashes = append(hashes, cond.HashSeq().Hash)
	}
	assert.Equal(t, hashes[0], hashes[1])
}

func TestWriterKeepsHeightOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(transferLine(3, 1)+"\nnot json\n"+transferLine(7, 1)+"\n"), 0644))
	w := NewWriter(path)
	h, err := w.Height()
	require.NoError(t, err)
	assert.Equal(t, int64(7), h)

	_, err = w.Append([]byte(transferLine(6, 1)))
	assert.ErrorIs(t, err, ErrOutOfOrder)
	_, err = w.Append([]byte("{"))
	assert.Error(t, err)
	env, err := w.Append([]byte("  " + transferLine(7, 2) + "\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), env.Height)

	c := New(&recorder{}, 1000, false)
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = c.Replay(f, 0)
	require.NoError(t, err)
	assert.Equal(t, Stats{Applied: 3, Malformed: 1}, c.Stats)
}
