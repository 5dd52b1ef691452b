package repl_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/GunterMueller/cubrid/mvcc"
	"github.com/GunterMueller/cubrid/pagestore"
	"github.com/GunterMueller/cubrid/recovery"
	"github.com/GunterMueller/cubrid/repl"
	"github.com/GunterMueller/cubrid/testutil"
	"github.com/GunterMueller/cubrid/wal"
)

const (
	idxTrack recovery.Index = 100 + iota
	idxExtern
	idxFail
)

type applied struct {
	lsa    wal.Lsa
	typ    wal.RecordType
	pageID int64
	data   []byte
	before []byte
}

type tracker struct {
	mutex sync.Mutex
	calls []applied
}

func (tr *tracker) apply(ctx context.Context, rcv *recovery.Rcv) error {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()

	tr.calls = append(tr.calls, applied{
		lsa:    rcv.Lsa,
		typ:    rcv.Type,
		pageID: rcv.PageID,
		data:   append([]byte(nil), rcv.Data...),
		before: append([]byte(nil), rcv.Before...),
	})
	return nil
}

func (tr *tracker) applied() []applied {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()

	return append([]applied(nil), tr.calls...)
}

type countingFetcher struct {
	st      *pagestore.Store
	mutex   sync.Mutex
	fetches int
}

func (cf *countingFetcher) FetchPage(pageID int64) ([]byte, error) {
	cf.mutex.Lock()
	cf.fetches += 1
	cf.mutex.Unlock()

	return cf.st.FetchPage(pageID)
}

func (cf *countingFetcher) count() int {
	cf.mutex.Lock()
	defer cf.mutex.Unlock()

	return cf.fetches
}

type env struct {
	st      *pagestore.Store
	fetcher *countingFetcher
	state   *wal.State
	tracker *tracker
	reg     *recovery.Registry
	logger  *log.Logger
}

func makeEnv(t *testing.T) *env {
	t.Helper()

	logger := testutil.SetupLogger(filepath.Join("testdata", "repl.log"))
	st := pagestore.NewStore(pagestore.MakeMemoryKV(), logger)
	tr := &tracker{}
	b := recovery.NewBuilder()
	b.Register(idxTrack, tr.apply)
	b.Register(idxExtern, tr.apply)
	b.Register(idxFail,
		func(ctx context.Context, rcv *recovery.Rcv) error {
			return errors.New("apply rejected")
		})

	return &env{
		st:      st,
		fetcher: &countingFetcher{st: st},
		state: wal.NewState(&wal.Header{
			Magic:      wal.LogMagic,
			MvccNextID: mvcc.Null,
			AppendLsa:  wal.NullLsa,
			ChkptLsa:   wal.NullLsa,
			EofLsa:     wal.NullLsa,
		}),
		tracker: tr,
		reg:     b.Build(),
		logger:  logger,
	}
}

func TestCatchUp(t *testing.T) {
	e := makeEnv(t)
	start := wal.Lsa{PageID: 10, Offset: 0}

	a := wal.NewAppender(start)
	rec1 := a.AppendMvccUndoRedo(wal.LogData{RcvIndex: int16(idxTrack), PageID: 70},
		100, []byte("before70"), []byte("after70"))
	rec2 := a.AppendRedo(wal.LogData{RcvIndex: int16(idxTrack), PageID: 71},
		[]byte("after71"))
	boundary := a.Position()
	if err := a.Flush(e.st); err != nil {
		t.Fatal(err)
	}

	r := repl.New(e.state, e.fetcher, e.reg, start, e.logger)
	defer r.Close()

	// Waiters issued while progress is behind the boundary.
	released := make(chan int, 4)
	for w := 0; w < 4; w += 1 {
		go func(w int) {
			err := r.WaitFor(boundary)
			if err != nil {
				t.Error(err)
			}
			released <- w
		}(w)
	}

	// Progress observations must be non-decreasing and land only on record
	// boundaries.
	valid := map[wal.Lsa]struct{}{start: {}, rec2: {}, boundary: {}}
	samples := make(chan []wal.Lsa, 1)
	go func() {
		var seen []wal.Lsa
		for {
			lsa := r.Progress()
			seen = append(seen, lsa)
			if lsa == boundary {
				samples <- seen
				return
			}
		}
	}()

	select {
	case <-released:
		t.Fatal("waiter released before the boundary was published")
	case <-time.After(20 * time.Millisecond):
	}

	e.state.SetDurableLsa(boundary)
	if err := r.WaitUntilCaughtUp(); err != nil {
		t.Fatal(err)
	}

	if got := r.Progress(); got != boundary {
		t.Errorf("Progress() got %s want %s", got, boundary)
	}
	if id := e.state.MvccNextID(); !mvcc.IDPrecedes(100, id) {
		t.Errorf("MvccNextID() got %d want > 100", id)
	}

	calls := e.tracker.applied()
	if len(calls) != 2 {
		t.Fatalf("applied %d records want 2", len(calls))
	}
	if calls[0].lsa != rec1 || calls[0].typ != wal.RecMvccUndoRedoData ||
		calls[0].pageID != 70 || !bytes.Equal(calls[0].data, []byte("after70")) {
		t.Errorf("first apply got %+v", calls[0])
	}
	if len(calls[0].before) != 0 {
		t.Errorf("non-diff record carried a before image: %q", calls[0].before)
	}
	if calls[1].lsa != rec2 || calls[1].typ != wal.RecRedoData ||
		!bytes.Equal(calls[1].data, []byte("after71")) {
		t.Errorf("second apply got %+v", calls[1])
	}

	for w := 0; w < 4; w += 1 {
		select {
		case <-released:
		case <-time.After(time.Second):
			t.Fatal("waiter not released")
		}
	}

	for _, lsa := range <-samples {
		if _, ok := valid[lsa]; !ok {
			t.Errorf("observed progress %s, not a record boundary", lsa)
		}
	}
}

func TestNoOpBelowBoundary(t *testing.T) {
	e := makeEnv(t)
	start := wal.Lsa{PageID: 4, Offset: 0}
	e.state.SetDurableLsa(start)

	r := repl.New(e.state, e.fetcher, e.reg, start, e.logger)
	defer r.Close()

	if err := r.WaitUntilCaughtUp(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	if n := e.fetcher.count(); n != 0 {
		t.Errorf("caught up daemon fetched %d pages", n)
	}
	if n := len(e.tracker.applied()); n != 0 {
		t.Errorf("caught up daemon applied %d records", n)
	}
}

func TestUnknownTagSkip(t *testing.T) {
	e := makeEnv(t)
	start := wal.Lsa{PageID: 20, Offset: 0}

	a := wal.NewAppender(start)
	a.AppendRedo(wal.LogData{RcvIndex: int16(idxTrack), PageID: 1}, []byte("one"))
	a.AppendMarker(wal.RecordType(77))
	a.AppendMarker(wal.RecCommit)
	a.AppendRedo(wal.LogData{RcvIndex: int16(idxTrack), PageID: 2}, []byte("two"))
	boundary := a.Position()
	if err := a.Flush(e.st); err != nil {
		t.Fatal(err)
	}

	r := repl.New(e.state, e.fetcher, e.reg, start, e.logger)
	defer r.Close()

	e.state.SetDurableLsa(boundary)
	if err := r.WaitUntilCaughtUp(); err != nil {
		t.Fatal(err)
	}

	if got := r.Progress(); got != boundary {
		t.Errorf("Progress() got %s want %s", got, boundary)
	}
	calls := e.tracker.applied()
	if len(calls) != 2 {
		t.Fatalf("applied %d records want 2", len(calls))
	}
	if id := e.state.MvccNextID(); id != mvcc.Null {
		t.Errorf("markers moved the watermark to %d", id)
	}
}

func TestMvccRatchet(t *testing.T) {
	e := makeEnv(t)
	start := wal.Lsa{PageID: 30, Offset: 0}

	// Out of order ids, as written by concurrently committing transactions.
	a := wal.NewAppender(start)
	for _, id := range []mvcc.ID{5, 3, 9, 2} {
		a.AppendMvccRedo(wal.LogData{RcvIndex: int16(idxTrack), PageID: 1}, id,
			[]byte{byte(id)})
	}
	boundary := a.Position()
	if err := a.Flush(e.st); err != nil {
		t.Fatal(err)
	}

	r := repl.New(e.state, e.fetcher, e.reg, start, e.logger)
	defer r.Close()

	e.state.SetDurableLsa(boundary)
	if err := r.WaitUntilCaughtUp(); err != nil {
		t.Fatal(err)
	}

	if id := e.state.MvccNextID(); id != 10 {
		t.Errorf("MvccNextID() got %d want 10", id)
	}
}

func TestDiffRecord(t *testing.T) {
	e := makeEnv(t)
	start := wal.Lsa{PageID: 40, Offset: 0}

	undo := []byte("old image")
	redo := []byte("xor delta")
	body := make([]byte, wal.RecUndoRedoSize)
	wal.EncodeUndoRedo(body, wal.RecUndoRedo{
		Data:    wal.LogData{RcvIndex: int16(idxTrack), PageID: 9},
		ULength: int32(len(undo)),
		RLength: int32(len(redo)),
	})
	a := wal.NewAppender(start)
	a.Append(wal.RecDiffUndoRedoData, wal.RecUndoRedoSize, body, undo, redo)
	boundary := a.Position()
	if err := a.Flush(e.st); err != nil {
		t.Fatal(err)
	}

	r := repl.New(e.state, e.fetcher, e.reg, start, e.logger)
	defer r.Close()

	e.state.SetDurableLsa(boundary)
	if err := r.WaitUntilCaughtUp(); err != nil {
		t.Fatal(err)
	}

	calls := e.tracker.applied()
	if len(calls) != 1 {
		t.Fatalf("applied %d records want 1", len(calls))
	}
	if !bytes.Equal(calls[0].before, undo) {
		t.Errorf("diff record before image got %q want %q", calls[0].before, undo)
	}
	if !bytes.Equal(calls[0].data, redo) {
		t.Errorf("diff record after image got %q want %q", calls[0].data, redo)
	}
}

func TestDBExternRecord(t *testing.T) {
	e := makeEnv(t)
	start := wal.Lsa{PageID: 50, Offset: 0}

	a := wal.NewAppender(start)
	at := a.AppendDBExternRedo(int16(idxExtern), []byte("raw external payload"))
	boundary := a.Position()
	if err := a.Flush(e.st); err != nil {
		t.Fatal(err)
	}

	r := repl.New(e.state, e.fetcher, e.reg, start, e.logger)
	defer r.Close()

	e.state.SetDurableLsa(boundary)
	if err := r.WaitUntilCaughtUp(); err != nil {
		t.Fatal(err)
	}

	calls := e.tracker.applied()
	if len(calls) != 1 {
		t.Fatalf("applied %d records want 1", len(calls))
	}
	if calls[0].lsa != at || calls[0].typ != wal.RecDBExternRedoData ||
		!bytes.Equal(calls[0].data, []byte("raw external payload")) {
		t.Errorf("dbextern apply got %+v", calls[0])
	}
	if id := e.state.MvccNextID(); id != mvcc.Null {
		t.Errorf("dbextern record moved the watermark to %d", id)
	}
}

func TestApplyFailureStopsEngine(t *testing.T) {
	e := makeEnv(t)
	start := wal.Lsa{PageID: 60, Offset: 0}

	a := wal.NewAppender(start)
	a.AppendRedo(wal.LogData{RcvIndex: int16(idxTrack), PageID: 1}, []byte("good"))
	bad := a.AppendRedo(wal.LogData{RcvIndex: int16(idxFail), PageID: 2}, []byte("bad"))
	a.AppendRedo(wal.LogData{RcvIndex: int16(idxTrack), PageID: 3}, []byte("never"))
	boundary := a.Position()
	if err := a.Flush(e.st); err != nil {
		t.Fatal(err)
	}

	r := repl.New(e.state, e.fetcher, e.reg, start, e.logger)

	e.state.SetDurableLsa(boundary)
	err := r.WaitUntilCaughtUp()
	if err == nil {
		t.Fatal("WaitUntilCaughtUp() did not fail")
	}

	// The failing record was never passed; progress stopped at its start.
	if got := r.Progress(); got != bad {
		t.Errorf("Progress() got %s want %s", got, bad)
	}
	calls := e.tracker.applied()
	if len(calls) != 1 {
		t.Errorf("applied %d records want 1", len(calls))
	}

	err = r.Close()
	if err == nil {
		t.Error("Close() did not report the daemon error")
	}
}

func TestRecordEndingAtPageBoundary(t *testing.T) {
	e := makeEnv(t)
	start := wal.Lsa{PageID: 70, Offset: 0}

	// One record filling its page to the last aligned slot, so its forward
	// lsa points into the next page, which the log writer never produced.
	a := wal.NewAppender(start)
	at := a.AppendRedo(wal.LogData{RcvIndex: int16(idxTrack), PageID: 8},
		bytes.Repeat([]byte{0x7D}, 16300))
	boundary := a.Position()
	if boundary.PageID != start.PageID+1 {
		t.Fatalf("record forward lsa %s stayed on page %d", boundary, start.PageID)
	}
	if err := a.Flush(e.st); err != nil {
		t.Fatal(err)
	}
	if _, err := e.st.FetchPage(boundary.PageID); err == nil {
		t.Fatalf("page %d exists; the log must end on page %d", boundary.PageID,
			start.PageID)
	}

	r := repl.New(e.state, e.fetcher, e.reg, start, e.logger)
	defer r.Close()

	e.state.SetDurableLsa(boundary)
	if err := r.WaitUntilCaughtUp(); err != nil {
		t.Fatal(err)
	}

	if got := r.Progress(); got != boundary {
		t.Errorf("Progress() got %s want %s", got, boundary)
	}
	calls := e.tracker.applied()
	if len(calls) != 1 {
		t.Fatalf("applied %d records want 1", len(calls))
	}
	if calls[0].lsa != at {
		t.Errorf("apply got lsa %s want %s", calls[0].lsa, at)
	}
}

func TestBoundaryAdvancesDuringApply(t *testing.T) {
	e := makeEnv(t)
	start := wal.Lsa{PageID: 80, Offset: 0}

	a := wal.NewAppender(start)
	var bounds []wal.Lsa
	for i := 0; i < 50; i += 1 {
		a.AppendRedo(wal.LogData{RcvIndex: int16(idxTrack), PageID: int64(i)},
			bytes.Repeat([]byte{byte(i)}, 200))
		bounds = append(bounds, a.Position())
	}
	if err := a.Flush(e.st); err != nil {
		t.Fatal(err)
	}

	r := repl.New(e.state, e.fetcher, e.reg, start, e.logger)
	defer r.Close()

	// Publish the durable boundary in bursts, as a log writer would.
	for _, b := range bounds {
		e.state.SetDurableLsa(b)
		if err := r.WaitFor(b); err != nil {
			t.Fatal(err)
		}
		// Progress may run ahead to a later published boundary but never
		// past the highest one.
		if got, last := r.Progress(), e.state.DurableLsa(); last.Less(got) {
			t.Fatalf("progress %s past boundary %s", got, last)
		}
	}

	if err := r.WaitUntilCaughtUp(); err != nil {
		t.Fatal(err)
	}
	if got := r.Progress(); got != bounds[len(bounds)-1] {
		t.Errorf("Progress() got %s want %s", got, bounds[len(bounds)-1])
	}
	if n := len(e.tracker.applied()); n != 50 {
		t.Errorf("applied %d records want 50", n)
	}
}

func TestWaitersManyTargets(t *testing.T) {
	e := makeEnv(t)
	start := wal.Lsa{PageID: 90, Offset: 0}

	a := wal.NewAppender(start)
	var recs []wal.Lsa
	for i := 0; i < 10; i += 1 {
		a.AppendRedo(wal.LogData{RcvIndex: int16(idxTrack), PageID: int64(i)},
			[]byte(fmt.Sprintf("record %d", i)))
		recs = append(recs, a.Position())
	}
	boundary := a.Position()
	if err := a.Flush(e.st); err != nil {
		t.Fatal(err)
	}

	r := repl.New(e.state, e.fetcher, e.reg, start, e.logger)
	defer r.Close()

	var wg sync.WaitGroup
	for _, target := range recs {
		wg.Add(1)
		go func(target wal.Lsa) {
			defer wg.Done()

			err := r.WaitFor(target)
			if err != nil {
				t.Error(err)
			}
			if got := r.Progress(); got.Less(target) {
				t.Errorf("released at %s before target %s", got, target)
			}
		}(target)
	}

	e.state.SetDurableLsa(boundary)
	wg.Wait()

	if err := r.WaitUntilCaughtUp(); err != nil {
		t.Fatal(err)
	}
}
