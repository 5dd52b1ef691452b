// Package repl is the redo apply engine that keeps a replica current: a
// background daemon reads log records from the current redo position up to
// the published durable boundary and reapplies them, in log order, through
// the registered recovery functions.
package repl

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/GunterMueller/cubrid/mvcc"
	"github.com/GunterMueller/cubrid/recovery"
	"github.com/GunterMueller/cubrid/wal"
)

// idleInterval is how long the daemon sleeps when there is no new durable
// log to apply. A liveness parameter, not a correctness one.
const idleInterval = time.Millisecond

// scratch is a reusable payload staging buffer, grown on demand so record
// application does not allocate per record.
type scratch struct {
	data []byte
}

func (s *scratch) stage(b []byte) []byte {
	if cap(s.data) < len(b) {
		s.data = make([]byte, len(b))
	}
	s.data = s.data[:len(b)]
	copy(s.data, b)
	return s.data
}

// Replicator advances the local redo position to the durable boundary
// published in the shared log state. The daemon goroutine is the only
// writer of the redo position; any number of goroutines may block on it
// through WaitFor and WaitUntilCaughtUp.
type Replicator struct {
	state    *wal.State
	reader   *wal.Reader
	registry *recovery.Registry
	logger   *log.Logger

	mutex   sync.Mutex
	cond    *sync.Cond
	redoLsa wal.Lsa
	err     error

	undoArea scratch
	redoArea scratch

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New starts a replicator at the given redo position. The daemon runs until
// Close; fetcher supplies log pages and registry the apply functions.
func New(state *wal.State, fetcher wal.PageFetcher, registry *recovery.Registry,
	start wal.Lsa, logger *log.Logger) *Replicator {

	if start.IsNull() {
		panic("repl: replicator started at null lsa")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Replicator{
		state:    state,
		reader:   wal.NewReader(fetcher),
		registry: registry,
		logger:   logger,
		redoLsa:  start,
		ctx:      ctx,
		cancel:   cancel,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mutex)

	logger.WithField("lsa", start.String()).Info("replicator starting")
	go r.daemon()
	return r
}

func (r *Replicator) daemon() {
	defer close(r.done)

	tick := time.NewTicker(idleInterval)
	defer tick.Stop()

	for {
		err := r.catchUp()
		if err != nil {
			r.fail(err)
			return
		}

		select {
		case <-r.stop:
			return
		case <-tick.C:
		}
	}
}

// catchUp applies records until the redo position reaches the durable
// boundary, re-reading the boundary after each bounded pass because it may
// have advanced during apply.
func (r *Replicator) catchUp() error {
	for {
		end := r.state.DurableLsa()
		if end.IsNull() {
			return nil
		}

		cur := r.Progress()
		if !cur.Less(end) {
			if cur != end {
				panic(fmt.Sprintf("repl: redo position %s past durable boundary %s",
					cur, end))
			}
			return nil
		}

		err := r.redoUpTo(end)
		if err != nil {
			return err
		}
	}
}

// redoUpTo applies every record from the redo position, exclusive, up to
// end, inclusive. The starting page is force fetched: a cached copy taken
// before the log grew could hide records appended to it since.
func (r *Replicator) redoUpTo(end wal.Lsa) error {
	cur := r.Progress()
	if !cur.Less(end) {
		panic(fmt.Sprintf("repl: redo up to %s from %s", end, cur))
	}

	err := r.reader.SetPosition(cur, wal.FetchForce)
	if err != nil {
		return err
	}

	for cur.Less(end) {
		err = r.reader.SetPosition(cur, wal.FetchCached)
		if err != nil {
			return err
		}

		buf, err := r.reader.CopyAligned(wal.RecordHeaderSize)
		if err != nil {
			return err
		}
		hdr, err := wal.DecodeRecordHeader(buf)
		if err != nil {
			return err
		}

		err = r.dispatch(hdr, cur)
		if err != nil {
			return fmt.Errorf("repl: record %s at %s: %s", hdr.Type, cur, err)
		}

		if hdr.ForwardLsa.IsNull() || !cur.Less(hdr.ForwardLsa) {
			return fmt.Errorf("repl: record %s at %s: forward lsa %s does not advance",
				hdr.Type, cur, hdr.ForwardLsa)
		}
		cur = hdr.ForwardLsa
		r.advanceTo(cur)
	}
	return nil
}

// dispatch routes one record to its typed apply path. Record types with no
// redo relevance are passed over silently.
func (r *Replicator) dispatch(hdr wal.RecordHeader, recLsa wal.Lsa) error {
	switch hdr.Type {
	case wal.RecRedoData, wal.RecMvccRedoData:
		rec, mvccID, err := r.readRedo(hdr.Type)
		if err != nil {
			return err
		}
		return r.apply(hdr.Type, recLsa, rec.Data, mvccID, 0, rec.Length, false)

	case wal.RecUndoRedoData, wal.RecDiffUndoRedoData:
		rec, err := r.readUndoRedo()
		if err != nil {
			return err
		}
		return r.apply(hdr.Type, recLsa, rec.Data, mvcc.Null, rec.ULength, rec.RLength,
			hdr.Type == wal.RecDiffUndoRedoData)

	case wal.RecMvccUndoRedoData, wal.RecMvccDiffUndoRedoData:
		rec, err := r.readMvccUndoRedo()
		if err != nil {
			return err
		}
		return r.apply(hdr.Type, recLsa, rec.UndoRedo.Data, rec.MvccID,
			rec.UndoRedo.ULength, rec.UndoRedo.RLength,
			hdr.Type == wal.RecMvccDiffUndoRedoData)

	case wal.RecRunPostpone:
		rec, err := r.readRunPostpone()
		if err != nil {
			return err
		}
		return r.apply(hdr.Type, recLsa, rec.Data, mvcc.Null, 0, rec.Length, false)

	case wal.RecCompensate:
		rec, err := r.readCompensate()
		if err != nil {
			return err
		}
		return r.apply(hdr.Type, recLsa, rec.Data, mvcc.Null, 0, rec.Length, false)

	case wal.RecDBExternRedoData:
		return r.applyDBExtern(recLsa)

	default:
		return nil
	}
}

func (r *Replicator) readBody(size int) ([]byte, error) {
	err := r.reader.AdvanceWhenDoesNotFit(size)
	if err != nil {
		return nil, err
	}
	return r.reader.CopyAligned(size)
}

func (r *Replicator) readRedo(typ wal.RecordType) (wal.RecRedo, mvcc.ID, error) {
	if typ == wal.RecMvccRedoData {
		buf, err := r.readBody(wal.RecMvccRedoSize)
		if err != nil {
			return wal.RecRedo{}, mvcc.Null, err
		}
		rec, err := wal.DecodeMvccRedo(buf)
		if err != nil {
			return wal.RecRedo{}, mvcc.Null, err
		}
		return rec.Redo, rec.MvccID, nil
	}

	buf, err := r.readBody(wal.RecRedoSize)
	if err != nil {
		return wal.RecRedo{}, mvcc.Null, err
	}
	rec, err := wal.DecodeRedo(buf)
	return rec, mvcc.Null, err
}

func (r *Replicator) readUndoRedo() (wal.RecUndoRedo, error) {
	buf, err := r.readBody(wal.RecUndoRedoSize)
	if err != nil {
		return wal.RecUndoRedo{}, err
	}
	return wal.DecodeUndoRedo(buf)
}

func (r *Replicator) readMvccUndoRedo() (wal.RecMvccUndoRedo, error) {
	buf, err := r.readBody(wal.RecMvccUndoRedoSize)
	if err != nil {
		return wal.RecMvccUndoRedo{}, err
	}
	return wal.DecodeMvccUndoRedo(buf)
}

func (r *Replicator) readRunPostpone() (wal.RecRunPostponeBody, error) {
	buf, err := r.readBody(wal.RecRunPostponeSize)
	if err != nil {
		return wal.RecRunPostponeBody{}, err
	}
	return wal.DecodeRunPostpone(buf)
}

func (r *Replicator) readCompensate() (wal.RecCompensateBody, error) {
	buf, err := r.readBody(wal.RecCompensateSize)
	if err != nil {
		return wal.RecCompensateBody{}, err
	}
	return wal.DecodeCompensate(buf)
}

// apply finishes one typed record: ratchets the MVCC watermark past the
// record's transaction id, stages the payloads, and invokes the registered
// apply function. The watermark must end up higher than every id applied,
// or visibility computations on a reader of this store would be stale.
func (r *Replicator) apply(typ wal.RecordType, recLsa wal.Lsa, data wal.LogData,
	mvccID mvcc.ID, uLength, rLength int32, diff bool) error {

	r.state.AdvanceMvccPast(mvccID)

	uLen, _ := wal.PayloadLength(uLength)
	var before []byte
	if uLen > 0 {
		if diff {
			// The before image is needed to reconstruct the after image
			// of a diff record.
			buf, err := r.reader.CopyAligned(uLen)
			if err != nil {
				return err
			}
			before = r.undoArea.stage(buf)
		} else {
			err := r.reader.SkipAligned(uLen)
			if err != nil {
				return err
			}
		}
	}

	rLen, zipped := wal.PayloadLength(rLength)
	var payload []byte
	if rLen > 0 {
		buf, err := r.reader.CopyAligned(rLen)
		if err != nil {
			return err
		}
		payload = r.redoArea.stage(buf)
	}

	fn, ok := r.registry.Lookup(recovery.Index(data.RcvIndex))
	if !ok {
		return fmt.Errorf("no apply function for recovery index %d", data.RcvIndex)
	}

	return fn(r.ctx, &recovery.Rcv{
		Lsa:    recLsa,
		Type:   typ,
		VolID:  data.VolID,
		PageID: data.PageID,
		Offset: data.Offset,
		Data:   payload,
		Before: before,
		Zipped: zipped,
	})
}

// applyDBExtern handles a record describing an operation outside database
// page space: the registered function is handed the raw payload directly,
// bypassing the typed apply path.
func (r *Replicator) applyDBExtern(recLsa wal.Lsa) error {
	buf, err := r.readBody(wal.RecDBExternRedoSize)
	if err != nil {
		return err
	}
	rec, err := wal.DecodeDBExternRedo(buf)
	if err != nil {
		return err
	}

	length, zipped := wal.PayloadLength(rec.Length)
	var payload []byte
	if length > 0 {
		buf, err = r.reader.CopyAligned(length)
		if err != nil {
			return err
		}
		payload = r.redoArea.stage(buf)
	}

	fn, ok := r.registry.Lookup(recovery.Index(rec.RcvIndex))
	if !ok {
		return fmt.Errorf("no apply function for recovery index %d", rec.RcvIndex)
	}

	return fn(r.ctx, &recovery.Rcv{
		Lsa:    recLsa,
		Type:   wal.RecDBExternRedoData,
		Data:   payload,
		Zipped: zipped,
	})
}

// advanceTo publishes a new redo position and wakes every waiter. Waking on
// every record, not only when a bounded pass completes, releases waiters
// with an earlier target promptly.
func (r *Replicator) advanceTo(lsa wal.Lsa) {
	r.mutex.Lock()
	r.redoLsa = lsa
	r.mutex.Unlock()

	r.cond.Broadcast()
}

func (r *Replicator) fail(err error) {
	r.logger.WithField("error", err.Error()).Error("replicator stopped")

	r.mutex.Lock()
	r.err = err
	r.mutex.Unlock()

	// Waiters must not hang on a dead engine.
	r.cond.Broadcast()
}

// Progress returns the current redo position.
func (r *Replicator) Progress() wal.Lsa {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.redoLsa
}

// Err returns the error that stopped the daemon, if any.
func (r *Replicator) Err() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.err
}

// WaitFor blocks until the redo position is at least target, re-checking
// under the lock on every wake. It returns early with the daemon's error if
// the daemon stopped.
func (r *Replicator) WaitFor(target wal.Lsa) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for r.err == nil && r.redoLsa.Less(target) {
		r.cond.Wait()
	}
	return r.err
}

// WaitUntilCaughtUp blocks until the redo position reaches the durable
// boundary observed at the time of the call.
func (r *Replicator) WaitUntilCaughtUp() error {
	return r.WaitFor(r.state.DurableLsa())
}

// Close stops the daemon and joins it. No partial record state is left
// behind: the daemon only stops between full record applications.
func (r *Replicator) Close() error {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
	r.cancel()

	r.logger.WithField("lsa", r.Progress().String()).Info("replicator stopped")
	return r.Err()
}
