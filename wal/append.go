package wal

import (
	"fmt"
	"sort"

	"github.com/GunterMueller/cubrid/mvcc"
)

// PagePutter stores assembled log pages. It is how an Appender hands
// finished pages to a page store.
type PagePutter interface {
	PutPage(pageID int64, firstRecord int32, area []byte) error
}

type appendPage struct {
	area        [AreaSize]byte
	firstRecord int32
}

// Appender lays records out in the record stream, mirroring the reader's
// stitching and alignment rules byte for byte. It exists for the log
// producing side of tools and tests; the replication engine itself only
// reads. Pages accumulate in memory until Flush.
type Appender struct {
	pages  map[int64]*appendPage
	pos    Lsa
	prev   Lsa
	tranID int32
}

func NewAppender(start Lsa) *Appender {
	if start.IsNull() || int(start.Offset) >= AreaSize {
		panic(fmt.Sprintf("wal: appender start at %s", start))
	}
	return &Appender{
		pages: map[int64]*appendPage{},
		pos:   start,
		prev:  NullLsa,
	}
}

// Position returns the address at which the next record will be appended.
// After at least one Append, this equals the last record's forward lsa.
func (a *Appender) Position() Lsa {
	return a.pos
}

func (a *Appender) page(pageID int64) *appendPage {
	ap := a.pages[pageID]
	if ap == nil {
		ap = &appendPage{firstRecord: NullFirstRecord}
		a.pages[pageID] = ap
	}
	return ap
}

// endOfRecord computes where the cursor lands after writing a record header
// and body starting at pos, without writing anything. It must follow the
// exact page-crossing rules of Reader.
func endOfRecord(pos Lsa, fit int, parts [][]byte) Lsa {
	pageID, off := pos.PageID, int(pos.Offset)

	copyAligned := func(n int) {
		for n > 0 {
			if off >= AreaSize {
				pageID++
				off = 0
			}
			m := AreaSize - off
			if m > n {
				m = n
			}
			off += m
			n -= m
		}
		off = (off + streamAlign - 1) &^ (streamAlign - 1)
		for off >= AreaSize {
			pageID++
			off -= AreaSize
		}
	}

	copyAligned(RecordHeaderSize)
	if fit > 0 && off+fit > AreaSize {
		pageID++
		off = 0
	}
	for _, p := range parts {
		if len(p) > 0 {
			copyAligned(len(p))
		}
	}
	return Lsa{PageID: pageID, Offset: uint16(off)}
}

func (a *Appender) writeAligned(b []byte) {
	n := 0
	for n < len(b) {
		if int(a.pos.Offset) >= AreaSize {
			a.pos = Lsa{PageID: a.pos.PageID + 1}
		}
		ap := a.page(a.pos.PageID)
		m := copy(ap.area[a.pos.Offset:], b[n:])
		a.pos.Offset += uint16(m)
		n += m
	}
	off := (int(a.pos.Offset) + streamAlign - 1) &^ (streamAlign - 1)
	for off >= AreaSize {
		a.pos.PageID++
		off -= AreaSize
	}
	a.pos.Offset = uint16(off)
}

// Append writes one record and returns its address. fit is the size of the
// fixed body structure, used for the does-not-fit page advance; parts are
// the encoded fixed body followed by its payloads.
func (a *Appender) Append(typ RecordType, fit int, parts ...[]byte) Lsa {
	start := a.pos
	ap := a.page(start.PageID)
	if ap.firstRecord == NullFirstRecord {
		ap.firstRecord = int32(start.Offset)
	}

	forward := endOfRecord(start, fit, parts)
	hdr := make([]byte, RecordHeaderSize)
	EncodeRecordHeader(hdr, RecordHeader{
		PrevTranLsa: NullLsa,
		BackLsa:     a.prev,
		ForwardLsa:  forward,
		TranID:      a.tranID,
		Type:        typ,
	})
	a.writeAligned(hdr)
	if fit > 0 && int(a.pos.Offset)+fit > AreaSize {
		a.pos = Lsa{PageID: a.pos.PageID + 1}
	}
	for _, p := range parts {
		if len(p) > 0 {
			a.writeAligned(p)
		}
	}

	if a.pos != forward {
		panic(fmt.Sprintf("wal: appender at %s, computed forward %s", a.pos, forward))
	}
	a.prev = start
	return start
}

// AppendMarker appends a bodyless record such as a commit or checkpoint
// marker.
func (a *Appender) AppendMarker(typ RecordType) Lsa {
	return a.Append(typ, 0)
}

func (a *Appender) AppendRedo(data LogData, payload []byte) Lsa {
	body := make([]byte, RecRedoSize)
	EncodeRedo(body, RecRedo{Data: data, Length: int32(len(payload))})
	return a.Append(RecRedoData, RecRedoSize, body, payload)
}

func (a *Appender) AppendMvccRedo(data LogData, mvccID mvcc.ID, payload []byte) Lsa {
	body := make([]byte, RecMvccRedoSize)
	EncodeMvccRedo(body, RecMvccRedo{
		Redo:   RecRedo{Data: data, Length: int32(len(payload))},
		MvccID: mvccID,
	})
	return a.Append(RecMvccRedoData, RecMvccRedoSize, body, payload)
}

func (a *Appender) AppendUndoRedo(data LogData, undo, redo []byte) Lsa {
	body := make([]byte, RecUndoRedoSize)
	EncodeUndoRedo(body, RecUndoRedo{
		Data:    data,
		ULength: int32(len(undo)),
		RLength: int32(len(redo)),
	})
	return a.Append(RecUndoRedoData, RecUndoRedoSize, body, undo, redo)
}

func (a *Appender) AppendMvccUndoRedo(data LogData, mvccID mvcc.ID, undo,
	redo []byte) Lsa {

	body := make([]byte, RecMvccUndoRedoSize)
	EncodeMvccUndoRedo(body, RecMvccUndoRedo{
		UndoRedo: RecUndoRedo{
			Data:    data,
			ULength: int32(len(undo)),
			RLength: int32(len(redo)),
		},
		MvccID: mvccID,
	})
	return a.Append(RecMvccUndoRedoData, RecMvccUndoRedoSize, body, undo, redo)
}

func (a *Appender) AppendRunPostpone(data LogData, refLsa Lsa, payload []byte) Lsa {
	body := make([]byte, RecRunPostponeSize)
	EncodeRunPostpone(body, RecRunPostponeBody{
		Data:   data,
		RefLsa: refLsa,
		Length: int32(len(payload)),
	})
	return a.Append(RecRunPostpone, RecRunPostponeSize, body, payload)
}

func (a *Appender) AppendCompensate(data LogData, undoNextLsa Lsa, payload []byte) Lsa {
	body := make([]byte, RecCompensateSize)
	EncodeCompensate(body, RecCompensateBody{
		Data:        data,
		UndoNextLsa: undoNextLsa,
		Length:      int32(len(payload)),
	})
	return a.Append(RecCompensate, RecCompensateSize, body, payload)
}

func (a *Appender) AppendDBExternRedo(rcvIndex int16, payload []byte) Lsa {
	body := make([]byte, RecDBExternRedoSize)
	EncodeDBExternRedo(body, RecDBExternRedo{
		RcvIndex: rcvIndex,
		Length:   int32(len(payload)),
	})
	return a.Append(RecDBExternRedoData, RecDBExternRedoSize, body, payload)
}

// SetTranID sets the transaction id stamped on subsequently appended
// records.
func (a *Appender) SetTranID(tranID int32) {
	a.tranID = tranID
}

// Flush hands every page touched so far to the putter in page id order. The
// appender remains usable; pages already flushed are flushed again if
// touched after the fact.
func (a *Appender) Flush(putter PagePutter) error {
	ids := make([]int64, 0, len(a.pages))
	for pageID := range a.pages {
		ids = append(ids, pageID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, pageID := range ids {
		ap := a.pages[pageID]
		err := putter.PutPage(pageID, ap.firstRecord, ap.area[:])
		if err != nil {
			return err
		}
	}
	return nil
}
