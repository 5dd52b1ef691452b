package wal

import (
	"fmt"

	"github.com/GunterMueller/cubrid/mvcc"
)

// RecordType tags each log record with the shape of its body.
type RecordType uint16

const (
	RecSmallerType RecordType = iota
	RecUndoRedoData
	RecUndoData
	RecRedoData
	RecDBExternRedoData
	RecPostpone
	RecRunPostpone
	RecCompensate
	RecDiffUndoRedoData
	RecMvccUndoRedoData
	RecMvccUndoData
	RecMvccRedoData
	RecMvccDiffUndoRedoData
	RecCommit
	RecAbort
	RecDummyHeadPostpone
	RecStartCheckpoint
	RecEndCheckpoint
	RecSaveCurrentPosition
	RecReplication
	RecEndOfLog
	RecLargerType
)

var recordTypeNames = map[RecordType]string{
	RecUndoRedoData:         "undoredo_data",
	RecUndoData:             "undo_data",
	RecRedoData:             "redo_data",
	RecDBExternRedoData:     "dbextern_redo_data",
	RecPostpone:             "postpone",
	RecRunPostpone:          "run_postpone",
	RecCompensate:           "compensate",
	RecDiffUndoRedoData:     "diff_undoredo_data",
	RecMvccUndoRedoData:     "mvcc_undoredo_data",
	RecMvccUndoData:         "mvcc_undo_data",
	RecMvccRedoData:         "mvcc_redo_data",
	RecMvccDiffUndoRedoData: "mvcc_diff_undoredo_data",
	RecCommit:               "commit",
	RecAbort:                "abort",
	RecDummyHeadPostpone:    "dummy_head_postpone",
	RecStartCheckpoint:      "start_checkpoint",
	RecEndCheckpoint:        "end_checkpoint",
	RecSaveCurrentPosition:  "save_current_position",
	RecReplication:          "replication",
	RecEndOfLog:             "end_of_log",
}

func (rt RecordType) String() string {
	if s, ok := recordTypeNames[rt]; ok {
		return s
	}
	return fmt.Sprintf("rectype(%d)", uint16(rt))
}

// RecordHeaderSize is the on-disk size of a record header: three lsas, the
// transaction id and the record type.
const RecordHeaderSize = 3*lsaSize + 4 + 2

// RecordHeader is the fixed header preceding every record body. ForwardLsa
// is the address of the next record in the log; it is the sole mechanism by
// which a reader advances from one record to the next.
type RecordHeader struct {
	PrevTranLsa Lsa // previous record of the same transaction
	BackLsa     Lsa // previous record in the log
	ForwardLsa  Lsa // next record in the log
	TranID      int32
	Type        RecordType
}

func EncodeRecordHeader(buf []byte, hdr RecordHeader) {
	c := coder{buf: buf}
	c.putLsa(hdr.PrevTranLsa)
	c.putLsa(hdr.BackLsa)
	c.putLsa(hdr.ForwardLsa)
	c.putInt32(hdr.TranID)
	c.putUint16(uint16(hdr.Type))
}

func DecodeRecordHeader(buf []byte) (RecordHeader, error) {
	if len(buf) < RecordHeaderSize {
		return RecordHeader{}, fmt.Errorf("wal: short record header: %d bytes", len(buf))
	}
	c := coder{buf: buf}
	return RecordHeader{
		PrevTranLsa: c.lsa(),
		BackLsa:     c.lsa(),
		ForwardLsa:  c.lsa(),
		TranID:      c.int32(),
		Type:        RecordType(c.uint16()),
	}, nil
}

// LogData locates the page and slot a record applies to, and names the
// recovery function that applies it.
type LogData struct {
	RcvIndex int16 // recovery apply function selector
	PageID   int64
	Offset   int16
	VolID    int16
}

const logDataSize = 2 + 8 + 2 + 2

func (c *coder) putLogData(data LogData) {
	c.putInt16(data.RcvIndex)
	c.putInt64(data.PageID)
	c.putInt16(data.Offset)
	c.putInt16(data.VolID)
}

func (c *coder) logData() LogData {
	return LogData{
		RcvIndex: c.int16(),
		PageID:   c.int64(),
		Offset:   c.int16(),
		VolID:    c.int16(),
	}
}

// Record body shapes. Each is a fixed-size structure in the record stream,
// followed by the variable-length payloads its length fields describe. A
// negative length marks a compressed payload; see PayloadLength.

const (
	RecRedoSize         = logDataSize + 4
	RecUndoRedoSize     = logDataSize + 4 + 4
	RecMvccRedoSize     = RecRedoSize + 8
	RecMvccUndoRedoSize = RecUndoRedoSize + 8
	RecRunPostponeSize  = logDataSize + lsaSize + 4
	RecCompensateSize   = logDataSize + lsaSize + 4
	RecDBExternRedoSize = 2 + 4
)

// RecRedo is the body of a REDO_DATA record: an after image only.
type RecRedo struct {
	Data   LogData
	Length int32 // redo payload length
}

// RecUndoRedo is the body of an UNDOREDO_DATA record and of its diff
// variant: a before image followed by an after image.
type RecUndoRedo struct {
	Data    LogData
	ULength int32 // undo payload length
	RLength int32 // redo payload length
}

// RecMvccRedo is a RecRedo carrying the MVCCID of the writing transaction.
type RecMvccRedo struct {
	Redo   RecRedo
	MvccID mvcc.ID
}

// RecMvccUndoRedo is a RecUndoRedo carrying the MVCCID of the writing
// transaction.
type RecMvccUndoRedo struct {
	UndoRedo RecUndoRedo
	MvccID   mvcc.ID
}

// RecRunPostponeBody is the body of a RUN_POSTPONE record; RefLsa addresses
// the postpone record being executed.
type RecRunPostponeBody struct {
	Data   LogData
	RefLsa Lsa
	Length int32 // redo payload length
}

// RecCompensateBody is the body of a COMPENSATE record; UndoNextLsa
// addresses the next record to undo when rolling back.
type RecCompensateBody struct {
	Data        LogData
	UndoNextLsa Lsa
	Length      int32 // redo payload length
}

// RecDBExternRedo is the body of a DBEXTERN_REDO_DATA record: an operation
// outside database page space, applied by the registered recovery function
// alone.
type RecDBExternRedo struct {
	RcvIndex int16
	Length   int32 // redo payload length
}

func EncodeRedo(buf []byte, rec RecRedo) {
	c := coder{buf: buf}
	c.putLogData(rec.Data)
	c.putInt32(rec.Length)
}

func DecodeRedo(buf []byte) (RecRedo, error) {
	if len(buf) < RecRedoSize {
		return RecRedo{}, fmt.Errorf("wal: short redo record: %d bytes", len(buf))
	}
	c := coder{buf: buf}
	return RecRedo{Data: c.logData(), Length: c.int32()}, nil
}

func EncodeUndoRedo(buf []byte, rec RecUndoRedo) {
	c := coder{buf: buf}
	c.putLogData(rec.Data)
	c.putInt32(rec.ULength)
	c.putInt32(rec.RLength)
}

func DecodeUndoRedo(buf []byte) (RecUndoRedo, error) {
	if len(buf) < RecUndoRedoSize {
		return RecUndoRedo{}, fmt.Errorf("wal: short undoredo record: %d bytes", len(buf))
	}
	c := coder{buf: buf}
	return RecUndoRedo{Data: c.logData(), ULength: c.int32(), RLength: c.int32()}, nil
}

func EncodeMvccRedo(buf []byte, rec RecMvccRedo) {
	EncodeRedo(buf, rec.Redo)
	c := coder{buf: buf, off: RecRedoSize}
	c.putUint64(uint64(rec.MvccID))
}

func DecodeMvccRedo(buf []byte) (RecMvccRedo, error) {
	if len(buf) < RecMvccRedoSize {
		return RecMvccRedo{}, fmt.Errorf("wal: short mvcc redo record: %d bytes", len(buf))
	}
	redo, err := DecodeRedo(buf)
	if err != nil {
		return RecMvccRedo{}, err
	}
	c := coder{buf: buf, off: RecRedoSize}
	return RecMvccRedo{Redo: redo, MvccID: mvcc.ID(c.uint64())}, nil
}

func EncodeMvccUndoRedo(buf []byte, rec RecMvccUndoRedo) {
	EncodeUndoRedo(buf, rec.UndoRedo)
	c := coder{buf: buf, off: RecUndoRedoSize}
	c.putUint64(uint64(rec.MvccID))
}

func DecodeMvccUndoRedo(buf []byte) (RecMvccUndoRedo, error) {
	if len(buf) < RecMvccUndoRedoSize {
		return RecMvccUndoRedo{}, fmt.Errorf("wal: short mvcc undoredo record: %d bytes",
			len(buf))
	}
	ur, err := DecodeUndoRedo(buf)
	if err != nil {
		return RecMvccUndoRedo{}, err
	}
	c := coder{buf: buf, off: RecUndoRedoSize}
	return RecMvccUndoRedo{UndoRedo: ur, MvccID: mvcc.ID(c.uint64())}, nil
}

func EncodeRunPostpone(buf []byte, rec RecRunPostponeBody) {
	c := coder{buf: buf}
	c.putLogData(rec.Data)
	c.putLsa(rec.RefLsa)
	c.putInt32(rec.Length)
}

func DecodeRunPostpone(buf []byte) (RecRunPostponeBody, error) {
	if len(buf) < RecRunPostponeSize {
		return RecRunPostponeBody{}, fmt.Errorf("wal: short run postpone record: %d bytes",
			len(buf))
	}
	c := coder{buf: buf}
	return RecRunPostponeBody{Data: c.logData(), RefLsa: c.lsa(), Length: c.int32()}, nil
}

func EncodeCompensate(buf []byte, rec RecCompensateBody) {
	c := coder{buf: buf}
	c.putLogData(rec.Data)
	c.putLsa(rec.UndoNextLsa)
	c.putInt32(rec.Length)
}

func DecodeCompensate(buf []byte) (RecCompensateBody, error) {
	if len(buf) < RecCompensateSize {
		return RecCompensateBody{}, fmt.Errorf("wal: short compensate record: %d bytes",
			len(buf))
	}
	c := coder{buf: buf}
	return RecCompensateBody{Data: c.logData(), UndoNextLsa: c.lsa(), Length: c.int32()}, nil
}

func EncodeDBExternRedo(buf []byte, rec RecDBExternRedo) {
	c := coder{buf: buf}
	c.putInt16(rec.RcvIndex)
	c.putInt32(rec.Length)
}

func DecodeDBExternRedo(buf []byte) (RecDBExternRedo, error) {
	if len(buf) < RecDBExternRedoSize {
		return RecDBExternRedo{}, fmt.Errorf("wal: short dbextern redo record: %d bytes",
			len(buf))
	}
	c := coder{buf: buf}
	return RecDBExternRedo{RcvIndex: c.int16(), Length: c.int32()}, nil
}

// PayloadLength decodes a record length field: a negative value means the
// payload was compressed before logging and abs(length) bytes are stored.
func PayloadLength(length int32) (int, bool) {
	if length < 0 {
		return int(-length), true
	}
	return int(length), false
}
