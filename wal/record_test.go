package wal_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GunterMueller/cubrid/wal"
)

func TestRecordHeaderCodec(t *testing.T) {
	hdr := wal.RecordHeader{
		PrevTranLsa: wal.Lsa{PageID: 9, Offset: 120},
		BackLsa:     wal.Lsa{PageID: 10, Offset: 0},
		ForwardLsa:  wal.Lsa{PageID: 10, Offset: 64},
		TranID:      17,
		Type:        wal.RecMvccRedoData,
	}

	buf := make([]byte, wal.RecordHeaderSize)
	wal.EncodeRecordHeader(buf, hdr)
	got, err := wal.DecodeRecordHeader(buf)
	require.NoError(t, err)
	require.Equal(t, hdr, got)

	_, err = wal.DecodeRecordHeader(buf[:wal.RecordHeaderSize-1])
	require.Error(t, err)
}

func TestMvccUndoRedoCodec(t *testing.T) {
	rec := wal.RecMvccUndoRedo{
		UndoRedo: wal.RecUndoRedo{
			Data: wal.LogData{
				RcvIndex: 3,
				PageID:   472,
				Offset:   96,
				VolID:    1,
			},
			ULength: 40,
			RLength: -56, // compressed after image
		},
		MvccID: 10001,
	}

	buf := make([]byte, wal.RecMvccUndoRedoSize)
	wal.EncodeMvccUndoRedo(buf, rec)
	got, err := wal.DecodeMvccUndoRedo(buf)
	require.NoError(t, err)
	require.Equal(t, rec, got)

	length, zipped := wal.PayloadLength(got.UndoRedo.RLength)
	require.Equal(t, 56, length)
	require.True(t, zipped)

	length, zipped = wal.PayloadLength(got.UndoRedo.ULength)
	require.Equal(t, 40, length)
	require.False(t, zipped)
}

func TestDBExternRedoCodec(t *testing.T) {
	rec := wal.RecDBExternRedo{
		RcvIndex: 12,
		Length:   80,
	}

	buf := make([]byte, wal.RecDBExternRedoSize)
	wal.EncodeDBExternRedo(buf, rec)
	got, err := wal.DecodeDBExternRedo(buf)
	require.NoError(t, err)
	require.Equal(t, rec, got)
}

func TestRunPostponeCodec(t *testing.T) {
	rec := wal.RecRunPostponeBody{
		Data:   wal.LogData{RcvIndex: 4, PageID: 31, Offset: 16, VolID: 1},
		RefLsa: wal.Lsa{PageID: 30, Offset: 512},
		Length: 24,
	}
	require.Equal(t, "run_postpone", wal.RecRunPostpone.String())

	buf := make([]byte, wal.RecRunPostponeSize)
	wal.EncodeRunPostpone(buf, rec)
	got, err := wal.DecodeRunPostpone(buf)
	require.NoError(t, err)
	require.Equal(t, rec, got)
}

func TestCompensateCodec(t *testing.T) {
	rec := wal.RecCompensateBody{
		Data:        wal.LogData{RcvIndex: 2, PageID: 88, Offset: 8, VolID: 0},
		UndoNextLsa: wal.Lsa{PageID: 87, Offset: 1024},
		Length:      16,
	}

	buf := make([]byte, wal.RecCompensateSize)
	wal.EncodeCompensate(buf, rec)
	got, err := wal.DecodeCompensate(buf)
	require.NoError(t, err)
	require.Equal(t, rec, got)
}
