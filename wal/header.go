package wal

import (
	"fmt"
	"math"

	"github.com/GunterMueller/cubrid/mvcc"
)

const (
	// LogMagic and ArchiveMagic identify the active log and an archive
	// file; both are validated when a header is decoded.
	LogMagic     = "CUBRID/LogActive"
	ArchiveMagic = "CUBRID/LogArchive"

	magicMaxLength   = 32
	releaseMaxLength = 40
	prefixMaxLength  = 24
)

// BackupLevelInfo carries the metrics recorded for one backup level. The io
// estimates are heuristics kept for layout stability; this engine only
// reads them.
type BackupLevelInfo struct {
	AtTime          int64 // timestamp when the backup lsa was taken
	IoBaselineTime  int64
	IoBackupTime    int64
	DirtyPagesSince int32
	NumPages        int32
}

const backupLevelInfoSize = 8 + 8 + 8 + 4 + 4

// BackupLevels is the number of backup levels tracked in the log header.
const BackupLevels = 3

// Header is the durable log header, stored on the header page of the active
// log. The replication engine reads it; the log writing and archiving
// subsystems maintain it.
type Header struct {
	Magic                 string
	DbCreation            int64
	DbRelease             string
	DbCompatibility       float32
	DbPageSize            int32
	LogPageSize           int32
	IsShutdown            bool
	NextTranID            int32
	MvccNextID            mvcc.ID
	NumPages              int32 // pages in the active log, header page excluded
	FirstPageID           int64 // logical page id at physical location 1
	AppendLsa             Lsa
	ChkptLsa              Lsa
	EofLsa                Lsa
	NextArchivePageID     int64
	NextArchiveNum        int32
	LastDeletedArchiveNum int32
	BackupLsa             [BackupLevels]Lsa
	BackupInfo            [BackupLevels]BackupLevelInfo
	PrefixName            string
	VacuumLastBlockID     int64
	LastBlockOldestMvccID mvcc.ID
	LastBlockNewestMvccID mvcc.ID
	HaServerState         int32
	HaFileStatus          int32
	HaPromotionTime       int64
	DbRestoreTime         int64
	StreamAckPosition     uint64
}

// HeaderSize is the on-disk size of the log header.
const HeaderSize = magicMaxLength + // magic
	8 + // db creation
	releaseMaxLength + // db release
	4 + // db compatibility
	4 + 4 + // db page size, log page size
	1 + // is shutdown
	4 + // next tran id
	8 + // mvcc next id
	4 + // num pages
	8 + // first page id
	3*lsaSize + // append, chkpt, eof lsas
	8 + 4 + 4 + // archive bookkeeping
	BackupLevels*lsaSize +
	BackupLevels*backupLevelInfoSize +
	prefixMaxLength +
	8 + // vacuum last block id
	8 + 8 + // last block oldest/newest mvccid
	4 + 4 + // ha server state, ha file status
	8 + 8 + // ha promotion time, db restore time
	8 // stream ack position

// EncodeHeader serializes the log header into buf, which must hold at least
// HeaderSize bytes.
func EncodeHeader(buf []byte, hdr *Header) {
	if len(buf) < HeaderSize {
		panic(fmt.Sprintf("wal: log header buffer too short: %d", len(buf)))
	}
	c := coder{buf: buf}
	c.putString(hdr.Magic, magicMaxLength)
	c.putInt64(hdr.DbCreation)
	c.putString(hdr.DbRelease, releaseMaxLength)
	c.putUint32(math.Float32bits(hdr.DbCompatibility))
	c.putInt32(hdr.DbPageSize)
	c.putInt32(hdr.LogPageSize)
	c.putBool(hdr.IsShutdown)
	c.putInt32(hdr.NextTranID)
	c.putUint64(uint64(hdr.MvccNextID))
	c.putInt32(hdr.NumPages)
	c.putInt64(hdr.FirstPageID)
	c.putLsa(hdr.AppendLsa)
	c.putLsa(hdr.ChkptLsa)
	c.putLsa(hdr.EofLsa)
	c.putInt64(hdr.NextArchivePageID)
	c.putInt32(hdr.NextArchiveNum)
	c.putInt32(hdr.LastDeletedArchiveNum)
	for lvl := 0; lvl < BackupLevels; lvl += 1 {
		c.putLsa(hdr.BackupLsa[lvl])
	}
	for lvl := 0; lvl < BackupLevels; lvl += 1 {
		bi := hdr.BackupInfo[lvl]
		c.putInt64(bi.AtTime)
		c.putInt64(bi.IoBaselineTime)
		c.putInt64(bi.IoBackupTime)
		c.putInt32(bi.DirtyPagesSince)
		c.putInt32(bi.NumPages)
	}
	c.putString(hdr.PrefixName, prefixMaxLength)
	c.putInt64(hdr.VacuumLastBlockID)
	c.putUint64(uint64(hdr.LastBlockOldestMvccID))
	c.putUint64(uint64(hdr.LastBlockNewestMvccID))
	c.putInt32(hdr.HaServerState)
	c.putInt32(hdr.HaFileStatus)
	c.putInt64(hdr.HaPromotionTime)
	c.putInt64(hdr.DbRestoreTime)
	c.putUint64(hdr.StreamAckPosition)
}

// DecodeHeader deserializes and validates a log header.
func DecodeHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("wal: short log header: %d bytes", len(buf))
	}
	c := coder{buf: buf}
	hdr := Header{}
	hdr.Magic = c.string(magicMaxLength)
	if hdr.Magic != LogMagic {
		return nil, fmt.Errorf("wal: bad log magic: %q", hdr.Magic)
	}
	hdr.DbCreation = c.int64()
	hdr.DbRelease = c.string(releaseMaxLength)
	hdr.DbCompatibility = math.Float32frombits(c.uint32())
	hdr.DbPageSize = c.int32()
	hdr.LogPageSize = c.int32()
	hdr.IsShutdown = c.bool()
	hdr.NextTranID = c.int32()
	hdr.MvccNextID = mvcc.ID(c.uint64())
	hdr.NumPages = c.int32()
	hdr.FirstPageID = c.int64()
	hdr.AppendLsa = c.lsa()
	hdr.ChkptLsa = c.lsa()
	hdr.EofLsa = c.lsa()
	hdr.NextArchivePageID = c.int64()
	hdr.NextArchiveNum = c.int32()
	hdr.LastDeletedArchiveNum = c.int32()
	for lvl := 0; lvl < BackupLevels; lvl += 1 {
		hdr.BackupLsa[lvl] = c.lsa()
	}
	for lvl := 0; lvl < BackupLevels; lvl += 1 {
		hdr.BackupInfo[lvl] = BackupLevelInfo{
			AtTime:          c.int64(),
			IoBaselineTime:  c.int64(),
			IoBackupTime:    c.int64(),
			DirtyPagesSince: c.int32(),
			NumPages:        c.int32(),
		}
	}
	hdr.PrefixName = c.string(prefixMaxLength)
	hdr.VacuumLastBlockID = c.int64()
	hdr.LastBlockOldestMvccID = mvcc.ID(c.uint64())
	hdr.LastBlockNewestMvccID = mvcc.ID(c.uint64())
	hdr.HaServerState = c.int32()
	hdr.HaFileStatus = c.int32()
	hdr.HaPromotionTime = c.int64()
	hdr.DbRestoreTime = c.int64()
	hdr.StreamAckPosition = c.uint64()
	return &hdr, nil
}

// ArchiveHeader is the metadata at the start of each archive file.
type ArchiveHeader struct {
	Magic       string
	DbCreation  int64
	NextTranID  int32
	NumPages    int32
	FirstPageID int64
	ArchiveNum  int32
}

const ArchiveHeaderSize = magicMaxLength + 8 + 4 + 4 + 8 + 4

func EncodeArchiveHeader(buf []byte, hdr *ArchiveHeader) {
	if len(buf) < ArchiveHeaderSize {
		panic(fmt.Sprintf("wal: archive header buffer too short: %d", len(buf)))
	}
	c := coder{buf: buf}
	c.putString(hdr.Magic, magicMaxLength)
	c.putInt64(hdr.DbCreation)
	c.putInt32(hdr.NextTranID)
	c.putInt32(hdr.NumPages)
	c.putInt64(hdr.FirstPageID)
	c.putInt32(hdr.ArchiveNum)
}

func DecodeArchiveHeader(buf []byte) (*ArchiveHeader, error) {
	if len(buf) < ArchiveHeaderSize {
		return nil, fmt.Errorf("wal: short archive header: %d bytes", len(buf))
	}
	c := coder{buf: buf}
	hdr := ArchiveHeader{}
	hdr.Magic = c.string(magicMaxLength)
	if hdr.Magic != ArchiveMagic {
		return nil, fmt.Errorf("wal: bad archive magic: %q", hdr.Magic)
	}
	hdr.DbCreation = c.int64()
	hdr.NextTranID = c.int32()
	hdr.NumPages = c.int32()
	hdr.FirstPageID = c.int64()
	hdr.ArchiveNum = c.int32()
	return &hdr, nil
}
