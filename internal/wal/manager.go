package wal

import (
	"bufio"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/tuanvm/hazeldb/internal/bx"
)

var (
	ErrBadMagic  = errors.New("wal: bad magic")
	ErrBadCRC    = errors.New("wal: bad crc")
	ErrBadRecord = errors.New("wal: bad record")
	ErrShortRead = errors.New("wal: short read")
	ErrNoWALFile = errors.New("wal: wal file not found")
)

const (
	magicU32   uint32 = 0x4C575A48 // "HZWL"
	versionU16        = 1

	recPageImage uint8 = 1

	// Keep WAL independent from storage package.
	PageSize = 8192
)

// fixed fields:
// magic(4) ver(2) typ(1) rsv(1) totalLen(4) crc(4) lsn(8) pageID(4)
const fixedLen = 4 + 2 + 1 + 1 + 4 + 4 + 8 + 4

// Manager is an append-only redo log of full page images. The buffer pool
// appends a page's image before writing it back; Replay re-applies images in
// log order after a crash.
type Manager struct {
	mu      sync.Mutex
	f       *os.File
	path    string
	lsn     uint64
	flushed uint64
}

func Open(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "wal.log")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	m := &Manager{f: f, path: path}
	_ = m.initLastLSN()
	return m, nil
}

func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return nil
	}
	err := m.f.Close()
	m.f = nil
	return err
}

// LSN reports the last assigned log sequence number.
func (m *Manager) LSN() uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lsn
}

// Append logs a full page image and returns its LSN.
func (m *Manager) Append(pageID int32, pageBytes []byte) (uint64, error) {
	if len(pageBytes) != PageSize {
		return 0, ErrBadRecord
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.f == nil {
		return 0, ErrNoWALFile
	}

	m.lsn++
	lsn := m.lsn

	totalLen := fixedLen + PageSize
	buf := make([]byte, totalLen)
	off := 0

	putU32 := func(v uint32) { bx.PutU32(buf[off:off+4], v); off += 4 }
	putU16 := func(v uint16) { bx.PutU16(buf[off:off+2], v); off += 2 }
	putU64 := func(v uint64) { bx.PutU64(buf[off:off+8], v); off += 8 }
	putU8 := func(v uint8) { buf[off] = v; off++ }

	putU32(magicU32)
	putU16(versionU16)
	putU8(recPageImage)
	putU8(0)

	putU32(uint32(totalLen))

	crcOff := off
	putU32(0) // placeholder

	putU64(lsn)
	putU32(uint32(pageID))

	copy(buf[off:], pageBytes)
	off += PageSize

	if off != totalLen {
		return 0, ErrBadRecord
	}

	crc := crc32.ChecksumIEEE(buf[crcOff+4:])
	bx.PutU32(buf[crcOff:crcOff+4], crc)

	if _, err := m.f.Write(buf); err != nil {
		return 0, err
	}
	return lsn, nil
}

// Flush syncs the log to stable storage up to the given LSN.
func (m *Manager) Flush(upto uint64) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return nil
	}
	if upto == 0 || upto <= m.flushed {
		return nil
	}
	if err := m.f.Sync(); err != nil {
		return err
	}
	m.flushed = upto
	return nil
}

// Replay feeds every intact page image to apply, in log order. A torn tail
// record ends replay without error.
func (m *Manager) Replay(apply func(pageID int32, image []byte) error) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	path := m.path
	m.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, 1<<20)

	for {
		rec, err := readOne(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			// tolerate torn tail record
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrShortRead) {
				return nil
			}
			return err
		}
		if rec.typ != recPageImage {
			continue
		}
		if err := apply(rec.pageID, rec.page); err != nil {
			return err
		}
	}
}

type decodedRecord struct {
	typ    uint8
	lsn    uint64
	pageID int32
	page   []byte
}

func readOne(r *bufio.Reader) (*decodedRecord, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	magic := bx.U32(hdr[:])
	if magic != magicU32 {
		return nil, ErrBadMagic
	}

	var verB [2]byte
	if _, err := io.ReadFull(r, verB[:]); err != nil {
		return nil, err
	}
	ver := bx.U16(verB[:])
	if ver != versionU16 {
		return nil, ErrBadRecord
	}

	tp, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadByte(); err != nil { // reserved
		return nil, err
	}

	var lenB [4]byte
	if _, err := io.ReadFull(r, lenB[:]); err != nil {
		return nil, err
	}
	totalLen := bx.U32(lenB[:])
	if totalLen < uint32(fixedLen) {
		return nil, ErrBadRecord
	}

	var crcB [4]byte
	if _, err := io.ReadFull(r, crcB[:]); err != nil {
		return nil, err
	}
	wantCRC := bx.U32(crcB[:])

	restLen := int(totalLen) - (4 + 2 + 1 + 1 + 4 + 4)
	rest := make([]byte, restLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrShortRead
		}
		return nil, err
	}
	gotCRC := crc32.ChecksumIEEE(rest)
	if gotCRC != wantCRC {
		return nil, ErrBadCRC
	}

	off := 0
	lsn := bx.U64(rest[off : off+8])
	off += 8
	pageID := int32(bx.U32(rest[off : off+4]))
	off += 4

	if off+PageSize > len(rest) {
		return nil, ErrBadRecord
	}

	page := make([]byte, PageSize)
	copy(page, rest[off:off+PageSize])

	return &decodedRecord{
		typ:    tp,
		lsn:    lsn,
		pageID: pageID,
		page:   page,
	}, nil
}

// initLastLSN scans the existing log so new records continue the sequence.
func (m *Manager) initLastLSN() error {
	f, err := os.Open(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, 1<<20)
	for {
		rec, err := readOne(r)
		if err != nil {
			return nil
		}
		if rec.lsn > m.lsn {
			m.lsn = rec.lsn
		}
	}
}
