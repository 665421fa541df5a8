// Package catalog provides the master record table stored on page 0.
// Every index registers its header page there under a unique name.
package catalog

import (
	"bytes"
	"log/slog"

	"github.com/tuanvm/hazeldb/internal/bx"
	"github.com/tuanvm/hazeldb/internal/storage"
)

// Layout: count u32, then fixed-width records of NUL-padded name + page id.
const (
	offCount   = 0
	offRecords = 4

	MaxNameLen = 32
	recordSize = MaxNameLen + 4

	MaxRecords = (storage.PageSize - offRecords) / recordSize
)

// MasterPage is a view over the raw bytes of page 0. It performs no latching
// or pinning; the caller owns the page's pin and latch for the duration.
type MasterPage struct {
	page *storage.Page
}

func Master(p *storage.Page) MasterPage {
	return MasterPage{page: p}
}

func (m MasterPage) NumRecords() int {
	return int(bx.U32At(m.page.Data(), offCount))
}

func (m MasterPage) setNumRecords(n int) {
	bx.PutU32At(m.page.Data(), offCount, uint32(n))
}

func (m MasterPage) recordAt(i int) []byte {
	off := offRecords + i*recordSize
	return m.page.Data()[off : off+recordSize]
}

func (m MasterPage) nameAt(i int) string {
	rec := m.recordAt(i)
	name := rec[:MaxNameLen]
	if j := bytes.IndexByte(name, 0); j >= 0 {
		name = name[:j]
	}
	return string(name)
}

func (m MasterPage) find(name string) int {
	for i := range m.NumRecords() {
		if m.nameAt(i) == name {
			return i
		}
	}
	return -1
}

// InsertRecord registers name -> id. It fails on a duplicate name, a name
// longer than MaxNameLen, or a full record table.
func (m MasterPage) InsertRecord(name string, id storage.PageID) bool {
	if name == "" || len(name) > MaxNameLen {
		slog.Warn("catalog: bad record name", "name", name)
		return false
	}
	if m.find(name) >= 0 {
		return false
	}
	n := m.NumRecords()
	if n >= MaxRecords {
		slog.Warn("catalog: master page is full", "records", n)
		return false
	}

	rec := m.recordAt(n)
	for i := range rec[:MaxNameLen] {
		rec[i] = 0
	}
	copy(rec, name)
	bx.PutI32At(rec, MaxNameLen, int32(id))
	m.setNumRecords(n + 1)
	return true
}

// GetRecord looks up the page id registered under name.
func (m MasterPage) GetRecord(name string) (storage.PageID, bool) {
	i := m.find(name)
	if i < 0 {
		return storage.InvalidPageID, false
	}
	return storage.PageID(bx.I32At(m.recordAt(i), MaxNameLen)), true
}

// UpdateRecord rebinds an existing name to a new page id.
func (m MasterPage) UpdateRecord(name string, id storage.PageID) bool {
	i := m.find(name)
	if i < 0 {
		return false
	}
	bx.PutI32At(m.recordAt(i), MaxNameLen, int32(id))
	return true
}

// DeleteRecord removes a name, moving the last record into the hole.
func (m MasterPage) DeleteRecord(name string) bool {
	i := m.find(name)
	if i < 0 {
		return false
	}
	n := m.NumRecords()
	if i != n-1 {
		copy(m.recordAt(i), m.recordAt(n-1))
	}
	last := m.recordAt(n - 1)
	for j := range last {
		last[j] = 0
	}
	m.setNumRecords(n - 1)
	return true
}
