package storage

const (
	OneKB = 1 << 10 // 1,024
	OneMB = 1 << 20 // 1,048,576
	OneGB = 1 << 30 // 1,073,741,824

	SegmentSize       = 1 << 30                // 1 GiB per segment file
	PageSize          = 1 << 13                // 8,192 (8 KiB)
	MaxPagePerSegment = SegmentSize / PageSize // 131,072 pages/segment
)

const (
	FileMode0644 = 0o644
	FileMode0755 = 0o755
)

// PageID identifies a page inside a FileSet. On-disk references use the
// same 32-bit representation, little-endian.
type PageID int32

// InvalidPageID marks a frame that holds no logical page and an on-disk
// reference that points nowhere.
const InvalidPageID PageID = -1
