// Package storefile manages the persisted container for a store: a fixed
// header carrying the configured limits and running totals, followed by an
// append-ordered body of encoded records.
//
// Header layout (40 bytes, little-endian):
//
//	Magic (4) | Version (2) | Reserved (2) | MaxFileSize (8) |
//	MaxKeySize (4) | MaxValueSize (4) | UsedBytes (8) | RecordCount (8)
//
// UsedBytes includes the header and every appended record, tombstones
// included; it is the next append offset. RecordCount tracks live keys.
package storefile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kvcask/kvcask/errdef"
	"github.com/kvcask/kvcask/internal/record"
)

const (
	Magic      uint32 = 0x4B43564B // "KVCK"
	Version    uint16 = 1
	HeaderSize        = 40
)

// Limits are the size bounds fixed at file creation. For an existing file the
// persisted limits win over configured ones, since they describe data already
// on disk.
type Limits struct {
	MaxFileSize  int64
	MaxKeySize   int
	MaxValueSize int
}

type File struct {
	f      *os.File
	path   string
	limits Limits

	used  int64 // committed bytes including the header; next append offset
	count int64 // live records
}

// Open opens an existing store file, or creates a fresh one with the given
// limits if the path does not exist. It reports whether the file was created.
func Open(path string, limits Limits) (*File, bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, false, fmt.Errorf("open store file: %w", err)
		}
		sf, cerr := create(path, limits)
		return sf, cerr == nil, cerr
	}

	sf := &File{f: f, path: path}
	if err := sf.readHeader(); err != nil {
		f.Close()
		return nil, false, err
	}
	return sf, false, nil
}

func create(path string, limits Limits) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("create store file: %w", err)
	}

	sf := &File{
		f:      f,
		path:   path,
		limits: limits,
		used:   HeaderSize,
	}
	if err := sf.writeHeader(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return sf, nil
}

func (sf *File) writeHeader() error {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint16(buf[4:6], Version)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(sf.limits.MaxFileSize))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(sf.limits.MaxKeySize))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(sf.limits.MaxValueSize))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(sf.used))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(sf.count))

	if _, err := sf.f.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

func (sf *File) readHeader() error {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(io.NewSectionReader(sf.f, 0, HeaderSize), buf); err != nil {
		return fmt.Errorf("%w: %v", errdef.ErrBadHeader, err)
	}

	if binary.LittleEndian.Uint32(buf[0:4]) != Magic {
		return errdef.ErrBadMagic
	}
	if v := binary.LittleEndian.Uint16(buf[4:6]); v != Version {
		return fmt.Errorf("%w: version %d", errdef.ErrBadVersion, v)
	}

	sf.limits = Limits{
		MaxFileSize:  int64(binary.LittleEndian.Uint64(buf[8:16])),
		MaxKeySize:   int(binary.LittleEndian.Uint32(buf[16:20])),
		MaxValueSize: int(binary.LittleEndian.Uint32(buf[20:24])),
	}
	sf.used = int64(binary.LittleEndian.Uint64(buf[24:32]))
	sf.count = int64(binary.LittleEndian.Uint64(buf[32:40]))

	if sf.limits.MaxFileSize < HeaderSize || sf.limits.MaxKeySize <= 0 || sf.limits.MaxValueSize <= 0 {
		return errdef.ErrBadHeader
	}
	if sf.used < HeaderSize || sf.count < 0 {
		return errdef.ErrBadHeader
	}
	return nil
}

// Scan walks every record in file order, calling fn with the record and its
// offset. A torn tail (truncated or checksum-failed trailing record, e.g.
// after a crash mid-commit) is cut off and synced; everything before it is the
// recoverable prefix. Scan leaves the append position at the end of the last
// intact record, regardless of the counters the header carried.
func (sf *File) Scan(fn func(rec *record.Record, offset int64) error) error {
	if _, err := sf.f.Seek(HeaderSize, io.SeekStart); err != nil {
		return fmt.Errorf("seek past header: %w", err)
	}

	r := bufio.NewReader(sf.f)
	offset := int64(HeaderSize)

	for {
		rec, err := record.ReadFrom(r)
		if err == io.EOF {
			break
		}
		if errors.Is(err, errdef.ErrTruncatedRecord) || errors.Is(err, errdef.ErrChecksumMismatch) {
			if terr := sf.truncateAt(offset); terr != nil {
				return terr
			}
			break
		}
		if err != nil {
			return fmt.Errorf("scan record at offset %d: %w", offset, err)
		}

		if err := fn(rec, offset); err != nil {
			return err
		}
		offset += rec.Size()
	}

	sf.used = offset
	return nil
}

func (sf *File) truncateAt(offset int64) error {
	if err := sf.f.Truncate(offset); err != nil {
		return fmt.Errorf("truncate torn tail: %w", err)
	}
	return sf.f.Sync()
}

// Append writes the record at the current end of body and returns its offset.
// Live records are rejected with ErrCapacityExceeded when they would push the
// file past its size limit; tombstones always append, so a full file can
// still be drained and compacted.
func (sf *File) Append(rec *record.Record) (int64, error) {
	data := record.Encode(rec)

	if !rec.Tombstone() && sf.used+int64(len(data)) > sf.limits.MaxFileSize {
		return 0, errdef.ErrCapacityExceeded
	}

	offset := sf.used
	if _, err := sf.f.WriteAt(data, offset); err != nil {
		return 0, fmt.Errorf("append record: %w", err)
	}

	sf.used += int64(len(data))
	if rec.Tombstone() {
		sf.count--
	} else {
		sf.count++
	}
	return offset, nil
}

// ReadRecordAt reads and decodes the record of the given encoded size at the
// given offset, verifying its checksum.
func (sf *File) ReadRecordAt(offset, size int64) (*record.Record, error) {
	buf := make([]byte, size)
	if _, err := sf.f.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("read record at offset %d: %w", offset, err)
	}
	return record.Decode(buf)
}

// FlushHeader rewrites the running totals in place.
func (sf *File) FlushHeader() error {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(sf.used))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(sf.count))
	if _, err := sf.f.WriteAt(buf, 24); err != nil {
		return fmt.Errorf("flush header counters: %w", err)
	}
	return nil
}

func (sf *File) Sync() error {
	return sf.f.Sync()
}

func (sf *File) Close() error {
	return sf.f.Close()
}

func (sf *File) Path() string { return sf.path }

func (sf *File) Limits() Limits { return sf.limits }

// Used is the committed size in bytes, header included.
func (sf *File) Used() int64 { return sf.used }

// Count is the number of live records.
func (sf *File) Count() int64 { return sf.count }

// SetCount overrides the live-record total. The open scan recomputes the
// count from surviving records, since counters in the header may be stale
// after a crash.
func (sf *File) SetCount(n int64) { sf.count = n }
