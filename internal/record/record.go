// Package record implements the on-disk record codec. A record is a
// little-endian fixed header followed by the key and the serialized payload:
//
//	CRC (4) | Flags (4) | Expiry (8) | KeySize (4) | ValueSize (4) | Key | Value
//
// The CRC covers every byte after the CRC field itself. Expiry is an absolute
// unix-nano timestamp; zero means the record never expires. Tombstones are
// flagged records with an empty value.
package record

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/kvcask/kvcask/errdef"
)

// Record state flags.
const (
	FlagTombstone uint32 = 1 << iota
	FlagCompressed
)

// CRC (4) + Flags (4) + Expiry (8) + KeySize (4) + ValueSize (4)
const HeaderSize = 24

// maxBodySize caps how much a single record header may claim for key plus
// value, far above any configurable limit.
const maxBodySize = 1 << 30

type Record struct {
	Flags  uint32
	Expiry int64 // unix nanoseconds, 0 = no expiry
	Key    []byte
	Value  []byte
}

// Size returns the encoded length of the record in bytes.
func (r *Record) Size() int64 {
	return int64(HeaderSize + len(r.Key) + len(r.Value))
}

func (r *Record) Tombstone() bool {
	return r.Flags&FlagTombstone != 0
}

func (r *Record) Compressed() bool {
	return r.Flags&FlagCompressed != 0
}

// Expired reports whether the record's expiry has passed at the given instant.
// Records without an expiry never expire.
func (r *Record) Expired(now time.Time) bool {
	return r.Expiry != 0 && now.UnixNano() >= r.Expiry
}

// New builds a live record for the given key and payload.
func New(key string, payload []byte, expiry int64, compressed bool) *Record {
	var flags uint32
	if compressed {
		flags |= FlagCompressed
	}
	return &Record{
		Flags:  flags,
		Expiry: expiry,
		Key:    []byte(key),
		Value:  payload,
	}
}

// NewTombstone builds a deletion marker for the given key.
func NewTombstone(key string) *Record {
	return &Record{
		Flags: FlagTombstone,
		Key:   []byte(key),
	}
}

// Encode serializes the record, computing its checksum.
func Encode(r *Record) []byte {
	buf := make([]byte, r.Size())

	binary.LittleEndian.PutUint32(buf[4:8], r.Flags)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(r.Expiry))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(r.Key)))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(len(r.Value)))
	copy(buf[HeaderSize:], r.Key)
	copy(buf[HeaderSize+len(r.Key):], r.Value)

	binary.LittleEndian.PutUint32(buf[0:4], Checksum(buf[4:]))
	return buf
}

// Decode parses a full encoded record and verifies its checksum.
func Decode(data []byte) (*Record, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", errdef.ErrTruncatedRecord, len(data))
	}

	crc := binary.LittleEndian.Uint32(data[0:4])
	flags := binary.LittleEndian.Uint32(data[4:8])
	expiry := int64(binary.LittleEndian.Uint64(data[8:16]))
	keySize := binary.LittleEndian.Uint32(data[16:20])
	valueSize := binary.LittleEndian.Uint32(data[20:24])

	if int64(len(data)) != int64(HeaderSize)+int64(keySize)+int64(valueSize) {
		return nil, fmt.Errorf("%w: got %d bytes, expected %d",
			errdef.ErrTruncatedRecord, len(data), int64(HeaderSize)+int64(keySize)+int64(valueSize))
	}
	if !ValidateChecksum(data[4:], crc) {
		return nil, errdef.ErrChecksumMismatch
	}

	key := make([]byte, keySize)
	value := make([]byte, valueSize)
	copy(key, data[HeaderSize:HeaderSize+keySize])
	copy(value, data[HeaderSize+keySize:])

	return &Record{
		Flags:  flags,
		Expiry: expiry,
		Key:    key,
		Value:  value,
	}, nil
}

// ReadFrom reads the next record from r. It returns io.EOF at a clean end of
// stream and ErrTruncatedRecord when the stream ends mid-record, so callers
// can distinguish a finished scan from a torn tail.
func ReadFrom(r io.Reader) (*Record, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return nil, errdef.ErrTruncatedRecord
		}
		return nil, err
	}

	keySize := binary.LittleEndian.Uint32(header[16:20])
	valueSize := binary.LittleEndian.Uint32(header[20:24])

	// A torn or garbage header can claim absurd sizes; refuse to allocate
	// for them and let the caller treat the tail as truncated.
	if int64(keySize)+int64(valueSize) > maxBodySize {
		return nil, errdef.ErrTruncatedRecord
	}

	body := make([]byte, int64(keySize)+int64(valueSize))
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errdef.ErrTruncatedRecord
		}
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(header) + len(body))
	buf.Write(header)
	buf.Write(body)
	return Decode(buf.Bytes())
}
