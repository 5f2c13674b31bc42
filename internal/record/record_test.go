package record_test

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/kvcask/kvcask/errdef"
	"github.com/kvcask/kvcask/internal/record"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	expiry := time.Now().Add(time.Minute).UnixNano()

	cases := []struct {
		name string
		rec  *record.Record
	}{
		{"live", record.New("user:1", []byte(`{"x":1}`), 0, false)},
		{"with expiry", record.New("session", []byte(`"abc"`), expiry, false)},
		{"compressed", record.New("blob", []byte{0x28, 0xb5, 0x2f, 0xfd}, 0, true)},
		{"tombstone", record.NewTombstone("user:1")},
		{"empty value", record.New("empty", []byte{}, 0, false)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := record.Encode(tc.rec)

			got, err := record.Decode(data)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}

			if !bytes.Equal(got.Key, tc.rec.Key) {
				t.Errorf("key mismatch: got %q, want %q", got.Key, tc.rec.Key)
			}
			if !bytes.Equal(got.Value, tc.rec.Value) {
				t.Errorf("value mismatch: got %q, want %q", got.Value, tc.rec.Value)
			}
			if got.Expiry != tc.rec.Expiry {
				t.Errorf("expiry mismatch: got %d, want %d", got.Expiry, tc.rec.Expiry)
			}
			if got.Tombstone() != tc.rec.Tombstone() {
				t.Errorf("tombstone flag mismatch")
			}
			if got.Compressed() != tc.rec.Compressed() {
				t.Errorf("compressed flag mismatch")
			}
		})
	}
}

func TestDecodeRejectsCorruptData(t *testing.T) {
	data := record.Encode(record.New("key", []byte(`{"a":1}`), 0, false))

	t.Run("flipped payload byte", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[len(bad)-1] ^= 0xff

		if _, err := record.Decode(bad); !errors.Is(err, errdef.ErrChecksumMismatch) {
			t.Fatalf("expected checksum mismatch, got %v", err)
		}
	})

	t.Run("short buffer", func(t *testing.T) {
		if _, err := record.Decode(data[:10]); !errors.Is(err, errdef.ErrTruncatedRecord) {
			t.Fatalf("expected truncated record, got %v", err)
		}
	})

	t.Run("cut tail", func(t *testing.T) {
		if _, err := record.Decode(data[:len(data)-3]); !errors.Is(err, errdef.ErrTruncatedRecord) {
			t.Fatalf("expected truncated record, got %v", err)
		}
	})
}

func TestReadFromStream(t *testing.T) {
	first := record.New("a", []byte(`1`), 0, false)
	second := record.NewTombstone("a")

	var stream bytes.Buffer
	stream.Write(record.Encode(first))
	stream.Write(record.Encode(second))

	got1, err := record.ReadFrom(&stream)
	if err != nil {
		t.Fatalf("first read failed: %v", err)
	}
	if string(got1.Key) != "a" || got1.Tombstone() {
		t.Fatalf("unexpected first record: %+v", got1)
	}

	got2, err := record.ReadFrom(&stream)
	if err != nil {
		t.Fatalf("second read failed: %v", err)
	}
	if !got2.Tombstone() {
		t.Fatal("expected tombstone")
	}

	if _, err := record.ReadFrom(&stream); err != io.EOF {
		t.Fatalf("expected EOF at end of stream, got %v", err)
	}
}

func TestReadFromTornTail(t *testing.T) {
	data := record.Encode(record.New("key", []byte(`{"a":1}`), 0, false))

	t.Run("mid header", func(t *testing.T) {
		r := bytes.NewReader(data[:record.HeaderSize/2])
		if _, err := record.ReadFrom(r); !errors.Is(err, errdef.ErrTruncatedRecord) {
			t.Fatalf("expected truncated record, got %v", err)
		}
	})

	t.Run("mid body", func(t *testing.T) {
		r := bytes.NewReader(data[:len(data)-2])
		if _, err := record.ReadFrom(r); !errors.Is(err, errdef.ErrTruncatedRecord) {
			t.Fatalf("expected truncated record, got %v", err)
		}
	})
}

func TestExpired(t *testing.T) {
	now := time.Now()

	rec := record.New("k", nil, now.Add(time.Second).UnixNano(), false)
	if rec.Expired(now) {
		t.Error("record expired before its ttl elapsed")
	}
	if !rec.Expired(now.Add(2 * time.Second)) {
		t.Error("record not expired after its ttl elapsed")
	}

	forever := record.New("k", nil, 0, false)
	if forever.Expired(now.Add(1000 * time.Hour)) {
		t.Error("record without expiry reported expired")
	}
}
