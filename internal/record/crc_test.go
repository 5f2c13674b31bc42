package record_test

import (
	"testing"

	"github.com/kvcask/kvcask/internal/record"
)

func TestChecksumMatches(t *testing.T) {
	body := []byte("flags and key and value bytes")

	crc := record.Checksum(body)
	if !record.ValidateChecksum(body, crc) {
		t.Fatal("checksum did not validate against itself")
	}
}

func TestChecksumDetectsChange(t *testing.T) {
	body := []byte("flags and key and value bytes")
	crc := record.Checksum(body)

	body[0] ^= 0x01
	if record.ValidateChecksum(body, crc) {
		t.Fatal("checksum validated modified data")
	}
}
