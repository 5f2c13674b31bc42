package record

import "hash/crc32"

// Checksum computes the CRC32 checksum of the encoded record body (everything
// after the CRC field) using the IEEE polynomial.
func Checksum(body []byte) uint32 {
	return crc32.ChecksumIEEE(body)
}

// ValidateChecksum returns true if the stored checksum matches the computed
// CRC32 of the encoded record body.
func ValidateChecksum(body []byte, checksum uint32) bool {
	return Checksum(body) == checksum
}
