// Package puzzle implements the admission proof-of-work: a client wishing
// to publish or retrieve must find a nonce that makes
// SHA256(data ‖ beacon.Signature ‖ nonce) begin with a configured number of
// zero bits, pinning the puzzle to a beacon round so solutions cannot be
// precomputed far in advance.
package puzzle

import (
	"crypto/sha256"
	"encoding/binary"

	"anonycast/drand"
)

// Solve finds the smallest nonce for which Verify would return true.
func Solve(data []byte, beacon drand.Beacon, difficulty uint8) uint32 {
	var nonce uint32
	for {
		if satisfies(hash(data, beacon, nonce), difficulty) {
			return nonce
		}
		nonce++
	}
}

// Verify checks a proof-of-work solution against data and a beacon round.
func Verify(data []byte, beacon drand.Beacon, difficulty uint8, solution uint32) bool {
	return satisfies(hash(data, beacon, solution), difficulty)
}

func hash(data []byte, beacon drand.Beacon, nonce uint32) [32]byte {
	h := sha256.New()
	h.Write(data)
	h.Write(beacon.Signature)
	var nonceBytes [4]byte
	binary.LittleEndian.PutUint32(nonceBytes[:], nonce)
	h.Write(nonceBytes[:])
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// satisfies reports whether digest has at least difficulty leading zero
// bits, checked byte by byte with the final partial byte masked to just
// the bits that still count toward the difficulty.
func satisfies(digest [32]byte, difficulty uint8) bool {
	counter := difficulty
	for _, b := range digest {
		if counter == 0 {
			return true
		}
		toVerify := counter
		if toVerify > 8 {
			toVerify = 8
		}
		counter -= toVerify
		compare := byte(0xFF) >> (8 - toVerify)
		if b&compare != 0 {
			return false
		}
	}
	return true
}
