package core

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"lukechampine.com/blake3"
)

const (
	// VDFModulus is the prime modulus of the sequential squaring chain.
	VDFModulus uint64 = 1_000_000_007
	// DefaultVDFIterations is the number of squarings that make up one delay proof.
	DefaultVDFIterations = 100_000
	// DigestHexLen is the length of a hex-encoded BLAKE3-256 digest.
	DigestHexLen = 64

	ctxCheckInterval = 4096
)

// VDF iterates modular squaring starting from input. There is no shortcut: the
// iteration count is the proof of elapsed work.
func VDF(input uint64, iterations int) uint64 {
	result := input
	for i := 0; i < iterations; i++ {
		r := result % VDFModulus
		result = (r * r) % VDFModulus
	}
	return result
}

// VerifyVDF replays the squaring chain and compares it with the claimed output.
func VerifyVDF(input, claimed uint64, iterations int) bool {
	return VDF(input, iterations) == claimed
}

// Digest returns the hex BLAKE3-256 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func powDigest(header string, nonce uint64) string {
	return Digest([]byte(header + strconv.FormatUint(nonce, 10)))
}

func meetsDifficulty(digest string, difficulty int) bool {
	return strings.HasPrefix(digest, strings.Repeat("0", difficulty))
}

// Solve searches for the smallest nonce, starting at 0, whose digest of header+nonce
// starts with difficulty '0' hex characters. maxAttempts of 0 means no cutoff.
func Solve(ctx context.Context, header string, difficulty int, maxAttempts uint64) (uint64, string, error) {
	if difficulty < 0 || difficulty > DigestHexLen {
		return 0, "", fmt.Errorf("%w: difficulty %d out of range [0, %d]", ErrPuzzleUnsolved, difficulty, DigestHexLen)
	}
	target := strings.Repeat("0", difficulty)
	for nonce := uint64(0); maxAttempts == 0 || nonce < maxAttempts; nonce++ {
		if nonce%ctxCheckInterval == 0 && nonce > 0 {
			if err := ctx.Err(); err != nil {
				return 0, "", fmt.Errorf("%w: %v", ErrPuzzleUnsolved, err)
			}
		}
		digest := powDigest(header, nonce)
		if digest[:difficulty] == target {
			return nonce, digest, nil
		}
	}
	return 0, "", fmt.Errorf("%w: no nonce below %d at difficulty %d", ErrPuzzleUnsolved, maxAttempts, difficulty)
}

// VerifyPoW recomputes the digest for header and nonce and checks the difficulty predicate.
func VerifyPoW(header string, nonce uint64, difficulty int) bool {
	if difficulty < 0 || difficulty > DigestHexLen {
		return false
	}
	return meetsDifficulty(powDigest(header, nonce), difficulty)
}
