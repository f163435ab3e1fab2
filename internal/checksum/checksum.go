// Package checksum computes and verifies file digests.
package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/tanq16/octoftp/internal/utils"
)

const blockSize = 8192

var ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

// MD5 and SHA-1 are kept for matching published digests, not for security.
var algorithms = []struct {
	name string
	new  func() hash.Hash
}{
	{"MD5", md5.New},
	{"SHA-1", sha1.New},
	{"SHA-256", sha256.New},
	{"SHA-512", sha512.New},
}

type Digest struct {
	Algorithm string
	Hex       string
}

func (d Digest) String() string {
	return fmt.Sprintf("%s %s", d.Algorithm, d.Hex)
}

// ProgressFunc receives bytes hashed so far and the file size.
type ProgressFunc func(processed, total int64)

// Algorithms lists the supported names in display order.
func Algorithms() []string {
	names := make([]string, len(algorithms))
	for i, a := range algorithms {
		names[i] = a.name
	}
	return names
}

// normalize maps "sha256", "SHA256" or "sha-256" to "SHA-256".
func normalize(algorithm string) (string, func() hash.Hash, error) {
	key := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(algorithm)), "-", "")
	for _, a := range algorithms {
		if strings.ReplaceAll(a.name, "-", "") == key {
			return a.name, a.new, nil
		}
	}
	return "", nil, fmt.Errorf("%w '%s' (supported: %s)", ErrUnsupportedAlgorithm, algorithm, strings.Join(Algorithms(), ", "))
}

// Compute hashes path in 8 KiB blocks and returns the lowercase hex digest.
func Compute(path, algorithm string, progress ProgressFunc) (Digest, error) {
	name, newHash, err := normalize(algorithm)
	if err != nil {
		return Digest{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Digest{}, &utils.ChecksumError{Path: path, Err: utils.ErrNotFound}
		}
		return Digest{}, &utils.ChecksumError{Path: path, Err: err}
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return Digest{}, &utils.ChecksumError{Path: path, Err: err}
	}
	total := info.Size()

	h := newHash()
	buf := make([]byte, blockSize)
	var processed int64
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			processed += int64(n)
			if progress != nil {
				progress(processed, total)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Digest{}, &utils.ChecksumError{Path: path, Err: err}
		}
	}
	return Digest{Algorithm: name, Hex: hex.EncodeToString(h.Sum(nil))}, nil
}

// Verify reports whether path hashes to expected (case-insensitive). Any
// failure, including an unknown algorithm, is reported as false.
func Verify(path, expected, algorithm string) bool {
	digest, err := Compute(path, algorithm, nil)
	if err != nil {
		return false
	}
	return strings.EqualFold(digest.Hex, strings.TrimSpace(expected))
}

// ComputeAll returns every supported digest of path. A failed algorithm maps
// to "Error: <cause>".
func ComputeAll(path string, progress ProgressFunc) map[string]string {
	results := make(map[string]string, len(algorithms))
	for _, a := range algorithms {
		digest, err := Compute(path, a.name, progress)
		if err != nil {
			results[a.name] = "Error: " + err.Error()
			continue
		}
		results[a.name] = digest.Hex
	}
	return results
}

func Format(hexDigest string, uppercase bool) string {
	if uppercase {
		return strings.ToUpper(hexDigest)
	}
	return strings.ToLower(hexDigest)
}
