package stages

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/zerr"

	"go.trai.ch/forge/internal/core/domain"
)

// digest accumulates a stage's effective inputs into an xxhash64
// fingerprint. Components are separated by NUL bytes so that adjacent
// values cannot collide by concatenation.
type digest struct {
	h *xxhash.Digest
}

func newDigest(stage domain.Stage) *digest {
	d := &digest{h: xxhash.New()}
	d.writeString(string(stage))
	return d
}

func (d *digest) writeString(s string) {
	_, _ = d.h.WriteString(s)
	_, _ = d.h.Write([]byte{0})
}

func (d *digest) writeBytes(b []byte) {
	_, _ = d.h.Write(b)
	_, _ = d.h.Write([]byte{0})
}

func (d *digest) writeStrings(values []string) {
	for _, v := range values {
		d.writeString(v)
	}
	_, _ = d.h.Write([]byte{0})
}

// writeFile folds a file's content hash into the digest.
func (d *digest) writeFile(path string) error {
	f, err := os.Open(path) //nolint:gosec // Path references a stage output in the run workspace
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to open fingerprint input"), "path", path)
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	fileHash := xxhash.New()
	if _, err := io.Copy(fileHash, f); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to hash fingerprint input"), "path", path)
	}

	_ = binary.Write(d.h, binary.LittleEndian, fileHash.Sum64())
	_, _ = d.h.Write([]byte{0})
	return nil
}

// Sum returns the accumulated fingerprint.
func (d *digest) Sum() domain.Fingerprint {
	return domain.Fingerprint(fmt.Sprintf("%016x", d.h.Sum64()))
}
