package finalize

import (
	"fmt"
	"path/filepath"

	"github.com/mpat-go/mpat/zstd"
)

// ZstdArchiveSink builds an Archive Sink that writes a zstd-compressed
// copy of each session's plaintext to session_<id>.dat.zst under dir,
// per SPEC_FULL.md §4.7a. It is optional: Finalizer only calls it
// after the primary Sink has already succeeded, and its failures are
// logged rather than propagated.
func ZstdArchiveSink(dir string) Sink {
	return func(sessionID uint32, plaintext []byte) error {
		path := filepath.Join(dir, fmt.Sprintf("session_%d.dat.zst", sessionID))
		w, err := zstd.NewWriter(path)
		if err != nil {
			return err
		}
		if _, err := w.Write(plaintext); err != nil {
			w.Close()
			return err
		}
		return w.Close()
	}
}
