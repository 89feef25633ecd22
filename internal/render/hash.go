package render

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/dmw-rewrite/dmw/internal/platform"
)

// PayloadHash derives a stable content hash for an embed plus any extra
// strings that belong to the same artefact (message content, view state).
// Byte-identical payloads always hash identically, which is what lets the
// orchestrator suppress no-op republishes.
func PayloadHash(embed *platform.Embed, extra ...string) string {
	h := sha256.New()
	sep := []byte{0}
	if embed != nil {
		h.Write([]byte(embed.Title))
		h.Write(sep)
		h.Write([]byte(embed.Description))
		h.Write(sep)
		for _, f := range embed.Fields {
			h.Write([]byte(f.Name))
			h.Write(sep)
			h.Write([]byte(f.Value))
			h.Write(sep)
			if f.Inline {
				h.Write([]byte{1})
			} else {
				h.Write([]byte{2})
			}
		}
		h.Write([]byte(embed.Footer))
		h.Write(sep)
	}
	for _, s := range extra {
		h.Write([]byte(s))
		h.Write(sep)
	}
	return hex.EncodeToString(h.Sum(nil))
}
