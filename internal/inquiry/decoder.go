package inquiry

import (
	"bytes"
	"errors"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// chunkDecoder turns raw body chunks into text. A multi-byte sequence cut by a chunk boundary is
// held back until the next chunk completes it; invalid bytes decode to U+FFFD.
type chunkDecoder struct {
	t       transform.Transformer
	pending []byte
	dst     []byte
}

func newChunkDecoder() *chunkDecoder {
	return &chunkDecoder{
		t:   unicode.UTF8.NewDecoder(),
		dst: make([]byte, 4096),
	}
}

// decode returns the text completed by chunk. With atEOF set, any held-back bytes are flushed.
func (d *chunkDecoder) decode(chunk []byte, atEOF bool) string {
	src := chunk
	if len(d.pending) > 0 {
		src = append(d.pending, chunk...)
		d.pending = nil
	}

	var sb strings.Builder
	for {
		nDst, nSrc, err := d.t.Transform(d.dst, src, atEOF)
		sb.Write(d.dst[:nDst])
		src = src[nSrc:]

		switch {
		case err == nil:
			return sb.String()
		case errors.Is(err, transform.ErrShortDst):
			continue
		case errors.Is(err, transform.ErrShortSrc):
			d.pending = bytes.Clone(src)
			return sb.String()
		default:
			// The UTF-8 decoder never reports invalid input.
			return sb.String()
		}
	}
}
