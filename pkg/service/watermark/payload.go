// pkg/service/watermark/payload.go
package watermark

import (
	"fmt"
	"strings"

	"github.com/alexclairr/imageguard/pkg/constant"
)

// Payload is the copyright text carried by the watermark, expanded to its
// bit sequence (UTF-8 bytes, most significant bit first).
type Payload struct {
	text string
	bits []bool
}

// NewPayload builds the payload for text. An empty text is a configuration
// error.
func NewPayload(text string) (Payload, error) {
	if text == "" {
		return Payload{}, fmt.Errorf("%w: watermark payload is empty", constant.ErrInvalidConfig)
	}
	return Payload{text: text, bits: textToBits(text)}, nil
}

// Text returns the copyright text.
func (p Payload) Text() string { return p.text }

// Len returns the number of payload bits.
func (p Payload) Len() int { return len(p.bits) }

// Bit returns payload bit i modulo the payload length.
func (p Payload) Bit(i int) bool { return p.bits[i%len(p.bits)] }

// Bits returns a copy of the payload bits.
func (p Payload) Bits() []bool {
	return append([]bool(nil), p.bits...)
}

func textToBits(text string) []bool {
	raw := []byte(text)
	bits := make([]bool, 0, len(raw)*8)
	for _, b := range raw {
		for shift := 7; shift >= 0; shift-- {
			bits = append(bits, b>>shift&1 == 1)
		}
	}
	return bits
}

// bitsToText packs bits back into bytes. Invalid UTF-8, which is what a
// damaged or absent watermark usually decodes to, is replaced.
func bitsToText(bits []bool) string {
	raw := make([]byte, len(bits)/8)
	for i := range raw {
		var b byte
		for j := 0; j < 8; j++ {
			b <<= 1
			if bits[i*8+j] {
				b |= 1
			}
		}
		raw[i] = b
	}
	return strings.ToValidUTF8(string(raw), "�")
}
