package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// VP8X feature flags.
const (
	vp8xFlagAnimation = 0x02
	vp8xFlagXMP       = 0x04
	vp8xFlagEXIF      = 0x08
	vp8xFlagAlpha     = 0x10
	vp8xFlagICC       = 0x20
)

type riffChunk struct {
	fourCC string
	data   []byte
}

// webpFile is a parsed RIFF/WEBP file split into image chunks and metadata.
type webpFile struct {
	vp8x   []byte
	image  []riffChunk // ANIM, ALPH, VP8, VP8L, ANMF in file order
	meta   Metadata
	width  int
	height int
	alpha  bool
}

func parseWebP(data []byte) (*webpFile, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		return nil, fmt.Errorf("%w: not a RIFF/WEBP file", ErrMalformed)
	}
	end := 8 + int(binary.LittleEndian.Uint32(data[4:8]))
	if end > len(data) {
		end = len(data)
	}

	f := &webpFile{}
	for off := 12; off < end; {
		if end-off < 8 {
			return nil, fmt.Errorf("%w: truncated chunk header at %d", ErrMalformed, off)
		}
		fourCC := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > end {
			return nil, fmt.Errorf("%w: chunk %q overruns file", ErrMalformed, fourCC)
		}
		payload := data[body : body+size]
		off = body + size + size&1

		switch fourCC {
		case "VP8X":
			if len(payload) < 10 {
				return nil, fmt.Errorf("%w: short VP8X chunk", ErrMalformed)
			}
			f.vp8x = payload
			f.alpha = payload[0]&vp8xFlagAlpha != 0
			f.width = int(uint24(payload[4:7])) + 1
			f.height = int(uint24(payload[7:10])) + 1
		case "VP8 ", "VP8L", "ALPH", "ANIM", "ANMF":
			f.image = append(f.image, riffChunk{fourCC: fourCC, data: payload})
		case "ICCP":
			f.meta.ICC = payload
		case "EXIF":
			f.meta.Exif = trimExifHeader(payload)
		case "XMP ":
			f.meta.XMP = payload
		default:
			f.meta.Other = append(f.meta.Other, RawChunk{Type: fourCC, Data: payload})
		}
	}
	if len(f.image) == 0 {
		return nil, fmt.Errorf("%w: no image data", ErrMalformed)
	}
	if f.vp8x == nil {
		if err := f.readBitstreamHeader(); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// readBitstreamHeader reads canvas size and alpha usage from a simple-format
// file's VP8/VP8L header.
func (f *webpFile) readBitstreamHeader() error {
	for _, c := range f.image {
		switch c.fourCC {
		case "VP8L":
			if len(c.data) < 5 || c.data[0] != 0x2f {
				return fmt.Errorf("%w: bad VP8L signature", ErrMalformed)
			}
			bits := binary.LittleEndian.Uint32(c.data[1:5])
			f.width = int(bits&0x3fff) + 1
			f.height = int((bits>>14)&0x3fff) + 1
			f.alpha = f.alpha || (bits>>28)&1 == 1
			return nil
		case "VP8 ":
			if len(c.data) < 10 || !bytes.Equal(c.data[3:6], []byte{0x9d, 0x01, 0x2a}) {
				return fmt.Errorf("%w: bad VP8 start code", ErrMalformed)
			}
			f.width = int(binary.LittleEndian.Uint16(c.data[6:8]) & 0x3fff)
			f.height = int(binary.LittleEndian.Uint16(c.data[8:10]) & 0x3fff)
		case "ALPH":
			f.alpha = true
		}
	}
	if f.width == 0 || f.height == 0 {
		return fmt.Errorf("%w: cannot determine canvas size", ErrMalformed)
	}
	return nil
}

// ReadWebP returns the metadata chunks of a WebP file.
func ReadWebP(data []byte) (*Metadata, error) {
	f, err := parseWebP(data)
	if err != nil {
		return nil, err
	}
	return f.meta.Clone(), nil
}

// WriteWebP rebuilds a WebP file from the image chunks of data and the
// payloads of meta. The extended (VP8X) layout is used whenever it is
// needed to carry metadata, alpha or animation.
func WriteWebP(data []byte, meta *Metadata) ([]byte, error) {
	f, err := parseWebP(data)
	if err != nil {
		return nil, err
	}

	var flags byte
	animated := false
	for _, c := range f.image {
		switch c.fourCC {
		case "ALPH":
			flags |= vp8xFlagAlpha
		case "ANIM", "ANMF":
			animated = true
		}
	}
	if f.alpha {
		flags |= vp8xFlagAlpha
	}
	if animated {
		flags |= vp8xFlagAnimation
	}
	if len(meta.ICC) > 0 {
		flags |= vp8xFlagICC
	}
	if len(meta.Exif) > 0 {
		flags |= vp8xFlagEXIF
	}
	if len(meta.XMP) > 0 {
		flags |= vp8xFlagXMP
	}

	extended := flags != 0 || len(meta.Other) > 0
	// A simple VP8L file signals alpha in its own header.
	if flags == vp8xFlagAlpha && len(meta.Other) == 0 && len(f.image) == 1 && f.image[0].fourCC == "VP8L" {
		extended = false
	}

	var chunks []riffChunk
	if extended {
		vp8x := make([]byte, 10)
		vp8x[0] = flags
		putUint24(vp8x[4:7], uint32(f.width-1))
		putUint24(vp8x[7:10], uint32(f.height-1))
		chunks = append(chunks, riffChunk{fourCC: "VP8X", data: vp8x})
		if len(meta.ICC) > 0 {
			chunks = append(chunks, riffChunk{fourCC: "ICCP", data: meta.ICC})
		}
	}
	chunks = append(chunks, f.image...)
	if extended {
		if len(meta.Exif) > 0 {
			chunks = append(chunks, riffChunk{fourCC: "EXIF", data: trimExifHeader(meta.Exif)})
		}
		if len(meta.XMP) > 0 {
			chunks = append(chunks, riffChunk{fourCC: "XMP ", data: meta.XMP})
		}
		for _, c := range meta.Other {
			if len(c.Type) != 4 {
				return nil, fmt.Errorf("%w: invalid chunk name %q", ErrMalformed, c.Type)
			}
			chunks = append(chunks, riffChunk{fourCC: c.Type, data: c.Data})
		}
	}
	return encodeRIFF(chunks), nil
}

func encodeRIFF(chunks []riffChunk) []byte {
	size := 4
	for _, c := range chunks {
		size += 8 + len(c.data) + len(c.data)&1
	}
	var buf bytes.Buffer
	buf.Grow(8 + size)
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(size))
	buf.WriteString("WEBP")
	for _, c := range chunks {
		buf.WriteString(c.fourCC)
		_ = binary.Write(&buf, binary.LittleEndian, uint32(len(c.data)))
		buf.Write(c.data)
		if len(c.data)&1 == 1 {
			buf.WriteByte(0)
		}
	}
	return buf.Bytes()
}

func uint24(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}
