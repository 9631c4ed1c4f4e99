package container

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	pngstructure "github.com/dsoprea/go-png-image-structure"
)

var pngSignature = pngstructure.PngSignature[:]

const xmpKeyword = "XML:com.adobe.xmp"

// structuralPNG chunks describe how to render the pixels; they survive
// sanitisation untouched.
var structuralPNG = map[string]bool{
	"IHDR": true, "PLTE": true, "IDAT": true, "IEND": true,
	"tRNS": true, "gAMA": true, "cHRM": true, "sRGB": true, "sBIT": true,
	"pHYs": true, "bKGD": true, "hIST": true, "sPLT": true,
	"cICP": true, "mDCV": true, "cLLI": true,
	"acTL": true, "fcTL": true, "fdAT": true,
}

func isCritical(typ string) bool {
	return typ != "" && typ[0] >= 'A' && typ[0] <= 'Z'
}

// splitPNG splits data into its chunks, CRCs checked. Anything after IEND
// is ignored.
func splitPNG(data []byte) (chunks []*pngstructure.Chunk, err error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, fmt.Errorf("%w: not a PNG file", ErrMalformed)
	}
	defer func() {
		if state := recover(); state != nil {
			chunks, err = nil, fmt.Errorf("%w: %v", ErrMalformed, state)
		}
	}()

	mc, err := pngstructure.NewPngMediaParser().ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	cs, ok := mc.(*pngstructure.ChunkSlice)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected parse result %T", ErrMalformed, mc)
	}
	for i, c := range cs.Chunks() {
		if c.Type == "IEND" {
			return cs.Chunks()[:i+1], nil
		}
	}
	return nil, fmt.Errorf("%w: missing IEND", ErrMalformed)
}

func newPNGChunk(typ string, data []byte) *pngstructure.Chunk {
	c := &pngstructure.Chunk{Type: typ, Data: data, Length: uint32(len(data))}
	c.UpdateCrc32()
	return c
}

// ReadPNG returns the metadata chunks of a PNG file.
func ReadPNG(data []byte) (*Metadata, error) {
	chunks, err := splitPNG(data)
	if err != nil {
		return nil, err
	}
	meta := &Metadata{}
	for _, c := range chunks {
		switch {
		case structuralPNG[c.Type]:
		case c.Type == pngstructure.EXifChunkType:
			meta.Exif = bytes.Clone(trimExifHeader(c.Data))
		case c.Type == "iCCP":
			meta.ICC = bytes.Clone(c.Data)
		case c.Type == "tEXt" || c.Type == "zTXt" || c.Type == "iTXt":
			t, err := decodeText(c.Type, c.Data)
			if err != nil {
				return nil, err
			}
			if c.Type == "iTXt" && t.Keyword == xmpKeyword {
				meta.XMP = []byte(t.Value)
				continue
			}
			meta.Text = append(meta.Text, t)
		case isCritical(c.Type):
			// Unknown critical chunks are part of the image, not metadata.
		default:
			meta.Other = append(meta.Other, RawChunk{Type: c.Type, Data: bytes.Clone(c.Data)})
		}
	}
	return meta, nil
}

// WritePNG keeps the structural chunks of data and replaces every metadata
// chunk with the payloads of meta. Profile, EXIF and text go right after
// IHDR, other chunks right before IEND.
func WritePNG(data []byte, meta *Metadata) ([]byte, error) {
	chunks, err := splitPNG(data)
	if err != nil {
		return nil, err
	}

	out := make([]*pngstructure.Chunk, 0, len(chunks)+len(meta.Text)+len(meta.Other)+3)
	for _, c := range chunks {
		if !structuralPNG[c.Type] && !isCritical(c.Type) {
			continue
		}
		if c.Type == "IEND" {
			for _, o := range meta.Other {
				if len(o.Type) != 4 {
					return nil, fmt.Errorf("%w: invalid chunk name %q", ErrMalformed, o.Type)
				}
				out = append(out, newPNGChunk(o.Type, o.Data))
			}
		}
		out = append(out, c)
		if c.Type != pngstructure.IHDRChunkType {
			continue
		}
		if len(meta.ICC) > 0 {
			out = append(out, newPNGChunk("iCCP", meta.ICC))
		}
		if len(meta.Exif) > 0 {
			out = append(out, newPNGChunk(pngstructure.EXifChunkType, trimExifHeader(meta.Exif)))
		}
		if len(meta.XMP) > 0 {
			out = append(out, newPNGChunk("iTXt", encodeITXt(xmpKeyword, string(meta.XMP))))
		}
		for _, t := range meta.Text {
			typ, raw := t.Type, t.Raw
			if raw == nil {
				typ, raw = "iTXt", encodeITXt(t.Keyword, t.Value)
			}
			out = append(out, newPNGChunk(typ, raw))
		}
	}

	var buf bytes.Buffer
	if err := pngstructure.NewChunkSlice(out).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write PNG chunks: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeITXt(keyword, text string) []byte {
	var b bytes.Buffer
	b.WriteString(keyword)
	b.WriteByte(0)
	b.WriteByte(0) // uncompressed
	b.WriteByte(0) // compression method
	b.WriteByte(0) // empty language tag
	b.WriteByte(0) // empty translated keyword
	b.WriteString(text)
	return b.Bytes()
}

func decodeText(typ string, data []byte) (TextChunk, error) {
	t := TextChunk{Type: typ, Raw: bytes.Clone(data)}
	keyword, rest, ok := bytes.Cut(data, []byte{0})
	if !ok {
		return t, fmt.Errorf("%w: %s chunk without keyword terminator", ErrMalformed, typ)
	}
	t.Keyword = string(keyword)

	switch typ {
	case "tEXt":
		t.Value = latin1(rest)
	case "zTXt":
		if len(rest) < 1 {
			return t, fmt.Errorf("%w: short zTXt chunk", ErrMalformed)
		}
		text, err := inflate(rest[1:])
		if err != nil {
			return t, err
		}
		t.Value = latin1(text)
	case "iTXt":
		if len(rest) < 2 {
			return t, fmt.Errorf("%w: short iTXt chunk", ErrMalformed)
		}
		compressed := rest[0] == 1
		rest = rest[2:]
		// skip language tag and translated keyword
		for i := 0; i < 2; i++ {
			_, after, ok := bytes.Cut(rest, []byte{0})
			if !ok {
				return t, fmt.Errorf("%w: truncated iTXt chunk", ErrMalformed)
			}
			rest = after
		}
		if compressed {
			text, err := inflate(rest)
			if err != nil {
				return t, err
			}
			rest = text
		}
		t.Value = string(rest)
	}
	return t, nil
}

func inflate(b []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return out, nil
}

func latin1(b []byte) string {
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}
