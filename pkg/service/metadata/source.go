// pkg/service/metadata/source.go
package metadata

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dsoprea/go-exif/v3"

	heicexif "github.com/dsoprea/go-heic-exif-extractor"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure"
	pngstructure "github.com/dsoprea/go-png-image-structure"
	tiffstructure "github.com/dsoprea/go-tiff-image-structure"
	riimage "github.com/dsoprea/go-utility/image"

	"github.com/alexclairr/imageguard/internal/pkg/container"
	"github.com/alexclairr/imageguard/pkg/domain/model"
)

type (
	exifParser interface {
		Parse(rs io.ReadSeeker, size int) (ec riimage.MediaContext, err error)
	}
)

func getExifParser(f model.Format) exifParser {
	switch f {
	case model.FormatJPEG:
		return jpegstructure.NewJpegMediaParser()
	case model.FormatPNG:
		return pngstructure.NewPngMediaParser()
	case model.FormatTIFF:
		return tiffstructure.NewTiffMediaParser()
	case model.FormatHEIC, model.FormatAVIF:
		return heicexif.NewHeicExifMediaParser()
	default:
		// everything else relies on the brute-force search
		return nil
	}
}

// ReadFile lists the metadata fields of any image file. WebP and PNG go
// through the container codecs and report every payload; other formats
// report their EXIF tags only.
func ReadFile(path string, format model.Format) (Fields, error) {
	switch format {
	case model.FormatWebP, model.FormatPNG:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		meta, err := container.Read(string(format), data)
		if err != nil {
			return nil, err
		}
		return Extract(string(format), meta), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := searchExif(f, format)
	if err != nil {
		return nil, err
	}
	fields := Fields{}
	if len(raw) == 0 {
		return fields, nil
	}
	tags, err := exifTags(raw)
	if err != nil {
		fields[FieldExif] = err.Error()
		return fields, nil
	}
	for _, t := range tags {
		fields[t.name] = t.value
	}
	return fields, nil
}

// searchExif tries the structural parser for the format first and falls
// back to scanning the whole file for an EXIF header.
func searchExif(f *os.File, format model.Format) ([]byte, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	var exifData []byte
	if parser := getExifParser(format); parser != nil {
		if res, pErr := parser.Parse(f, int(info.Size())); pErr == nil {
			_, exifData, _ = res.Exif()
		} else {
			log.Printf("[MetadataReader] structured parse of %s failed: %v; falling back to brute-force search", f.Name(), pErr)
		}
	}
	if len(exifData) > 0 {
		return exifData, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind %s: %w", f.Name(), err)
	}
	exifData, err = exif.SearchAndExtractExifWithReader(f)
	if err != nil {
		if errors.Is(err, exif.ErrNoExif) {
			return nil, nil
		}
		return nil, fmt.Errorf("search EXIF in %s: %w", f.Name(), err)
	}
	return exifData, nil
}
