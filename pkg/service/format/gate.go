// pkg/service/format/gate.go
package format

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/alexclairr/imageguard/pkg/constant"
	"github.com/alexclairr/imageguard/pkg/domain/model"
)

// Status is the gate's classification of one file.
type Status int

const (
	StatusOK              Status = 1
	StatusNeedsConversion Status = 2
	StatusRejected        Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNeedsConversion:
		return "needs_conversion"
	case StatusRejected:
		return "rejected"
	default:
		return fmt.Sprintf("unknown_status_%d", s)
	}
}

// Decision is the outcome of Check.
type Decision struct {
	Path   string
	Format model.Format
	MIME   string
	Status Status
	// Target is the format a convertible file would be converted to.
	Target model.Format
}

// Err returns the taxonomy error for a non-ok decision.
func (d Decision) Err() error {
	switch d.Status {
	case StatusNeedsConversion:
		return fmt.Errorf("%w: %s must be converted to %s", constant.ErrNeedsConversion, d.Format, d.Target)
	case StatusRejected:
		return fmt.Errorf("%w: %s (%s) has no conversion path", constant.ErrFormatRejected, d.Format, d.MIME)
	default:
		return nil
	}
}

// writable lists the formats the container codecs can rewrite in place.
var writable = map[model.Format]bool{
	model.FormatWebP: true,
	model.FormatPNG:  true,
}

// needsVips lists the convertible formats Go cannot decode on its own.
var needsVips = map[model.Format]bool{
	model.FormatHEIC: true,
	model.FormatAVIF: true,
}

// GateConfig lists the format sets.
type GateConfig struct {
	Approved    []string
	Convertible []string
	Target      string
}

// Gate classifies files by their sniffed container format.
type Gate struct {
	approved    map[model.Format]bool
	convertible map[model.Format]bool
	target      model.Format
}

// NewGate validates cfg. Approved formats must be lossless and writable;
// the target must be approved. HEIC and AVIF are convertible only when
// vipsAvailable.
func NewGate(cfg GateConfig, vipsAvailable bool) (*Gate, error) {
	g := &Gate{
		approved:    make(map[model.Format]bool),
		convertible: make(map[model.Format]bool),
		target:      model.ParseFormat(cfg.Target),
	}
	for _, name := range cfg.Approved {
		f := model.ParseFormat(name)
		if !f.Lossless() || !writable[f] {
			return nil, fmt.Errorf("%w: %q cannot be an approved format", constant.ErrInvalidConfig, strings.TrimSpace(name))
		}
		g.approved[f] = true
	}
	if len(g.approved) == 0 {
		return nil, fmt.Errorf("%w: no approved formats", constant.ErrInvalidConfig)
	}
	if !g.approved[g.target] {
		return nil, fmt.Errorf("%w: conversion target %q is not approved", constant.ErrInvalidConfig, cfg.Target)
	}
	for _, name := range cfg.Convertible {
		f := model.ParseFormat(name)
		if f == model.FormatOther {
			return nil, fmt.Errorf("%w: unknown convertible format %q", constant.ErrInvalidConfig, strings.TrimSpace(name))
		}
		if needsVips[f] && !vipsAvailable {
			continue
		}
		g.convertible[f] = true
	}
	return g, nil
}

// Target returns the conversion target.
func (g *Gate) Target() model.Format { return g.target }

// Approved reports whether f is an approved format.
func (g *Gate) Approved(f model.Format) bool { return g.approved[f] }

// Classify maps a format to a gate status.
func (g *Gate) Classify(f model.Format) Status {
	switch {
	case g.approved[f]:
		return StatusOK
	case g.convertible[f]:
		return StatusNeedsConversion
	default:
		return StatusRejected
	}
}

// Check sniffs the file at path and classifies it. Only I/O failures are
// returned as errors.
func (g *Gate) Check(path string) (Decision, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return Decision{}, fmt.Errorf("sniff %s: %w", path, err)
	}
	return g.decide(path, mt), nil
}

// CheckBytes classifies already loaded content.
func (g *Gate) CheckBytes(path string, data []byte) Decision {
	return g.decide(path, mimetype.Detect(data))
}

func (g *Gate) decide(path string, mt *mimetype.MIME) Decision {
	f := FromMIME(mt)
	d := Decision{Path: path, Format: f, MIME: mt.String(), Status: g.Classify(f)}
	if d.Status == StatusNeedsConversion {
		d.Target = g.target
	}
	return d
}

// FromMIME maps a sniffed MIME type to a Format. Animated PNGs are not PNGs
// for this purpose.
func FromMIME(mt *mimetype.MIME) model.Format {
	switch {
	case mt.Is("image/webp"):
		return model.FormatWebP
	case mt.Is("image/png"):
		return model.FormatPNG
	case mt.Is("image/jpeg"):
		return model.FormatJPEG
	case mt.Is("image/gif"):
		return model.FormatGIF
	case mt.Is("image/bmp"):
		return model.FormatBMP
	case mt.Is("image/tiff"):
		return model.FormatTIFF
	case mt.Is("image/heic"), mt.Is("image/heif"):
		return model.FormatHEIC
	case mt.Is("image/avif"):
		return model.FormatAVIF
	default:
		return model.FormatOther
	}
}
