package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/alexclairr/imageguard/internal/pkg/container"
	"github.com/alexclairr/imageguard/pkg/constant"
	"github.com/alexclairr/imageguard/pkg/domain/model"
	"github.com/alexclairr/imageguard/pkg/service/format"
	"github.com/alexclairr/imageguard/pkg/service/metadata"
	"github.com/alexclairr/imageguard/pkg/service/watermark"
)

// fileRun is the processing of a single file within a batch.
type fileRun struct {
	o      *Orchestrator
	ctx    context.Context
	logger *slog.Logger
	path   string
	mode   model.Mode
	batch  map[string]bool
	// nested is set for a conversion target processed on behalf of its
	// source.
	nested bool

	rel  string
	rows map[model.Check]model.CheckResult
}

func (r *fileRun) skipped(c model.Check) bool {
	return r.o.Skip.IsSkipped(r.rel, c)
}

func (r *fileRun) pass(c model.Check, detail string) {
	if !r.skipped(c) {
		r.rows[c] = model.CheckResult{Path: r.rel, Check: c, Verdict: model.VerdictPass, Detail: detail}
	}
}

func (r *fileRun) fail(c model.Check, err error) {
	if !r.skipped(c) {
		r.rows[c] = model.CheckResult{Path: r.rel, Check: c, Verdict: model.VerdictFail, Detail: err.Error(), Err: err}
	}
}

func (r *fileRun) skip(c model.Check, detail string) {
	if !r.skipped(c) {
		r.rows[c] = model.CheckResult{Path: r.rel, Check: c, Verdict: model.VerdictSkipped, Detail: detail}
	}
}

func (r *fileRun) failContent(err error) {
	for _, c := range model.ContentChecks {
		r.fail(c, err)
	}
}

func (r *fileRun) results() []model.CheckResult {
	out := make([]model.CheckResult, 0, len(model.AllChecks))
	for _, c := range model.AllChecks {
		if r.skipped(c) {
			out = append(out, skippedRow(r.rel, c))
			continue
		}
		row, ok := r.rows[c]
		if !ok {
			err := fmt.Errorf("%w: check was not evaluated", constant.ErrNotProcessed)
			row = model.CheckResult{Path: r.rel, Check: c, Verdict: model.VerdictFail, Detail: err.Error(), Err: err}
		}
		out = append(out, row)
	}
	return out
}

// process runs every check on the file. A nil result means the batch was
// cancelled before the file could be settled.
func (r *fileRun) process() []model.CheckResult {
	r.rel = r.o.rel(r.path)
	r.rows = make(map[model.Check]model.CheckResult, len(model.AllChecks))

	if r.skipped(model.CheckFormat) {
		// every check is exempt; the file is not even read
		return r.results()
	}

	data, err := r.o.Store.Read(r.ctx, r.path)
	if err != nil {
		if r.ctx.Err() != nil {
			return nil
		}
		err = fmt.Errorf("%w: read %s: %v", constant.ErrDecode, r.rel, err)
		r.fail(model.CheckFormat, err)
		r.failContent(err)
		return r.results()
	}

	d := r.o.Gate.CheckBytes(r.path, data)
	switch d.Status {
	case format.StatusOK:
		r.pass(model.CheckFormat, fmt.Sprintf("%s is approved", d.Format))
		if !r.approved(data, d.Format) {
			return nil
		}
	case format.StatusNeedsConversion:
		if r.mode == model.ModeAudit {
			r.fail(model.CheckFormat, d.Err())
			r.auditConvertible(data, d.Format)
			break
		}
		return r.convert(d)
	default:
		r.fail(model.CheckFormat, d.Err())
		r.failContent(fmt.Errorf("%w: not evaluated", constant.ErrFormatRejected))
	}
	return r.results()
}

// approved handles a file in an approved format. It returns false when the
// batch was cancelled before a write.
func (r *fileRun) approved(data []byte, f model.Format) bool {
	asset, err := load(r.path, f, data)
	if err != nil {
		r.failContent(err)
		return true
	}
	if r.mode == model.ModeAudit {
		r.auditAsset(asset)
		return true
	}
	return r.fix(asset)
}

// load decodes the pixels and the container metadata of an approved file.
func load(path string, f model.Format, data []byte) (*model.Asset, error) {
	img, err := format.Decode(data)
	if err != nil {
		return nil, err
	}
	meta, err := container.Read(f.String(), data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", constant.ErrDecode, err)
	}
	return &model.Asset{Path: path, Format: f, Data: data, Image: img, Meta: meta}, nil
}

// evaluation is the read-only state of the content checks of an asset.
type evaluation struct {
	offending []string
	detection watermark.Detection
	markErr   error
}

func (r *fileRun) evaluate(asset *model.Asset) evaluation {
	var ev evaluation
	if !r.skipped(model.CheckMetadata) {
		ev.offending = r.o.Sanitizer.Audit(asset.Format.String(), asset.Meta)
	}
	if !r.skipped(model.CheckWatermark) {
		ev.detection, ev.markErr = r.o.Codec.Verify(asset.Image)
	}
	return ev
}

func (r *fileRun) report(ev evaluation) {
	r.metadataRow(ev.offending)
	r.watermarkRow(ev.detection, ev.markErr)
}

func (r *fileRun) metadataRow(offending []string) {
	if len(offending) == 0 {
		r.pass(model.CheckMetadata, "only allowed fields present")
		return
	}
	r.fail(model.CheckMetadata, fmt.Errorf("%w: disallowed or missing fields: %s",
		constant.ErrVerificationMismatch, strings.Join(offending, ", ")))
}

func (r *fileRun) watermarkRow(det watermark.Detection, err error) {
	switch {
	case err != nil:
		r.fail(model.CheckWatermark, err)
	case det.Present:
		r.pass(model.CheckWatermark, fmt.Sprintf("watermark present (%d/%d bit errors)", det.BitErrors, det.Bits))
	default:
		r.fail(model.CheckWatermark, fmt.Errorf("%w: watermark missing (%d/%d bit errors)",
			constant.ErrVerificationMismatch, det.BitErrors, det.Bits))
	}
}

func (r *fileRun) auditAsset(asset *model.Asset) {
	r.report(r.evaluate(asset))
}

// auditConvertible evaluates the content of a file the container codecs
// cannot rewrite. Nothing is written.
func (r *fileRun) auditConvertible(data []byte, f model.Format) {
	if !r.skipped(model.CheckMetadata) {
		fields, err := metadata.ReadFile(r.path, f)
		if err != nil {
			r.fail(model.CheckMetadata, fmt.Errorf("%w: %v", constant.ErrDecode, err))
		} else {
			r.metadataRow(r.o.Sanitizer.AuditFields(fields))
		}
	}
	if !r.skipped(model.CheckWatermark) {
		img, err := format.Decode(data)
		if err != nil {
			r.fail(model.CheckWatermark, err)
			return
		}
		det, err := r.o.Codec.Verify(img)
		r.watermarkRow(det, err)
	}
}

// convert transcodes a convertible file and hands the result to the
// approved-format path.
func (r *fileRun) convert(d format.Decision) []model.CheckResult {
	res, err := r.o.Converter.Convert(r.ctx, r.path, format.ConvertOptions{
		Overwrite:    r.o.cfg.Overwrite,
		RemoveSource: r.o.cfg.RemoveSource,
	})
	if err != nil {
		if r.ctx.Err() != nil {
			return nil
		}
		r.logger.Warn("Conversion failed", slog.Any("error", err))
		r.fail(model.CheckFormat, fmt.Errorf("%w: conversion to %s failed: %w", constant.ErrNeedsConversion, d.Target, err))
		if data, rErr := r.o.Store.Read(r.ctx, r.path); rErr == nil {
			r.auditConvertible(data, d.Format)
		} else {
			r.failContent(fmt.Errorf("%w: not evaluated", constant.ErrNeedsConversion))
		}
		return r.results()
	}
	r.logger.Info("Converted", slog.String("result", res.String()))

	if res.Target == r.path {
		// mislabelled file rewritten in place: it is now an approved file
		r.pass(model.CheckFormat, fmt.Sprintf("converted in place from %s to %s", d.Format, d.Target))
		data, err := r.o.Store.Read(r.ctx, r.path)
		if err != nil {
			r.failContent(fmt.Errorf("%w: read converted file: %v", constant.ErrDecode, err))
			return r.results()
		}
		if !r.approved(data, d.Target) {
			return nil
		}
		return r.results()
	}

	target := r.o.rel(res.Target)
	if res.Removed {
		r.pass(model.CheckFormat, fmt.Sprintf("converted to %s", target))
	} else {
		r.fail(model.CheckFormat, fmt.Errorf("%w: converted to %s; remove the source", constant.ErrNeedsConversion, target))
	}
	for _, c := range model.ContentChecks {
		r.skip(c, "superseded by "+target)
	}
	rows := r.results()

	if r.nested || r.batch[filepath.Clean(res.Target)] {
		return rows
	}
	next := &fileRun{
		o:      r.o,
		ctx:    r.ctx,
		logger: r.logger.With(slog.String("converted_from", r.rel)),
		path:   res.Target,
		mode:   r.mode,
		batch:  r.batch,
		nested: true,
	}
	targetRows := next.process()
	if targetRows == nil {
		return nil
	}
	return append(rows, targetRows...)
}

// fix brings an approved asset into compliance and verifies the written
// file. It returns false when the batch was cancelled before the write.
func (r *fileRun) fix(asset *model.Asset) bool {
	before := r.evaluate(asset)

	meta := asset.Meta
	if !r.skipped(model.CheckMetadata) && len(before.offending) > 0 {
		clean, err := r.o.Sanitizer.Sanitize(asset.Format.String(), asset.Meta)
		if err != nil {
			r.fail(model.CheckMetadata, err)
			r.watermarkRow(before.detection, before.markErr)
			return true
		}
		meta = clean
		asset.MetaDirty = true
	}
	img := asset.Image
	if !r.skipped(model.CheckWatermark) && before.markErr == nil && !before.detection.Present {
		marked, err := r.o.Codec.Embed(asset.Image)
		if err != nil {
			r.fail(model.CheckWatermark, err)
			r.metadataRow(before.offending)
			return true
		}
		img = marked
		asset.PixelsDirty = true
	}
	if !asset.Dirty() {
		// already compliant: the file is not rewritten
		r.report(before)
		return true
	}

	out, err := encode(asset, img, meta)
	if err != nil {
		r.report(before)
		r.failChanged(asset, err)
		return true
	}
	if r.ctx.Err() != nil {
		return false
	}
	if err := r.o.Store.WriteAtomic(r.ctx, asset.Path, out); err != nil {
		if r.ctx.Err() != nil {
			return false
		}
		r.report(before)
		r.failChanged(asset, fmt.Errorf("%w: write %s: %v", constant.ErrInfrastructure, r.rel, err))
		return true
	}

	r.settle(asset, before)
	return true
}

// encode serialises the asset with its new pixels and metadata. The image
// stream is re-encoded only when the pixels changed.
func encode(asset *model.Asset, img *image.NRGBA, meta *container.Metadata) ([]byte, error) {
	stream := asset.Data
	if asset.PixelsDirty {
		var err error
		if stream, err = format.EncodeBytes(img, asset.Format); err != nil {
			return nil, err
		}
	}
	out, err := container.Write(asset.Format.String(), stream, meta)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", constant.ErrMetadata, err)
	}
	return out, nil
}

func (r *fileRun) failChanged(asset *model.Asset, err error) {
	if asset.MetaDirty {
		r.fail(model.CheckMetadata, err)
	}
	if asset.PixelsDirty {
		r.fail(model.CheckWatermark, err)
	}
}

// settle re-reads the written file and checks it. A file that does not
// verify is restored to its original bytes. This runs to completion even
// if the batch is cancelled meanwhile, so a file is never left half
// checked.
func (r *fileRun) settle(asset *model.Asset, before evaluation) {
	needMeta, needMark := asset.MetaDirty, asset.PixelsDirty
	ctx := context.WithoutCancel(r.ctx)
	var after evaluation
	data, err := r.o.Store.Read(ctx, asset.Path)
	if err == nil {
		var written *model.Asset
		if written, err = load(asset.Path, asset.Format, data); err == nil {
			after = r.evaluate(written)
		}
	}

	metaOK := !needMeta || (err == nil && len(after.offending) == 0)
	markOK := !needMark || (err == nil && after.markErr == nil && after.detection.Present)
	if metaOK && markOK {
		if needMeta {
			r.pass(model.CheckMetadata, "sanitized: removed or set "+strings.Join(before.offending, ", "))
		} else {
			r.metadataRow(after.offending)
		}
		if needMark {
			r.pass(model.CheckWatermark, fmt.Sprintf("watermark embedded (%d/%d bit errors)", after.detection.BitErrors, after.detection.Bits))
		} else {
			r.watermarkRow(after.detection, after.markErr)
		}
		return
	}

	r.logger.Warn("Written file did not verify, restoring original",
		slog.Bool("metadata_ok", metaOK), slog.Bool("watermark_ok", markOK), slog.Any("error", err))
	restoreErr := r.o.Store.WriteAtomic(ctx, asset.Path, asset.Data)
	if restoreErr != nil {
		r.logger.Error("Restoring original failed", slog.Any("error", restoreErr))
	}
	r.report(before)
	mismatch := func(what string) error {
		e := fmt.Errorf("%w: %s did not verify after write", constant.ErrVerificationMismatch, what)
		if err != nil {
			e = fmt.Errorf("%w: %v", e, err)
		}
		if restoreErr != nil {
			return errors.Join(e, fmt.Errorf("restore original: %w", restoreErr))
		}
		return fmt.Errorf("%w; original restored", e)
	}
	if !metaOK {
		r.fail(model.CheckMetadata, mismatch("metadata"))
	}
	if !markOK {
		r.fail(model.CheckWatermark, mismatch("watermark"))
	}
}
