package configdef

import (
	"github.com/alexclairr/imageguard/pkg/constant"
)

// Definition describes one configuration key.
type Definition struct {
	Key     constant.SettingKey
	Value   string
	Comment string
}

// AllSettings is the single source of truth for the configuration keys,
// their defaults and the comments written into a fresh conf.ini.
var AllSettings = []Definition{
	// --- watermark ---
	{Key: constant.KeyWatermarkPayload, Value: "© Alex Clairr 2025", Comment: "Copyright text embedded into the pixels"},
	{Key: constant.KeyWatermarkStrength, Value: "32", Comment: "Quantisation step; larger survives more recompression and is more visible"},
	{Key: constant.KeyWatermarkMaxBitErrors, Value: "-1", Comment: "Bit errors tolerated when verifying; -1 means 1/16 of the payload bits"},
	{Key: constant.KeyWatermarkPasses, Value: "6", Comment: "Refinement passes against clipping"},

	// --- metadata ---
	{Key: constant.KeyMetadataAllow, Value: "ICCProfile,ColorSpace,XResolution,YResolution,ResolutionUnit,PixelXDimension,PixelYDimension", Comment: "Metadata fields that survive sanitization, comma separated"},
	{Key: constant.KeyMetadataCopyright, Value: "© Alex Clairr 2025", Comment: "Value forced into the EXIF Copyright tag; empty disables the override"},
	{Key: constant.KeyMetadataArtist, Value: "Alex Clairr", Comment: "Value forced into the EXIF Artist tag; empty disables the override"},

	// --- format ---
	{Key: constant.KeyFormatApproved, Value: "webp", Comment: "Lossless formats assets may be stored in (webp, png)"},
	{Key: constant.KeyFormatConvertible, Value: "jpeg,png,gif,bmp,tiff,heic,avif", Comment: "Formats converted to the target format; heic and avif need vips"},
	{Key: constant.KeyFormatTarget, Value: "webp", Comment: "Conversion target, one of the approved formats"},
	{Key: constant.KeyFormatRemoveSource, Value: "false", Comment: "Delete the source after a successful conversion during apply"},
	{Key: constant.KeyFormatOverwrite, Value: "false", Comment: "Let conversion during apply replace an existing target file"},
	{Key: constant.KeyFormatVips, Value: "vips", Comment: "Path or name of the vips binary"},

	// --- run ---
	{Key: constant.KeyRunWorkers, Value: "0", Comment: "Files processed in parallel; 0 means one per CPU"},
	{Key: constant.KeyRunTimeout, Value: "5m", Comment: "Deadline for a whole batch"},
	{Key: constant.KeyRunFailFast, Value: "false", Comment: "Stop after the first failing file"},
	{Key: constant.KeyRunAssetDir, Value: "assets/pics", Comment: "Directory checked when no paths are given"},
	{Key: constant.KeyRunSkipFile, Value: ".imageguard/skip.yaml", Comment: "Per-check exemption lists"},
	{Key: constant.KeyRunLogLevel, Value: "warn", Comment: "debug, info, warn or error"},
	{Key: constant.KeyRunSchedule, Value: "0 0 3 * * *", Comment: "Cron schedule (with seconds) of the watch command's audit"},
}
