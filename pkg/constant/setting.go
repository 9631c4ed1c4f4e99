// pkg/constant/setting.go
package constant

// SettingKey is a "Section.Key" name in conf.ini. The matching environment
// override is IMAGEGUARD_SECTION_KEY.
type SettingKey string

func (k SettingKey) String() string {
	return string(k)
}

const (
	// --- watermark codec ---
	KeyWatermarkPayload      SettingKey = "Watermark.Payload"
	KeyWatermarkStrength     SettingKey = "Watermark.Strength"
	KeyWatermarkMaxBitErrors SettingKey = "Watermark.MaxBitErrors"
	KeyWatermarkPasses       SettingKey = "Watermark.Passes"

	// --- metadata sanitizer ---
	KeyMetadataAllow     SettingKey = "Metadata.Allow"
	KeyMetadataCopyright SettingKey = "Metadata.Copyright"
	KeyMetadataArtist    SettingKey = "Metadata.Artist"

	// --- format gate and converter ---
	KeyFormatApproved     SettingKey = "Format.Approved"
	KeyFormatConvertible  SettingKey = "Format.Convertible"
	KeyFormatTarget       SettingKey = "Format.Target"
	KeyFormatRemoveSource SettingKey = "Format.RemoveSource"
	KeyFormatOverwrite    SettingKey = "Format.Overwrite"
	KeyFormatVips         SettingKey = "Format.Vips"

	// --- orchestrator ---
	KeyRunWorkers  SettingKey = "Run.Workers"
	KeyRunTimeout  SettingKey = "Run.Timeout"
	KeyRunFailFast SettingKey = "Run.FailFast"
	KeyRunAssetDir SettingKey = "Run.AssetDir"
	KeyRunSkipFile SettingKey = "Run.SkipFile"
	KeyRunLogLevel SettingKey = "Run.LogLevel"
	KeyRunSchedule SettingKey = "Run.Schedule"
)
