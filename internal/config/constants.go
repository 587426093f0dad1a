package config

// ToolName is the command name used in generated headers and messages.
const ToolName = "specialize"

// SettingsFileName is the optional per-project settings file.
const SettingsFileName = ".specialize.yaml"

// EnvPrefix prefixes environment overrides (SPECIALIZE_LOG_LEVEL, ...).
const EnvPrefix = "SPECIALIZE_"

// Default setting values
const (
	DefaultLogLevel = "info"
	DefaultColor    = "auto"
)

// Version is the tool version, set at build time with
// -ldflags "-X github.com/funvibe/specialize/internal/config.Version=...".
var Version = "dev"
