// Package constants provides named constants used throughout the cdnet codebase.
// This centralizes magic numbers for better maintainability and documentation.
package constants

// Cell algebra constants
const (
	// Epsilon guards the division in the all-spikes EE formula when a
	// channel's own coincidence integral is exactly zero.
	Epsilon = 1e-15

	// DefaultMaxSubsetTerms bounds the number of subset terms a single EE or
	// CD evaluation may enumerate. Each term costs at least one integral.
	DefaultMaxSubsetTerms = 1 << 20
)

// Integration defaults
const (
	// DefaultMethod is the integration method used when none is configured.
	DefaultMethod = "lfilter"

	// ZeroPhasePadFactor multiplies the kernel length to get the odd-extension
	// pad used by the zero-phase filter.
	ZeroPhasePadFactor = 3
)

// Execution defaults
const (
	// DefaultWorkers is the number of cells evaluated concurrently per frontier.
	DefaultWorkers = 1
)

// File layout
const (
	// ConfigDirName is the per-user directory holding config.yaml and traces.
	ConfigDirName = ".cdnet"

	// ConfigFileName is the YAML config file inside ConfigDirName.
	ConfigFileName = "config.yaml"

	// TraceFileName is the JSONL run trace written at debug level.
	TraceFileName = "trace.jsonl"

	// AuditFileName is the JSONL log of MCP tool calls.
	AuditFileName = "audit.jsonl"

	// ArchiveFileName is the default run archive inside ConfigDirName.
	ArchiveFileName = "runs.db"

	// MaxDecompressedSize caps gzip-compressed sequence files (512MB).
	MaxDecompressedSize = 512 * 1024 * 1024
)
