package version

// Build metadata, set with -ldflags "-X .../internal/shared/version.Version=...".
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)
