package version

// Version is the deskbridge release version, overridden at build time via
// -ldflags "-X github.com/bnema/deskbridge/internal/version.Version=...".
var Version = "dev"
