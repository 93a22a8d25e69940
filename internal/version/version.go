package version

// Version is overridden at build time with -ldflags "-X transcriber/internal/version.Version=..."
var Version = "dev"
