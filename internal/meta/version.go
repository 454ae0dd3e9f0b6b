package meta

var (
	// Version is the release version of kanshi, injected via ldflags at
	// build time. "HEAD" means a development build.
	Version = "HEAD"

	// Commit is the git commit the binary was built from, injected via
	// ldflags at build time.
	Commit = "UNKNOWN"
)
