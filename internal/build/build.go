// Package build holds build-time information.
package build

// These values default to "dev"/"unknown" and are overwritten by linker
// flags at release time, e.g.:
//
//	go build -ldflags "-X go.trai.ch/forge/internal/build.Version=v1.2.3"
var (
	// Version is the application version.
	Version = "dev"

	// Commit is the git commit the binary was built from.
	Commit = "unknown"

	// Date is the build timestamp in RFC 3339 form.
	Date = "unknown"
)
