// ABOUTME: Version information for dubcast binaries
// ABOUTME: Reported in logs, the health endpoint and request headers
package version

// Version is overridden at build time with -ldflags "-X ...version.Version=..."
var Version = "0.1.0"

const (
	Product      = "dubcast"
	Manufacturer = "dubcast"
)

// UserAgent identifies this build in HTTP requests and health responses
func UserAgent() string {
	return Product + "/" + Version
}
