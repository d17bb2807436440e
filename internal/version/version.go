package version

// Version is overridden at build time with
// -ldflags "-X github.com/khulnasoft/pr-insight/internal/version.Version=x.y.z".
var Version = "0.1.0"

// FullVersion returns Version with a "v" prefix.
func FullVersion() string {
	return "v" + Version
}
