package version

// Version is overridden at build time with
// -ldflags "-X github.com/Gribbirg/deadline-mate/internal/version.Version=v1.2.3".
var Version = "dev"

// UserAgent is sent with every API request.
func UserAgent() string {
	return "dm/" + Version
}
