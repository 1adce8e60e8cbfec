// Package version holds build information for the bootstrapper.
package version

// Version is overridden at build time with
// -ldflags "-X github.com/vertextoedge/batch-bootstrapper/internal/version.Version=x.y.z"
var Version = "0.3.0"

// ProductToken identifies the tool in the User-Agent header
const ProductToken = "BatchBootstrapper"

// UserAgent returns "<product>/<version> <clientToken>"
func UserAgent(clientToken string) string {
	if clientToken == "" {
		return ProductToken + "/" + Version
	}
	return ProductToken + "/" + Version + " " + clientToken
}
