package build

// CurrentCommit is stamped by the linker: -X .../build.CurrentCommit=+git.<sha>
var CurrentCommit string

// BuildVersion is the released version of the client.
const BuildVersion = "1.2.0"

// UserVersion is the version string shown to users and tagged on metrics.
func UserVersion() string {
	return BuildVersion + CurrentCommit
}
