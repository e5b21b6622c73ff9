package recordings

// Workspace-relative root directories that may hold recording sessions.
// Session lookup probes them in this order.
const (
	RadioRootDir      = "radio_recordings"
	MicrophoneRootDir = "recordings"
)

// RootsInLookupOrder lists the session roots, radio recordings first.
func RootsInLookupOrder() []string {
	return []string{RadioRootDir, MicrophoneRootDir}
}
