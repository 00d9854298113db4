// Package version provides version information for the near-oracle node.
package version

// Version is the current version of the near-oracle node.
const Version = "1.0.0"

// AgentString returns the User-Agent sent to upstream price sources.
// Format: NEAR-TEE-Oracle/{version}
func AgentString() string {
	return "NEAR-TEE-Oracle/" + Version
}
