// Package version reports the build metadata of the running binary.
package version

import (
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"
)

// Interpolated through linker options on release builds.
var gitCommit = "Local build"
var buildDate = "Moments ago"
var gitTag = "Unknown"

// GetVersion returns the full version string of this build.
func GetVersion() string {
	if buildDate == "{DATE}" {
		buildDate = time.Now().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s. Built at: %s", GetBuildData(), buildDate)
}

// GetBuildData returns the git tag and commit of the current build. Local
// builds fall back to asking git directly.
func GetBuildData() string {
	if gitCommit == "{STABLE_GIT_COMMIT}" {
		commit, err := exec.Command("git", "rev-parse", "HEAD").Output()
		if err != nil {
			log.Println(err)
		} else {
			gitCommit = strings.TrimRight(string(commit), "\r\n")
		}
	}
	return fmt.Sprintf("Kestrel/%s/%s", gitTag, gitCommit)
}
