package cmd

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/ajxudir/asttest/pkg/asterisk"
	"github.com/ajxudir/asttest/pkg/constants"
	"github.com/spf13/cobra"
)

// Version information set at build time via ldflags.
// Example: go build -ldflags="-X github.com/ajxudir/asttest/cmd.Version=1.0.0"
var (
	// Version is the semantic version of the build.
	Version = "dev"
	// BuildTime is the timestamp of the build.
	BuildTime = ""
	// GitCommit is the git commit hash of the build.
	GitCommit = ""
	// BuildOS is the target OS the binary was built for.
	BuildOS = ""
	// BuildArch is the target architecture the binary was built for.
	BuildArch = ""
)

var detectVersionFunc = asterisk.DetectVersion

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and build information",
	Long:  `Show the asttest version and build information, and the version of the Asterisk under test when it can be found.`,
	Run:   runVersion,
}

// runVersion prints the build information followed by the Asterisk version.
func runVersion(cmd *cobra.Command, args []string) {
	printVersionOutput()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if v, err := detectVersionFunc(ctx, asteriskFlag); err == nil {
		fmt.Printf("  Asterisk: %s\n", v)
	} else {
		fmt.Printf("  Asterisk: %s\n", constants.PlaceholderNA)
	}
}

// GetVersion returns the version string, "dev" for development builds.
func GetVersion() string {
	return Version
}

// getBuildTarget returns the OS and architecture the binary was built for,
// falling back to the runtime values when ldflags did not set them.
func getBuildTarget() (string, string) {
	buildOS, buildArch := BuildOS, BuildArch
	if buildOS == "" {
		buildOS = runtime.GOOS
	}
	if buildArch == "" {
		buildArch = runtime.GOARCH
	}
	return buildOS, buildArch
}

// HasArchMismatch reports whether a release binary runs on a platform it
// was not built for.
func HasArchMismatch() bool {
	if BuildOS == "" && BuildArch == "" {
		return false
	}
	buildOS, buildArch := getBuildTarget()
	return buildOS != runtime.GOOS || buildArch != runtime.GOARCH
}

// IsDevBuild reports whether the binary was built without a version tag.
func IsDevBuild() bool {
	return Version == "dev"
}

// IsPrerelease reports whether the version is a release candidate
// (_stage-YYYYMMDD-rcN).
func IsPrerelease() bool {
	return strings.HasPrefix(Version, "_stage-")
}

// GetBuildWarnings returns the combined build warnings, or an empty string.
//
// It performs the following operations:
//   - Step 1: Warn when the build target differs from the runtime platform
//   - Step 2: Warn for development builds
//   - Step 3: Warn for release candidates
//
// Returns:
//   - string: One or more warning paragraphs; empty when there is nothing to say
func GetBuildWarnings() string {
	var sb strings.Builder
	if HasArchMismatch() {
		buildOS, buildArch := getBuildTarget()
		fmt.Fprintf(&sb, "%s  Architecture mismatch: binary built for %s/%s but running on %s/%s\n"+
			"   This may cause unexpected behavior. Please download the correct binary.\n",
			constants.IconWarning, buildOS, buildArch, runtime.GOOS, runtime.GOARCH)
	}
	if IsDevBuild() {
		sb.WriteString(constants.IconWarning + "  Development build: this is an unreleased version without a version tag.\n")
	}
	if IsPrerelease() {
		sb.WriteString(constants.IconWarning + "  Staging build: " + Version + "\n" +
			"   Not intended for production test runs. Install a stable release instead.\n")
	}
	return sb.String()
}
