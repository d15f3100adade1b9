// SPDX-License-Identifier: MIT
//
// Package build carries the build metadata embedded with linker flags, for
// example:
//
//	go build -ldflags "-X pitchtrack/pkg/build.buildName=pitchtrack \
//	    -X pitchtrack/pkg/build.buildVersion=0.3.0 ..."
//
// Development builds run without the flags; Initialize reports which flag is
// missing and the defaults below stay in effect.
package build

import (
	"errors"
	"fmt"
)

// ErrMissingFlag is returned by Initialize when a linker flag was not set.
var ErrMissingFlag = errors.New("build flag missing")

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Package-level variables for build information. These are populated by
// -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        "pitchtrack",
		Description: "Live note tracker driving a MIDI synthesizer from a microphone",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
)

// Initialize validates and copies build information from the ldflags
// variables into the build flags. On a missing flag it returns an error
// wrapping ErrMissingFlag and leaves the development defaults untouched.
func Initialize() error {
	required := []struct {
		name  string
		value string
	}{
		{"BuildName", buildName},
		{"BuildTime", buildTime},
		{"BuildCommit", buildCommit},
		{"BuildVersion", buildVersion},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required: %w", r.name, ErrMissingFlag)
		}
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// String formats the build information for `--version` output.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", f.Name, f.Version, f.Commit, f.Time)
}
