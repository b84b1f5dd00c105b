package asterisk

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/ajxudir/asttest/pkg/cmdexec"
)

// branchPatch stands in for every unreleased component of a branch build,
// so a branch sorts after all releases cut from it.
const branchPatch = 999999

// trunkVersion orders trunk and master builds after every release.
const trunkVersion = "v999999.0.0"

var (
	svnPattern     = regexp.MustCompile(`^SVN-(.+)-r\d+M?(?:-.*)?$`)
	gitPattern     = regexp.MustCompile(`^GIT-(.+?)-[0-9a-f]+M?(?:-.*)?$`)
	releasePattern = regexp.MustCompile(`^(\d+(?:\.\d+)*)(?:-(rc\d+|beta\d+|alpha\d+|cert\d+))?$`)
)

// Version is a parsed Asterisk version string.
//
// Releases such as "1.8.32.3" and "13.1.0-rc1" map to semver with the fourth
// component kept aside. Branch builds ("SVN-branch-13-r42", "GIT-13-abc123")
// sort after every release of their branch; trunk builds sort last.
type Version struct {
	raw    string
	semver string
	extra  int
	branch bool
}

// ParseVersion parses an Asterisk version string. A leading "Asterisk " is
// stripped, so the output of "asterisk -V" can be passed directly.
//
// Parameters:
//   - s: Version text
//
// Returns:
//   - Version: Parsed version
//   - error: When s is not a recognised release or branch format
func ParseVersion(s string) (Version, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "Asterisk "))
	v := Version{raw: raw}
	if raw == "" {
		return v, fmt.Errorf("empty asterisk version")
	}

	name := raw
	if m := svnPattern.FindStringSubmatch(raw); m != nil {
		name, v.branch = m[1], true
	} else if m := gitPattern.FindStringSubmatch(raw); m != nil {
		name, v.branch = m[1], true
	}
	name = strings.TrimPrefix(name, "certified/")
	name = strings.TrimSuffix(name, "-digiumphones")

	if v.branch {
		b := strings.TrimPrefix(name, "branch-")
		if b == "trunk" || b == "master" || b == name && !releasePattern.MatchString(b) {
			v.semver = trunkVersion
			return v, nil
		}
		name = b
	}

	m := releasePattern.FindStringSubmatch(name)
	if m == nil {
		return v, fmt.Errorf("invalid asterisk version %q", s)
	}
	parts := strings.Split(m[1], ".")
	if len(parts) > 4 {
		return v, fmt.Errorf("invalid asterisk version %q", s)
	}

	nums := make([]int, 4)
	for idx := range nums {
		switch {
		case idx < len(parts):
			n, err := strconv.Atoi(parts[idx])
			if err != nil {
				return v, fmt.Errorf("invalid asterisk version %q: %w", s, err)
			}
			nums[idx] = n
		case v.branch:
			nums[idx] = branchPatch
		}
	}

	pre := m[2]
	if strings.HasPrefix(pre, "cert") {
		n, _ := strconv.Atoi(strings.TrimPrefix(pre, "cert"))
		if len(parts) < 4 {
			nums[3] = n
		}
		pre = ""
	}

	v.semver = fmt.Sprintf("v%d.%d.%d", nums[0], nums[1], nums[2])
	if pre != "" {
		v.semver += "-" + pre
	}
	v.extra = nums[3]
	if !semver.IsValid(v.semver) {
		return v, fmt.Errorf("invalid asterisk version %q", s)
	}
	return v, nil
}

// MustParseVersion is ParseVersion for constants known to be valid.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the original text.
func (v Version) String() string { return v.raw }

// IsZero reports whether v was never parsed.
func (v Version) IsZero() bool { return v.semver == "" }

// Branch reports whether v came from an SVN or Git branch build.
func (v Version) Branch() bool { return v.branch }

// Semver returns the canonical semver form, without the fourth component.
func (v Version) Semver() string { return v.semver }

// Compare returns -1, 0 or +1 as v is older than, equal to or newer than o.
func (v Version) Compare(o Version) int {
	if c := semver.Compare(v.semver, o.semver); c != 0 {
		return c
	}
	switch {
	case v.extra < o.extra:
		return -1
	case v.extra > o.extra:
		return 1
	}
	return 0
}

// InRange reports whether v satisfies an inclusive minimum and maximum.
// Empty bounds are unbounded.
//
// Returns:
//   - bool: true when v is within [min, max]
//   - string: Which bound failed ("minversion" or "maxversion"), empty when in range
//   - error: When a bound cannot be parsed
func (v Version) InRange(min, max string) (bool, string, error) {
	if min != "" {
		mv, err := ParseVersion(min)
		if err != nil {
			return false, "minversion", err
		}
		if v.Compare(mv) < 0 {
			return false, "minversion", nil
		}
	}
	if max != "" {
		mv, err := ParseVersion(max)
		if err != nil {
			return false, "maxversion", err
		}
		if v.Compare(mv) > 0 {
			return false, "maxversion", nil
		}
	}
	return true, "", nil
}

// DetectVersion asks the binary for its version with "asterisk -V".
func DetectVersion(ctx context.Context, binary string) (Version, error) {
	if binary == "" {
		binary = DefaultBinary
	}
	res, err := cmdexec.Run(ctx, cmdexec.Spec{Path: binary, Args: []string{"-V"}, Timeout: DefaultCLITimeout})
	if err != nil {
		return Version{}, fmt.Errorf("detect asterisk version: %w", err)
	}
	if res.ExitCode != 0 {
		return Version{}, fmt.Errorf("detect asterisk version: %s -V exited %d", binary, res.ExitCode)
	}
	return ParseVersion(string(res.Stdout))
}
