package descriptor

import (
	"regexp"
	"strconv"
	"strings"
)

var semverRegex = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// IsValidSemver checks if a version string follows semantic versioning.
func IsValidSemver(version string) bool {
	return semverRegex.MatchString(version)
}

// IsValidRequirement checks if a version requirement string is parseable.
// Supported forms: "*", "1.2.3", "=1.2.3", ">=1.2.3", ">1.2.3", "<=1.2.3",
// "<1.2.3" and "^1.2.3" (same major).
func IsValidRequirement(req string) bool {
	op, version := splitRequirement(req)
	if op == "*" {
		return true
	}
	return IsValidSemver(version)
}

// CompareVersions compares two semver strings, returning -1, 0 or 1.
// Pre-release and build metadata are ignored.
func CompareVersions(a, b string) int {
	am := parseVersion(a)
	bm := parseVersion(b)
	for i := 0; i < 3; i++ {
		if am[i] != bm[i] {
			if am[i] < bm[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Satisfies reports whether version meets the requirement. An empty
// requirement matches any version.
func Satisfies(version, requirement string) bool {
	op, want := splitRequirement(requirement)
	switch op {
	case "*":
		return true
	case "^":
		return parseVersion(version)[0] == parseVersion(want)[0] &&
			CompareVersions(version, want) >= 0
	case ">=":
		return CompareVersions(version, want) >= 0
	case ">":
		return CompareVersions(version, want) > 0
	case "<=":
		return CompareVersions(version, want) <= 0
	case "<":
		return CompareVersions(version, want) < 0
	default:
		return CompareVersions(version, want) == 0
	}
}

func splitRequirement(req string) (op, version string) {
	req = strings.TrimSpace(req)
	if req == "" || req == "*" {
		return "*", ""
	}
	for _, candidate := range []string{">=", "<=", ">", "<", "^", "="} {
		if strings.HasPrefix(req, candidate) {
			return candidate, strings.TrimSpace(strings.TrimPrefix(req, candidate))
		}
	}
	return "=", req
}

func parseVersion(version string) [3]int {
	var out [3]int
	matches := semverRegex.FindStringSubmatch(version)
	if len(matches) < 4 {
		return out
	}
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(matches[i+1])
		if err != nil {
			return [3]int{}
		}
		out[i] = n
	}
	return out
}
