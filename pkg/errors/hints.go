package errors

import (
	"strings"
)

// ErrorHint provides actionable resolution hints for common errors.
//
// Fields:
//   - Pattern: Substring to match in error message (case-insensitive)
//   - Hint: Brief description of the issue
//   - Resolution: Command or action to resolve the issue
type ErrorHint struct {
	Pattern    string
	Hint       string
	Resolution string
}

// CommonErrorHints maps error message fragments to hints.
var CommonErrorHints = []ErrorHint{
	{
		Pattern:    "unable to connect to remote asterisk",
		Hint:       "Asterisk is not running or its control socket is elsewhere",
		Resolution: "check astrundir in the generated asterisk.conf and the instance log",
	},
	{
		Pattern:    "no such command",
		Hint:       "The CLI command is provided by a module that is not loaded",
		Resolution: "load the module in modules.conf or add an 'asterisk' dependency",
	},
	{
		Pattern:    "buildopts.h",
		Hint:       "Asterisk build options header not found",
		Resolution: "install the Asterisk headers or pass --buildopts",
	},
	{
		Pattern:    "executable file not found",
		Hint:       "The asterisk binary is not on PATH",
		Resolution: "install Asterisk or pass --asterisk /path/to/asterisk",
	},
	{
		Pattern:    "waitfullybooted",
		Hint:       "Asterisk did not finish booting",
		Resolution: "inspect <run-dir>/ast1/var/log/asterisk/messages for startup errors",
	},
}

// DependencyHints maps dependency names to installation hints.
var DependencyHints = map[string]string{
	"sipp":    "Install SIPp: https://github.com/SIPp/sipp",
	"tcpdump": "Install tcpdump from your distribution",
	"asttest": "Build the asttest helper from the suite's asttest/ directory",
	"ipv6":    "Enable IPv6 on the loopback interface",
	"fax":     "Build Asterisk with spandsp and load res_fax_spandsp",
}

// GetHint returns a hint for err, or an empty string if none matches.
func GetHint(err error) string {
	if err == nil {
		return ""
	}

	errStr := strings.ToLower(err.Error())
	for _, hint := range CommonErrorHints {
		if strings.Contains(errStr, strings.ToLower(hint.Pattern)) {
			return hint.Hint + ": " + hint.Resolution
		}
	}

	return ""
}

// GetHintForDependency returns the installation hint for a dependency name.
func GetHintForDependency(name string) string {
	return DependencyHints[name]
}

// EnhanceErrorWithHint adds an actionable hint to an error message if a
// matching pattern is found.
func EnhanceErrorWithHint(err error) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()
	if hint := GetHint(err); hint != "" {
		return errStr + "\n  Hint: " + hint
	}
	return errStr
}
