package sandbox

import (
	"fmt"
	"regexp"
	"strings"
)

// Verdict is the validator's pass/fail decision for one request.
// It is produced fresh per request and never cached.
type Verdict struct {
	Allowed         bool
	ViolatingSymbol string
	Reason          string
}

var (
	importRe     = regexp.MustCompile(`^\s*import\s+([A-Za-z_][A-Za-z0-9_.]*)`)
	fromImportRe = regexp.MustCompile(`^\s*from\s+([A-Za-z_][A-Za-z0-9_.]*)\s+import\b`)
)

// dangerousCall pairs a symbol name with the source pattern that flags it.
// Matching is textual and best-effort: it catches direct invocations and
// basic aliasing, not string-built or encoded indirection. Real isolation
// comes from the process-level restrictions applied by the executors.
type dangerousCall struct {
	symbol  string
	pattern *regexp.Regexp
}

var dangerousCalls = []dangerousCall{
	{"__import__", regexp.MustCompile(`__import__\s*\(`)},
	{"eval", regexp.MustCompile(`\beval\s*\(`)},
	{"exec", regexp.MustCompile(`\bexec\s*\(`)},
	{"compile", regexp.MustCompile(`\bcompile\s*\(`)},
	{"open(write)", regexp.MustCompile(`\bopen\s*\([^)]*,\s*['"](?:[wax]|r\+)`)},
	{"os.system", regexp.MustCompile(`\bos\s*\.\s*system\s*\(`)},
	{"os.popen", regexp.MustCompile(`\bos\s*\.\s*popen\s*\(`)},
	{"subprocess", regexp.MustCompile(`\bsubprocess\s*\.`)},
	{"socket.socket", regexp.MustCompile(`\bsocket\s*\.\s*socket\s*\(`)},
	{"importlib", regexp.MustCompile(`\bimportlib\s*\.`)},
}

// Validate is the static pre-execution gate. It scans the source text for
// import statements and dangerous call patterns, and checks each requested
// package against the policy. The first violation wins; a rejected verdict
// must short-circuit execution before any interpreter or process exists.
// Pure function: no side effects, safe for concurrent use.
func Validate(code string, packages []string, policy PolicySet) Verdict {
	for _, line := range strings.Split(code, "\n") {
		module := importedModule(line)
		if module == "" {
			continue
		}
		if policy.Denied(module) {
			return Verdict{
				ViolatingSymbol: module,
				Reason:          fmt.Sprintf("import of denylisted module %q", module),
			}
		}
		if !policy.Permitted(module) {
			return Verdict{
				ViolatingSymbol: module,
				Reason:          fmt.Sprintf("import of module %q not on the allowlist", module),
			}
		}
	}

	// Dangerous calls are violations even without a matching import line;
	// this catches basic aliasing and dynamic-import obfuscation.
	for _, call := range dangerousCalls {
		if call.pattern.MatchString(code) {
			return Verdict{
				ViolatingSymbol: call.symbol,
				Reason:          fmt.Sprintf("use of prohibited call %q", call.symbol),
			}
		}
	}

	// Requested packages may never be imported in the visible source but
	// would still be installed; they face the same policy.
	for _, pkg := range packages {
		if !policy.Permitted(pkg) {
			return Verdict{
				ViolatingSymbol: pkg,
				Reason:          fmt.Sprintf("requested package %q is not permitted", pkg),
			}
		}
	}

	return Verdict{Allowed: true}
}

// importedModule extracts the module name from an import-like line,
// or returns "" when the line is not an import statement.
func importedModule(line string) string {
	if m := importRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	if m := fromImportRe.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return ""
}
