package gate

import "regexp"

// unsafePattern matches shell-injection shapes a gate command must never
// carry: subshell substitution, backticks, chaining into rm, and
// redirection into /dev/.
var unsafePattern = regexp.MustCompile("\\$\\(|`|;\\s*rm\\s|&&\\s*rm\\s|>\\s*/dev/")

// safeCommand reports whether cmd is free of the deny-listed patterns.
// An unsafe command is never executed; it is reported blocked instead.
func safeCommand(cmd string) bool {
	return !unsafePattern.MatchString(cmd)
}
