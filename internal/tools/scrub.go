package tools

import "regexp"

const redacted = "[REDACTED]"

// secretPatterns matches credential shapes that show up in shell output
// and viewed files (env dumps, dotfiles, cloud configs). Scrubbing runs on
// every tool result before it enters the transcript, on by default.
var secretPatterns = compilePatterns(
	`sk-ant-[a-zA-Z0-9-]{20,}`, // Anthropic (before the broader sk- form)
	`sk-[a-zA-Z0-9]{20,}`,      // OpenAI
	`gh[porus]_[a-zA-Z0-9]{36}`, // GitHub tokens, all flavors
	`AKIA[A-Z0-9]{16}`,          // AWS access key ID
	// key=value assignments for common secret names
	`(?i)(api[_-]?key|token|secret|password|bearer|authorization)\s*[:=]\s*["']?\S{8,}["']?`,
)

func compilePatterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// ScrubCredentials replaces anything matching a known credential shape
// with [REDACTED].
func ScrubCredentials(text string) string {
	for _, p := range secretPatterns {
		text = p.ReplaceAllString(text, redacted)
	}
	return text
}
