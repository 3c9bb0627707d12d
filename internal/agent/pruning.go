package agent

import (
	"fmt"
	"unicode/utf8"

	"github.com/driftware/deskhand/internal/config"
	"github.com/driftware/deskhand/internal/providers"
)

// Pruning tuning. Screenshot payloads dominate the context, so they are
// dropped first; text tool results are soft-trimmed and then hard-cleared
// when the transcript keeps growing.
const (
	softTrimMaxChars     = 4000
	softTrimHeadChars    = 1500
	softTrimTailChars    = 1500
	hardClearPlaceholder = "[Old tool result content cleared]"
	droppedImageNote     = "[Old screenshot removed]"
)

// pruneTranscript trims old tool results to keep the transcript inside
// the configured context window.
//
// Three passes, cheapest first:
//  1. Drop screenshot payloads beyond the most recent keep_last_images.
//  2. Soft trim: keep head + tail of long tool results, drop the middle.
//  3. Hard clear: replace entire old tool results with a placeholder.
//
// Only tool results older than the last keep_last_assistants assistant
// turns are eligible. Returns a new slice if anything changed, otherwise
// the original.
func pruneTranscript(msgs []providers.Message, cfg config.PruningConfig) []providers.Message {
	if cfg.Disabled || len(msgs) == 0 || cfg.ContextWindowChars <= 0 {
		return msgs
	}

	out := dropOldScreenshots(msgs, cfg.KeepLastImages)

	cutoff := findAssistantCutoff(out, cfg.KeepLastAssistants)
	if cutoff < 0 {
		return out
	}

	// Never prune before the first user message.
	pruneStart := len(out)
	for i, m := range out {
		if m.Role == providers.RoleUser {
			pruneStart = i
			break
		}
	}

	totalChars := 0
	for _, m := range out {
		totalChars += estimateMessageChars(m)
	}
	window := float64(cfg.ContextWindowChars)

	if float64(totalChars)/window < cfg.SoftTrimRatio {
		return out
	}

	var prunable []int
	for i := pruneStart; i < cutoff; i++ {
		if out[i].Role == providers.RoleTool && out[i].Content != "" {
			prunable = append(prunable, i)
		}
	}
	if len(prunable) == 0 {
		return out
	}

	// Pass 2: soft trim long tool results.
	copied := !sameSlice(out, msgs)
	for _, idx := range prunable {
		msg := out[idx]
		msgChars := estimateMessageChars(msg)
		if msgChars <= softTrimMaxChars {
			continue
		}
		if !copied {
			out = copyMessages(out)
			copied = true
		}
		head := takeHead(msg.Content, softTrimHeadChars)
		tail := takeTail(msg.Content, softTrimTailChars)
		trimmed := fmt.Sprintf("%s\n...\n%s\n\n[Tool result trimmed: kept first %d and last %d of %d chars.]",
			head, tail, softTrimHeadChars, softTrimTailChars, msgChars)
		out[idx].Content = trimmed
		totalChars += utf8.RuneCountInString(trimmed) - msgChars
	}

	if float64(totalChars)/window < cfg.HardClearRatio {
		return out
	}

	// Pass 3: hard clear oldest-first until under the ratio.
	for _, idx := range prunable {
		if float64(totalChars)/window < cfg.HardClearRatio {
			break
		}
		if !copied {
			out = copyMessages(out)
			copied = true
		}
		before := estimateMessageChars(out[idx])
		out[idx].Content = hardClearPlaceholder
		totalChars += len(hardClearPlaceholder) - before
	}
	return out
}

// dropOldScreenshots clears image payloads except the most recent keep.
// The newest screenshot always survives: the model must be able to see
// the current screen.
func dropOldScreenshots(msgs []providers.Message, keep int) []providers.Message {
	if keep <= 0 {
		keep = 1
	}
	seen := 0
	out := msgs
	copied := false
	for i := len(msgs) - 1; i >= 0; i-- {
		if len(msgs[i].ImagePNG) == 0 {
			continue
		}
		seen++
		if seen <= keep {
			continue
		}
		if !copied {
			out = copyMessages(msgs)
			copied = true
		}
		out[i].ImagePNG = nil
		if out[i].Content == "" {
			out[i].Content = droppedImageNote
		}
	}
	return out
}

// findAssistantCutoff returns the index of the Nth-from-last assistant
// message. Messages at or after this index are protected from pruning.
// Returns -1 if not enough assistant messages exist.
func findAssistantCutoff(msgs []providers.Message, keepLast int) int {
	if keepLast <= 0 {
		return len(msgs)
	}
	remaining := keepLast
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == providers.RoleAssistant {
			remaining--
			if remaining == 0 {
				return i
			}
		}
	}
	return -1
}

func estimateMessageChars(m providers.Message) int {
	return utf8.RuneCountInString(m.Content)
}

func copyMessages(msgs []providers.Message) []providers.Message {
	out := make([]providers.Message, len(msgs))
	copy(out, msgs)
	return out
}

func sameSlice(a, b []providers.Message) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}

// takeHead returns the first n runes of s.
func takeHead(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// takeTail returns the last n runes of s.
func takeTail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
