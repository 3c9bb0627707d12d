package agent

import (
	"strings"
	"testing"

	"github.com/driftware/deskhand/internal/config"
	"github.com/driftware/deskhand/internal/providers"
)

func pruningConfig() config.PruningConfig {
	return config.PruningConfig{
		KeepLastAssistants: 2,
		ContextWindowChars: 10_000,
		SoftTrimRatio:      0.3,
		HardClearRatio:     0.5,
		KeepLastImages:     2,
	}
}

func toolMsg(content string) providers.Message {
	return providers.Message{Role: providers.RoleTool, Content: content, ToolCallID: "c"}
}

func imageMsg() providers.Message {
	return providers.Message{Role: providers.RoleTool, ToolCallID: "c", ImagePNG: []byte{1, 2, 3}}
}

func assistantMsg() providers.Message {
	return providers.Message{Role: providers.RoleAssistant, Content: "next"}
}

func TestPrune_SmallTranscriptUntouched(t *testing.T) {
	msgs := []providers.Message{
		{Role: providers.RoleSystem, Content: "sys"},
		{Role: providers.RoleUser, Content: "task"},
		toolMsg("small"),
		assistantMsg(), assistantMsg(), assistantMsg(),
	}
	out := pruneTranscript(msgs, pruningConfig())
	if !sameSlice(out, msgs) {
		t.Error("small transcript was copied or modified")
	}
}

func TestPrune_DropsOldScreenshotsKeepsRecent(t *testing.T) {
	msgs := []providers.Message{
		{Role: providers.RoleUser, Content: "task"},
		imageMsg(), assistantMsg(),
		imageMsg(), assistantMsg(),
		imageMsg(), assistantMsg(),
		imageMsg(), assistantMsg(),
	}
	out := pruneTranscript(msgs, pruningConfig())

	var withImage []int
	for i, m := range out {
		if len(m.ImagePNG) > 0 {
			withImage = append(withImage, i)
		}
	}
	if len(withImage) != 2 {
		t.Fatalf("kept %d screenshots, want 2", len(withImage))
	}
	if withImage[0] != 5 || withImage[1] != 7 {
		t.Errorf("kept screenshots at %v, want the two most recent", withImage)
	}
	if out[1].Content != droppedImageNote {
		t.Errorf("dropped screenshot content = %q", out[1].Content)
	}
	// Input must be untouched.
	if len(msgs[1].ImagePNG) == 0 {
		t.Error("pruning mutated the input slice")
	}
}

func TestPrune_NewestScreenshotAlwaysSurvives(t *testing.T) {
	cfg := pruningConfig()
	cfg.KeepLastImages = 0 // nonsense value, clamped to 1
	msgs := []providers.Message{
		{Role: providers.RoleUser, Content: "task"},
		imageMsg(), assistantMsg(), imageMsg(), assistantMsg(),
	}
	out := pruneTranscript(msgs, cfg)
	if len(out[3].ImagePNG) == 0 {
		t.Error("most recent screenshot was dropped")
	}
}

func TestPrune_SoftTrimsLongOldToolResults(t *testing.T) {
	long := strings.Repeat("x", 6000)
	msgs := []providers.Message{
		{Role: providers.RoleUser, Content: "task"},
		toolMsg(long),
		assistantMsg(), assistantMsg(), assistantMsg(),
	}
	out := pruneTranscript(msgs, pruningConfig())
	if len(out[1].Content) >= len(long) {
		t.Error("old long tool result not trimmed")
	}
	if !strings.Contains(out[1].Content, "Tool result trimmed") {
		t.Errorf("trim marker missing: %q", out[1].Content[:80])
	}
	if !strings.HasPrefix(out[1].Content, "xxx") {
		t.Error("head not kept")
	}
}

func TestPrune_ProtectsRecentAssistantWindow(t *testing.T) {
	long := strings.Repeat("y", 6000)
	msgs := []providers.Message{
		{Role: providers.RoleUser, Content: "task"},
		assistantMsg(),
		assistantMsg(),
		toolMsg(long), // inside the protected window (last 2 assistants)
	}
	out := pruneTranscript(msgs, pruningConfig())
	if out[3].Content != long {
		t.Error("tool result inside the protected window was modified")
	}
}

func TestPrune_HardClearsWhenStillOverBudget(t *testing.T) {
	cfg := pruningConfig()
	cfg.ContextWindowChars = 4000 // tiny window forces hard clear
	long := strings.Repeat("z", 6000)
	msgs := []providers.Message{
		{Role: providers.RoleUser, Content: "task"},
		toolMsg(long),
		assistantMsg(), assistantMsg(), assistantMsg(),
	}
	out := pruneTranscript(msgs, cfg)
	if out[1].Content != hardClearPlaceholder {
		t.Errorf("content = %q, want placeholder", out[1].Content[:60])
	}
	if out[1].ToolCallID != "c" {
		t.Error("tool call id lost during hard clear")
	}
}

func TestPrune_DisabledDoesNothing(t *testing.T) {
	cfg := pruningConfig()
	cfg.Disabled = true
	long := strings.Repeat("x", 50_000)
	msgs := []providers.Message{
		{Role: providers.RoleUser, Content: "task"},
		toolMsg(long),
		assistantMsg(), assistantMsg(), assistantMsg(),
	}
	out := pruneTranscript(msgs, cfg)
	if out[1].Content != long {
		t.Error("pruning ran while disabled")
	}
}
