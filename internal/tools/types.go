package tools

import (
	"context"

	"github.com/driftware/deskhand/internal/action"
	"github.com/driftware/deskhand/internal/providers"
)

// Tool executes decoded actions for one tool name. Implementations
// receive validated Actions only; argument parsing and bounds checking
// happen in the action codec before Execute is reached.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, act action.Action) *action.Result
}

// ToProviderDef converts a Tool to a providers.ToolDefinition for model APIs.
func ToProviderDef(t Tool) providers.ToolDefinition {
	return providers.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Parameters(),
	}
}
