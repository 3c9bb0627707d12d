package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/driftware/deskhand/internal/action"
	"github.com/driftware/deskhand/internal/computer"
)

// ComputerTool drives the desktop: screenshots, mouse, and keyboard.
// After every input action it waits for the UI to settle, then returns a
// fresh screenshot so the model sees the effect of what it did.
type ComputerTool struct {
	capturer        *computer.Capturer
	injector        *computer.Injector
	screenshotDelay time.Duration
}

func NewComputerTool(cap *computer.Capturer, inj *computer.Injector, screenshotDelay time.Duration) *ComputerTool {
	return &ComputerTool{capturer: cap, injector: inj, screenshotDelay: screenshotDelay}
}

func (t *ComputerTool) Name() string { return action.ToolComputer }

func (t *ComputerTool) Description() string {
	d := t.capturer.Display()
	return fmt.Sprintf("Use a mouse and keyboard to interact with a computer, and take screenshots. "+
		"The screen's resolution is %dx%d. "+
		"Always take a screenshot first to see the current state of the screen. "+
		"Coordinates are [x, y] pixel positions with the origin at the top left.",
		d.TargetWidth, d.TargetHeight)
}

func (t *ComputerTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type": "string",
				"enum": []string{
					"screenshot", "cursor_position", "mouse_move",
					"left_click", "right_click", "middle_click", "double_click",
					"left_click_drag", "key", "type",
				},
				"description": "The action to perform on the computer.",
			},
			"coordinate": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "integer"},
				"description": "[x, y] target for mouse_move and left_click_drag. Clicks act at the current cursor position.",
			},
			"start_coordinate": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "integer"},
				"description": "[x, y] drag origin for left_click_drag. Defaults to the current cursor position.",
			},
			"text": map[string]interface{}{
				"type":        "string",
				"description": "Text to type, or an xdotool-style key combination for the key action (e.g. ctrl+s).",
			},
		},
		"required": []string{"action"},
	}
}

func (t *ComputerTool) Execute(ctx context.Context, act action.Action) *action.Result {
	switch act.Kind {
	case action.KindScreenshot:
		return t.screenshot(ctx)

	case action.KindCursorPosition:
		phys, err := t.injector.CursorPos(ctx)
		if err != nil {
			return action.FailErr(err)
		}
		p := t.capturer.Display().ToLogical(phys)
		return action.OK(fmt.Sprintf("X=%d,Y=%d", p.X, p.Y))

	case action.KindMouseMove:
		return t.afterInput(ctx, t.moveTo(ctx, *act.Coordinate))

	case action.KindLeftClick, action.KindRightClick, action.KindMiddleClick:
		return t.afterInput(ctx, t.click(ctx, act, false))

	case action.KindDoubleClick:
		return t.afterInput(ctx, t.click(ctx, act, true))

	case action.KindLeftClickDrag:
		return t.afterInput(ctx, t.drag(ctx, act))

	case action.KindKey:
		return t.afterInput(ctx, t.injector.Key(ctx, act.Keys))

	case action.KindType:
		return t.afterInput(ctx, t.injector.TypeText(ctx, act.Text))

	default:
		return action.Fail(fmt.Sprintf("action %s is not a computer action", act.Kind))
	}
}

func (t *ComputerTool) moveTo(ctx context.Context, p computer.Point) error {
	phys, err := t.capturer.Display().ToPhysical(p)
	if err != nil {
		return err
	}
	return t.injector.Move(ctx, phys)
}

func (t *ComputerTool) click(ctx context.Context, act action.Action, double bool) error {
	button := computer.ButtonLeft
	switch act.Kind {
	case action.KindRightClick:
		button = computer.ButtonRight
	case action.KindMiddleClick:
		button = computer.ButtonMiddle
	}
	if double {
		return t.injector.DoubleClick(ctx, button)
	}
	return t.injector.Click(ctx, button)
}

func (t *ComputerTool) drag(ctx context.Context, act action.Action) error {
	disp := t.capturer.Display()
	to, err := disp.ToPhysical(*act.Coordinate)
	if err != nil {
		return err
	}
	var from computer.Point
	if act.StartCoordinate != nil {
		from, err = disp.ToPhysical(*act.StartCoordinate)
	} else {
		from, err = t.injector.CursorPos(ctx)
	}
	if err != nil {
		return err
	}
	return t.injector.Drag(ctx, from, to, computer.ButtonLeft)
}

// afterInput turns an input action's outcome into a result: on success it
// waits for the configured settle delay and returns a fresh screenshot.
func (t *ComputerTool) afterInput(ctx context.Context, err error) *action.Result {
	if err != nil {
		return action.FailErr(err)
	}
	if t.screenshotDelay > 0 {
		select {
		case <-time.After(t.screenshotDelay):
		case <-ctx.Done():
			return action.FailErr(ctx.Err())
		}
	}
	return t.screenshot(ctx)
}

func (t *ComputerTool) screenshot(ctx context.Context) *action.Result {
	png, err := t.capturer.Capture(ctx)
	if err != nil {
		return action.FailErr(err)
	}
	return action.OKImage("", png)
}
