package remote

import "github.com/yigit/academydesk/internal/store"

// Callback receives a settled result (or nil for a start hook) together with
// the store's dispatch so it can emit follow-up actions.
type Callback func(result any, dispatch store.DispatchFunc)

type hookKind uint8

const (
	hookNone hookKind = iota
	hookAction
	hookCallback
)

// Hook is either an action type to dispatch or a Callback to invoke.
// The zero Hook does nothing.
type Hook struct {
	kind     hookKind
	action   string
	callback Callback
}

// ActionHook dispatches {Type: actionType, Payload: result}.
func ActionHook(actionType string) Hook {
	if actionType == "" {
		return Hook{}
	}
	return Hook{kind: hookAction, action: actionType}
}

// CallbackHook invokes fn with the result.
func CallbackHook(fn Callback) Hook {
	if fn == nil {
		return Hook{}
	}
	return Hook{kind: hookCallback, callback: fn}
}

// IsZero reports whether the hook is unset.
func (h Hook) IsZero() bool {
	return h.kind == hookNone
}

// ActionType returns the action type of an ActionHook.
func (h Hook) ActionType() (string, bool) {
	return h.action, h.kind == hookAction
}
