package navigator

// Action is the closed vocabulary of browser actions the model may
// request. Adding or removing an action means updating this list, the
// catalogue in catalog.go, and the dispatch switch together.
type Action string

const (
	ActionSnapshot Action = "snapshot"
	ActionClick    Action = "click"
	ActionFill     Action = "fill"
	ActionType     Action = "type"
	ActionPress    Action = "press"
	ActionScroll   Action = "scroll"
	ActionWait     Action = "wait"
	ActionDone     Action = "done"
)

// Actions lists every supported action in catalogue order.
var Actions = []Action{
	ActionSnapshot,
	ActionClick,
	ActionFill,
	ActionType,
	ActionPress,
	ActionScroll,
	ActionWait,
	ActionDone,
}

// IsKnownAction reports whether a name belongs to the action vocabulary.
func IsKnownAction(name string) bool {
	for _, a := range Actions {
		if string(a) == name {
			return true
		}
	}
	return false
}
