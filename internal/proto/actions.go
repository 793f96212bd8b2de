package proto

import "math"

// ActionKind identifies a player action event type.
type ActionKind string

const (
	ActionJoin  ActionKind = "join"
	ActionStart ActionKind = "start"
	ActionMove  ActionKind = "move"
	ActionShoot ActionKind = "shoot"
)

// Move direction tokens. "stop" clears the intent; the axis tokens mirror the
// classic wasd bindings.
const (
	DirUp    = "w"
	DirLeft  = "a"
	DirDown  = "s"
	DirRight = "d"
	DirStop  = "stop"
)

// Action is the decoded form of a player action event. Exactly one payload
// pointer is populated for kinds that carry one.
type Action struct {
	ID    string
	Kind  ActionKind
	Join  *JoinAction
	Move  *MoveAction
	Shoot *ShootAction
}

// JoinAction announces a display name for the joining identity.
type JoinAction struct {
	Name string
}

// MoveAction updates the sender's movement intent.
type MoveAction struct {
	Dir string
}

// ShootAction fires a projectile at the given angle in radians.
type ShootAction struct {
	Angle float64
}

// actionMessage is the flat wire shape of an action event.
type actionMessage struct {
	Ver   int      `json:"ver,omitempty"`
	ID    string   `json:"id,omitempty"`
	Type  string   `json:"type"`
	Name  string   `json:"name,omitempty"`
	Dir   string   `json:"dir,omitempty"`
	Angle *float64 `json:"angle,omitempty"`
}

// DecodeAction parses a wrapper payload into an Action. The union is closed:
// unknown kinds and kinds missing their required field classify as
// ErrMalformedAction.
func DecodeAction(payload []byte) (Action, error) {
	var msg actionMessage
	if err := codec.Unmarshal(payload, &msg); err != nil {
		return Action{}, ErrMalformedAction
	}
	action := Action{ID: msg.ID, Kind: ActionKind(msg.Type)}
	switch action.Kind {
	case ActionJoin:
		if msg.Name == "" {
			return Action{}, ErrMalformedAction
		}
		action.Join = &JoinAction{Name: msg.Name}
	case ActionStart:
	case ActionMove:
		if msg.Dir == "" {
			return Action{}, ErrMalformedAction
		}
		action.Move = &MoveAction{Dir: msg.Dir}
	case ActionShoot:
		if msg.Angle == nil || math.IsNaN(*msg.Angle) || math.IsInf(*msg.Angle, 0) {
			return Action{}, ErrMalformedAction
		}
		action.Shoot = &ShootAction{Angle: *msg.Angle}
	default:
		return Action{}, ErrMalformedAction
	}
	return action, nil
}

// EncodeAction renders an Action into its flat wire shape.
func EncodeAction(action Action) ([]byte, error) {
	msg := actionMessage{Ver: Version, ID: action.ID, Type: string(action.Kind)}
	switch action.Kind {
	case ActionJoin:
		if action.Join == nil {
			return nil, ErrMalformedAction
		}
		msg.Name = action.Join.Name
	case ActionStart:
	case ActionMove:
		if action.Move == nil {
			return nil, ErrMalformedAction
		}
		msg.Dir = action.Move.Dir
	case ActionShoot:
		if action.Shoot == nil {
			return nil, ErrMalformedAction
		}
		angle := action.Shoot.Angle
		msg.Angle = &angle
	default:
		return nil, ErrMalformedAction
	}
	return codec.Marshal(msg)
}
