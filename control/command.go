/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package control

// KeyCode is a browser-style key code.
type KeyCode int

const (
	KeyEnter KeyCode = 13
	KeySpace KeyCode = 32
	KeyLeft  KeyCode = 37
	KeyUp    KeyCode = 38
	KeyRight KeyCode = 39
	KeyDown  KeyCode = 40
	KeyA     KeyCode = 65
	KeyD     KeyCode = 68
	KeyS     KeyCode = 83
	KeyW     KeyCode = 87
)

// Command is one user-facing gripper action.
type Command int

const (
	None Command = iota
	Grip
	StopGrip
	MoveLeft
	MoveUp
	MoveRight
	MoveDown
	StopMove
	RotateLeft
	RotateRight
	StopRotate
	Flip
	StopFlip
)

var commandNames = map[Command]string{
	None:        "none",
	Grip:        "grip",
	StopGrip:    "stop_grip",
	MoveLeft:    "move_left",
	MoveUp:      "move_up",
	MoveRight:   "move_right",
	MoveDown:    "move_down",
	StopMove:    "stop_move",
	RotateLeft:  "rotate_left",
	RotateRight: "rotate_right",
	StopRotate:  "stop_rotate",
	Flip:        "flip",
	StopFlip:    "stop_flip",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// Action is what a key does on press (Down) and on release (Up). An Up of
// None makes the key one-shot: it fires on every press the host reports.
type Action struct {
	Down Command
	Up   Command
}

// KeyMap assigns actions to key codes.
type KeyMap map[KeyCode]Action

// DefaultKeyMap returns the standard bindings. Every action is discrete.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		KeyEnter: {Down: Grip},
		KeySpace: {Down: Grip},
		KeyLeft:  {Down: MoveLeft},
		KeyUp:    {Down: MoveUp},
		KeyRight: {Down: MoveRight},
		KeyDown:  {Down: MoveDown},
		KeyA:     {Down: RotateLeft},
		KeyD:     {Down: RotateRight},
		KeyS:     {Down: Flip},
		KeyW:     {Down: Flip},
	}
}

// HeldMoveKeyMap is DefaultKeyMap with arrow keys that also send stop_move
// on release, for model servers that support continuous movement.
func HeldMoveKeyMap() KeyMap {
	km := DefaultKeyMap()
	for _, k := range []KeyCode{KeyLeft, KeyUp, KeyRight, KeyDown} {
		a := km[k]
		a.Up = StopMove
		km[k] = a
	}
	return km
}
