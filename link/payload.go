/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package link

import "encoding/json"

// Commands sent to the model server. ID is the gripper id in its wire form.
// Loop selects the continuous variant of an action; this client always sends
// false.

type GripPayload struct {
	ID   json.RawMessage `json:"id"`
	Loop bool            `json:"loop"`
}

type MovePayload struct {
	ID   json.RawMessage `json:"id"`
	DX   int             `json:"dx"`
	DY   int             `json:"dy"`
	Loop bool            `json:"loop"`
}

type RotatePayload struct {
	ID        json.RawMessage `json:"id"`
	Direction int             `json:"direction"`
	Loop      bool            `json:"loop"`
}

type FlipPayload struct {
	ID   json.RawMessage `json:"id"`
	Loop bool            `json:"loop"`
}

// StopPayload ends a looped action.
type StopPayload struct {
	ID json.RawMessage `json:"id"`
}
