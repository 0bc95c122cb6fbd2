package session

import (
	"encoding/json"

	"github.com/obsidionlabs/bridge-go/envelope"
)

func unmarshalString(raw []byte, out *string) error {
	return json.Unmarshal(raw, out)
}

func parseOuterParams(outer envelope.Outer, out any) error {
	return json.Unmarshal(outer.Params, out)
}

func marshalErrorParams(message string) ([]byte, error) {
	return json.Marshal(envelope.ErrorParams{Message: message})
}
