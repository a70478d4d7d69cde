package llm

import (
	"encoding/json"

	"github.com/kaptinlin/jsonrepair"
)

// Unmarshal parses model-produced JSON into v. Models emit slightly broken
// JSON often enough that a syntax error triggers one repair attempt before
// giving up.
func Unmarshal(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, rerr := jsonrepair.JSONRepair(string(data))
		if rerr != nil {
			return err
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}
