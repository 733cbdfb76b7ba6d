package toolserver

import (
	"encoding/json"

	"github.com/tidwall/sjson"

	"github.com/debugbridge/server/internal/bridgeerr"
)

// okEnvelope renders a successful result as {"ok":true,"result":...}.
func okEnvelope(result any) []byte {
	body, err := json.Marshal(result)
	if err != nil {
		return errorEnvelope(bridgeerr.Inspectionf("render_result", "marshal result: %v", err))
	}

	out, _ := sjson.SetRawBytes([]byte(`{"ok":true}`), "result", body)
	return out
}

// errorEnvelope renders a failure as {"ok":false,"error":{"code":...,
// "message":...}}, mapping the error's bridgeerr.Category (if any) onto
// the stable code strings spec.md §6's tool table names.
func errorEnvelope(err error) []byte {
	code := "internal"
	if cat, ok := bridgeerr.CategoryOf(err); ok {
		code = codeForCategory(cat)
	}

	out, _ := sjson.SetBytes([]byte(`{"ok":false}`), "error.code", code)
	out, _ = sjson.SetBytes(out, "error.message", err.Error())
	return out
}

func codeForCategory(cat bridgeerr.Category) string {
	switch cat {
	case bridgeerr.InvalidArgument:
		return "invalid-params"
	default:
		return "internal"
	}
}
