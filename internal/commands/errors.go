package commands

import (
	"errors"
	"io"

	"github.com/colonyops/hive-review/internal/core/hiveerr"
	"github.com/colonyops/hive-review/pkg/iojson"
)

// errorData classifies err for machine-readable output. Errors outside the
// hiveerr taxonomy carry no extra data.
func errorData(err error) map[string]any {
	var (
		gate  *hiveerr.GateBlockedError
		valid *hiveerr.ValidationError
		nf    *hiveerr.NotFoundError
	)

	switch {
	case errors.As(err, &gate):
		return map[string]any{"kind": "gate_blocked", "unresolved": gate.Count}
	case errors.As(err, &valid):
		data := map[string]any{"kind": "validation"}
		if valid.Field != "" {
			data["field"] = valid.Field
		}
		return data
	case errors.As(err, &nf):
		return map[string]any{"kind": "not_found", "entity": nf.Kind, "id": nf.ID}
	default:
		return nil
	}
}

// WriteError reports a command failure to w, as a JSON line when asJSON is set.
func WriteError(w io.Writer, err error, asJSON bool) {
	if asJSON {
		_ = iojson.WriteError(w, err.Error(), errorData(err))
		return
	}
	_, _ = io.WriteString(w, err.Error()+"\n")
}
