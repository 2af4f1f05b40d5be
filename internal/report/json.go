package report

import (
	"encoding/json"
	"os"

	"github.com/modelmux/routec/internal/compile"
)

func WriteJSON(path string, r *compile.Report) error {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
