package migrate

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/modelmux/routec/pkg/types"
)

func stepDefaultStrategy(raw []byte) ([]byte, error) {
	if gjson.GetBytes(raw, "router_settings.default_strategy").Exists() {
		return raw, nil
	}
	return sjson.SetBytes(raw, "router_settings.default_strategy", types.DefaultStrategy)
}

func stepBackendModelAliases(raw []byte) ([]byte, error) {
	var err error

	count := gjson.GetBytes(raw, "model_list.#").Int()
	for i := int64(0); i < count; i++ {
		old := gjson.GetBytes(raw, fmt.Sprintf("model_list.%d.backend", i))
		if !old.Exists() {
			continue
		}
		raw, err = sjson.SetBytes(raw, fmt.Sprintf("model_list.%d.backend_model", i), old.String())
		if err != nil {
			return nil, err
		}
		raw, err = sjson.DeleteBytes(raw, fmt.Sprintf("model_list.%d.backend", i))
		if err != nil {
			return nil, err
		}
	}

	aliases := gjson.GetBytes(raw, "router_settings.aliases")
	if !aliases.IsArray() {
		return raw, nil
	}
	obj := make(map[string]string, len(aliases.Array()))
	for _, item := range aliases.Array() {
		parts := strings.SplitN(item.String(), "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("alias %q is not in alias=model form", item.String())
		}
		obj[parts[0]] = parts[1]
	}
	return sjson.SetBytes(raw, "router_settings.aliases", obj)
}
