package connector

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// DecodeParams decodes backend-specific params into out (a pointer to a
// struct with mapstructure tags). Scalars are weakly typed so values coming
// from YAML or environment variables decode cleanly.
func DecodeParams(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("failed to create params decoder: %w", err)
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("invalid connector params: %w", err)
	}
	return nil
}
