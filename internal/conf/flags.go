package conf

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeyAnnotation carries the configuration key a flag overrides.
const flagKeyAnnotation = "livesound_config_key"

// AnnotateFlags records the configuration key each named flag overrides.
// Several commands may override the same key, and viper keeps one flag per
// key, so the binding waits for BindFlags on the command that runs.
func AnnotateFlags(flags *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		if err := flags.SetAnnotation(name, flagKeyAnnotation, []string{key}); err != nil {
			return fmt.Errorf("error annotating flag %s: %w", name, err)
		}
	}
	return nil
}

// BindFlags binds every annotated flag in flags to its configuration key.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[flagKeyAnnotation]
		if bindErr != nil || len(keys) == 0 {
			return
		}
		if err := v.BindPFlag(keys[0], f); err != nil {
			bindErr = fmt.Errorf("error binding flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}
