package workspacefs

import (
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

func isNotExist(err error) bool {
	return os.IsNotExist(err)
}

// viperDurationHook lets viper.Unmarshal decode TM_LOCK_TIMEOUT /
// TM_HOOK_TIMEOUT into time.Duration fields. These env vars are documented
// as plain seconds ("TM_LOCK_TIMEOUT=10"), so a bare integer is parsed
// as N seconds before falling back to Go duration syntax ("10s") for
// config.json values or env overrides that prefer to be explicit.
func viperDurationHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsStringToDurationHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
}

func secondsStringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			if n, err := strconv.Atoi(v); err == nil {
				return time.Duration(n) * time.Second, nil
			}
			return data, nil
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v) * time.Second, nil
		default:
			return data, nil
		}
	}
}
