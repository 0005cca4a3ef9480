package conf

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/lambda-feedback/hellojoe/util/cliflags"
	"github.com/urfave/cli/v2"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

var ErrInvalidConfigFile = errors.New("invalid config file")

type ParseOptions struct {
	// Cli is the cli.Context from urfave/cli
	Cli *cli.Context

	// CliMap is a map of cli flag names to config keys
	CliMap map[string]string

	// Defaults is a map of default values
	Defaults DefaultConfig

	// EnvPrefix is the prefix for env vars
	EnvPrefix string

	// FileName is the name of the configuration file to load. Files
	// ending in .env are read as dotenv, all others as json.
	FileName string

	// Schema validates json configuration files, if set
	Schema *gojsonschema.Schema

	// Log is the logger to use
	Log *zap.Logger
}

func Parse[C any](opt ParseOptions) (C, error) {
	var config C

	var log *zap.Logger
	if opt.Log != nil {
		log = opt.Log
	} else {
		log = zap.NewNop()
	}

	k := koanf.New(".")

	if opt.Defaults != nil {
		if err := k.Load(confmap.Provider(opt.Defaults, "."), nil); err != nil {
			log.Error("error loading defaults", zap.Error(err))
			return config, err
		}
	}

	if opt.FileName != "" {
		if err := loadFile(k, opt); err != nil {
			log.Error("error parsing file",
				zap.Error(err),
				zap.String("file", opt.FileName),
			)
			return config, err
		}
	}

	transformPrefixedEnv := func(s string) string {
		return transformEnv(s, opt.EnvPrefix)
	}

	if err := k.Load(env.Provider(opt.EnvPrefix, ".", transformPrefixedEnv), nil); err != nil {
		log.Error("error parsing env vars", zap.Error(err))
		return config, err
	}

	if opt.Cli != nil {
		transformFlag := func(s string) string {
			if opt.CliMap != nil {
				if name, ok := opt.CliMap[s]; ok {
					return name
				}
			}

			// replace - with _
			return strings.ReplaceAll(strings.ToLower(s), "-", "_")
		}

		if err := k.Load(cliflags.Provider(opt.Cli, ".", transformFlag), nil); err != nil {
			log.Error("error parsing cli flags", zap.Error(err))
			return config, err
		}
	}

	if err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{
		Tag:           "conf",
		DecoderConfig: decoderConfig(&config),
	}); err != nil {
		log.Error("error unmarshalling config", zap.Error(err))
		return config, err
	}

	return config, nil
}

func loadFile(k *koanf.Koanf, opt ParseOptions) error {
	provider := file.Provider(opt.FileName)

	if strings.EqualFold(filepath.Ext(opt.FileName), ".env") {
		b, err := provider.ReadBytes()
		if err != nil {
			return err
		}

		values, err := dotenv.Parser().Unmarshal(b)
		if err != nil {
			return err
		}

		// dotenv keys follow the env var naming
		normalized := make(map[string]any, len(values))
		for key, val := range values {
			normalized[transformEnv(key, opt.EnvPrefix)] = val
		}

		return k.Load(confmap.Provider(normalized, "."), nil)
	}

	fk := koanf.New(".")
	if err := fk.Load(provider, json.Parser()); err != nil {
		return err
	}

	if opt.Schema != nil {
		result, err := opt.Schema.Validate(gojsonschema.NewGoLoader(fk.Raw()))
		if err != nil {
			return err
		}

		if !result.Valid() {
			details := make([]string, 0, len(result.Errors()))
			for _, e := range result.Errors() {
				details = append(details, e.String())
			}

			return fmt.Errorf("%w: %s", ErrInvalidConfigFile, strings.Join(details, "; "))
		}
	}

	return k.Merge(fk)
}

// decoderConfig extends the koanf defaults by splitting comma separated
// strings from env vars and dotenv files into slices.
func decoderConfig(result any) *mapstructure.DecoderConfig {
	return &mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.TextUnmarshallerHookFunc(),
		),
		Result:           result,
		WeaklyTypedInput: true,
	}
}

func transformEnv(s, prefix string) string {
	normalized := strings.ToLower(s)
	// pop prefix if it is set
	normalized = strings.TrimPrefix(normalized, strings.ToLower(prefix))
	// allow specifying nested env vars w/ __
	return strings.ReplaceAll(normalized, "__", ".")
}
