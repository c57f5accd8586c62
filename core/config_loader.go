package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const EnvPrefix = "ORDERBUS"

// legacyEnv maps config keys to the environment names used by earlier
// deployments of the service.
var legacyEnv = map[string][]string{
	"service_name":            {"OTEL_SERVICE_NAME"},
	"log_level":               {"LOG_LEVEL"},
	"database.dsn":            {"DATABASE_URL"},
	"webhook.secret":          {"WEBHOOK_SECRET"},
	"pubsub.project_id":       {"PUBSUB_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"},
	"pubsub.topic_id":         {"PUBSUB_TOPIC_ORDER_CREATED"},
	"pubsub.subscription_id":  {"PUBSUB_SUBSCRIPTION_ORDER_CREATED"},
	"pubsub.emulator_host":    {"PUBSUB_EMULATOR_HOST"},
	"pubsub.credentials_file": {"GOOGLE_APPLICATION_CREDENTIALS"},
	"egress.url":              {"WEBHOOK_OUTGOING_URL"},
	"telemetry.enabled":       {"OTEL_ENABLED"},
	"telemetry.endpoint":      {"OTEL_EXPORTER_OTLP_ENDPOINT"},
}

// ViperConfigLoader reads an optional config file plus environment variables
// and returns only the keys that were explicitly set.
type ViperConfigLoader struct {
	File   string
	Prefix string
}

func NewViperConfigLoader(file string) *ViperConfigLoader {
	return &ViperConfigLoader{File: strings.TrimSpace(file), Prefix: EnvPrefix}
}

func (l *ViperConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	v := viper.New()
	prefix := EnvPrefix
	if l != nil && strings.TrimSpace(l.Prefix) != "" {
		prefix = strings.TrimSpace(l.Prefix)
	}

	if l != nil && l.File != "" {
		v.SetConfigFile(l.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("core: read config file %q: %w", l.File, err)
		}
	}

	defaults := map[string]any{}
	if err := mapstructure.Decode(DefaultConfig(), &defaults); err != nil {
		return nil, fmt.Errorf("core: decode default config: %w", err)
	}
	kinds := flattenKeys("", defaults)

	keys := make([]string, 0, len(kinds))
	for key := range kinds {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		envNames := []string{prefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}
		envNames = append(envNames, legacyEnv[key]...)
		if err := v.BindEnv(append([]string{key}, envNames...)...); err != nil {
			return nil, fmt.Errorf("core: bind env %s: %w", key, err)
		}
	}

	raw := map[string]any{}
	for _, key := range keys {
		if !v.IsSet(key) {
			continue
		}
		var value any
		switch kinds[key].(type) {
		case time.Duration:
			value = v.GetDuration(key)
		case bool:
			value = v.GetBool(key)
		case int:
			value = v.GetInt(key)
		case int64:
			value = v.GetInt64(key)
		case float64:
			value = v.GetFloat64(key)
		default:
			value = v.GetString(key)
		}
		setNested(raw, strings.Split(key, "."), value)
	}
	return raw, nil
}

func flattenKeys(prefix string, in map[string]any) map[string]any {
	out := map[string]any{}
	for key, value := range in {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			for k, v := range flattenKeys(full, nested) {
				out[k] = v
			}
			continue
		}
		out[full] = value
	}
	return out
}

func setNested(target map[string]any, path []string, value any) {
	if len(path) == 1 {
		target[path[0]] = value
		return
	}
	child, ok := target[path[0]].(map[string]any)
	if !ok {
		child = map[string]any{}
		target[path[0]] = child
	}
	setNested(child, path[1:], value)
}
