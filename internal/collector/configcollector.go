package collector

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/PaesslerAG/gval"
	"github.com/openfinance/datahub/internal/config"
	"github.com/openfinance/datahub/internal/convert"
	"github.com/openfinance/datahub/internal/httpclient"
	"github.com/openfinance/datahub/internal/logging"
	"github.com/openfinance/datahub/internal/mapping"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// RequestSpec describes a config-driven collector's outbound HTTP surface.
type RequestSpec struct {
	Method  string            `yaml:"method"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Params  map[string]string `yaml:"params"`
	Body    string            `yaml:"body"`
	Timeout time.Duration     `yaml:"timeout"`
}

// AuthSpec describes how to authenticate outbound requests.
type AuthSpec struct {
	Type       string `yaml:"type"`
	APIKey     string `yaml:"api_key"`
	HeaderName string `yaml:"header_name"`
	Prefix     string `yaml:"prefix"`
}

// ParserSpec describes how to locate records and errors within a JSON
// response.
type ParserSpec struct {
	DataPath   string `yaml:"data_path"`
	TotalPath  string `yaml:"total_path"`
	ErrorPath  string `yaml:"error_path"`
	ErrorCheck string `yaml:"error_check"`
}

// FieldMapEntry is one field_mapping entry: either a bare target name
// ("raw" type) or the full {target, type, default, converter} shape.
type FieldMapEntry struct {
	Target    string      `yaml:"target"`
	Type      string      `yaml:"type"`
	Default   interface{} `yaml:"default"`
	Converter string      `yaml:"converter"`
}

// UnmarshalYAML accepts both the scalar shorthand ("sourceField: targetField")
// and the full mapping form.
func (f *FieldMapEntry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		f.Target = value.Value
		f.Type = "raw"
		return nil
	}
	type alias FieldMapEntry
	var a alias
	if err := value.Decode(&a); err != nil {
		return err
	}
	*f = FieldMapEntry(a)
	return nil
}

// CollectorConfig is the declarative collector definition (spec.md 6.1).
type CollectorConfig struct {
	CollectorID   string                   `yaml:"collector_id"`
	Name          string                   `yaml:"name"`
	Source        string                   `yaml:"source"`
	DataType      string                   `yaml:"data_type"`
	Frequency     string                   `yaml:"frequency"`
	Request       RequestSpec              `yaml:"request"`
	Auth          AuthSpec                 `yaml:"auth"`
	Parser        ParserSpec               `yaml:"parser"`
	FieldMapping  map[string]FieldMapEntry `yaml:"field_mapping"`
	RequiredFields []string                `yaml:"required_fields"`
	DedupKeys      []string                `yaml:"dedup_keys"`
	DedupEnabled   bool                    `yaml:"dedup_enabled"`
	RateLimit      float64                 `yaml:"rate_limit"`
	MaxRetries     int                     `yaml:"max_retries"`
	RetryDelay     time.Duration           `yaml:"retry_delay"`
	Metadata       map[string]interface{}  `yaml:"metadata"`
}

// LoadCollectorConfig reads and parses a collector config document.
func LoadCollectorConfig(path string) (CollectorConfig, error) {
	var cfg CollectorConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read collector config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse collector config %s: %w", path, err)
	}
	return cfg, nil
}

var builtinConverterNames = map[string]mapping.FieldType{
	"safe_float":      mapping.FieldFloat,
	"safe_int":        mapping.FieldInt,
	"safe_str":        mapping.FieldString,
	"to_date":         mapping.FieldDate,
	"to_eastmoney_code": mapping.FieldString,
	"normalize_code":  mapping.FieldString,
}

// buildFieldMapping turns the YAML field_mapping section into a
// mapping.FieldMapping, honoring the built-in converter names from
// spec.md section 4.7.
func buildFieldMapping(source, dataType string, entries map[string]FieldMapEntry) mapping.FieldMapping {
	m := mapping.FieldMapping{Source: source, DataType: dataType}
	for src, entry := range entries {
		rule := mapping.FieldMappingRule{
			SourceField: src,
			TargetField: entry.Target,
			Type:        mapping.FieldType(entry.Type),
			Default:     entry.Default,
		}
		if rule.Type == "" || rule.Type == "raw" {
			rule.Type = mapping.FieldString
		}
		if conv, ok := builtinConverterNames[entry.Converter]; ok {
			rule.Type = conv
		}
		switch entry.Converter {
		case "to_eastmoney_code", "normalize_code":
			rule.Converter = normalizeCodeConverter
		}
		m.Rules = append(m.Rules, rule)
	}
	return m
}

// wellKnownDataKeys is the fallback list tried when a collector config
// omits parser.data_path.
var wellKnownDataKeys = []string{"data", "items", "results", "list"}

// extractRecords navigates body per ParserSpec.DataPath, falling back to
// well-known keys, and returns the array of raw records as generic maps.
func extractRecords(body []byte, dataPath string) ([]map[string]interface{}, error) {
	var target gjson.Result
	if dataPath != "" {
		target = gjson.GetBytes(body, dataPath)
	}
	if !target.Exists() {
		for _, key := range wellKnownDataKeys {
			target = gjson.GetBytes(body, key)
			if target.Exists() {
				break
			}
		}
	}
	if !target.Exists() || !target.IsArray() {
		return nil, fmt.Errorf("configcollector: no record array found at data_path %q", dataPath)
	}

	var out []map[string]interface{}
	for _, item := range target.Array() {
		if !item.IsObject() {
			continue
		}
		rec := map[string]interface{}{}
		item.ForEach(func(key, value gjson.Result) bool {
			rec[key.String()] = value.Value()
			return true
		})
		out = append(out, rec)
	}
	return out, nil
}

// checkForError evaluates parser.error_check (a PaesslerAG/gval boolean
// expression) against the decoded JSON body, returning a descriptive error
// if it evaluates truthy.
func checkForError(body []byte, spec ParserSpec) error {
	if spec.ErrorCheck == "" {
		return nil
	}
	parsed := gjson.ParseBytes(body).Value()
	vars, ok := parsed.(map[string]interface{})
	if !ok {
		vars = map[string]interface{}{}
	}
	result, err := gval.Evaluate(spec.ErrorCheck, vars)
	if err != nil {
		return fmt.Errorf("configcollector: evaluate error_check: %w", err)
	}
	truthy, _ := result.(bool)
	if !truthy {
		return nil
	}
	msg := "upstream reported an error"
	if spec.ErrorPath != "" {
		if m := gjson.GetBytes(body, spec.ErrorPath); m.Exists() {
			msg = m.String()
		}
	}
	return fmt.Errorf("configcollector: %s", msg)
}

// resolveAuth builds an httpclient.Authenticator from AuthSpec, resolving
// ${NAME}/$NAME environment references at call time so secret rotation
// does not require a restart.
func resolveAuth(spec AuthSpec, sourceAPIKey string) httpclient.Authenticator {
	key := sourceAPIKey
	if key == "" {
		key = spec.APIKey
	}
	key = config.ExpandEnvRefs(key)

	switch spec.Type {
	case "api-key":
		return httpclient.APIKeyAuth{HeaderName: spec.HeaderName, Key: key, Prefix: spec.Prefix}
	case "bearer":
		return httpclient.BearerAuth{Token: key}
	case "custom":
		return httpclient.CustomAuth{}
	default:
		return httpclient.NoneAuth{}
	}
}

// substitutePlaceholders replaces "{name}" tokens in template with string
// values from kwargs.
func substitutePlaceholders(template string, kwargs map[string]interface{}) string {
	out := template
	for k, v := range kwargs {
		out = strings.ReplaceAll(out, "{"+k+"}", fmt.Sprint(v))
	}
	return out
}

var reservedParamKeys = map[string]struct{}{
	"symbols": {}, "start_date": {}, "end_date": {},
}

// NewConfigCollector builds a Base collector whose Fetcher implements the
// full config-driven collect flow from spec.md section 4.7: URL/param/header
// composition, HTTP dispatch via client, JSON parsing with gjson, error_check
// evaluation via gval, and field mapping.
func NewConfigCollector(cfg CollectorConfig, client *httpclient.Client, sourceAPIKey string, reg *mapping.Registry, logger *logging.Logger) *Base {
	if logger == nil {
		logger = logging.NewDefault("collector." + cfg.Source)
	}
	fm := buildFieldMapping(cfg.Source, cfg.DataType, cfg.FieldMapping)
	reg.Register(cfg.Source, cfg.DataType, fm)

	fetch := func(ctx context.Context, kwargs map[string]interface{}) ([]map[string]interface{}, error) {
		url := substitutePlaceholders(cfg.Request.URL, kwargs)

		params := map[string]string{}
		for k, v := range cfg.Request.Params {
			params[k] = v
		}
		for k, v := range kwargs {
			if _, reserved := reservedParamKeys[k]; reserved {
				continue
			}
			if strings.Contains(cfg.Request.URL, "{"+k+"}") {
				continue
			}
			params[k] = fmt.Sprint(v)
		}
		if symbols, ok := kwargs["symbols"]; ok {
			params["symbols"] = fmt.Sprint(symbols)
		}
		if start, ok := kwargs["start_date"]; ok {
			params["start_date"] = fmt.Sprint(start)
		}
		if end, ok := kwargs["end_date"]; ok {
			params["end_date"] = fmt.Sprint(end)
		}

		headers := map[string]string{}
		for k, v := range cfg.Request.Headers {
			headers[k] = v
		}

		req := &httpclient.Request{
			Method:  cfg.Request.Method,
			URL:     url,
			Headers: headers,
			Params:  params,
			Auth:    resolveAuth(cfg.Auth, sourceAPIKey),
		}
		if req.Method == "" {
			req.Method = "GET"
		}
		if cfg.Request.Body != "" {
			req.Body = []byte(substitutePlaceholders(cfg.Request.Body, kwargs))
		}

		resp, err := client.Do(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("configcollector %s: request failed: %w", cfg.CollectorID, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("configcollector %s: status %d", cfg.CollectorID, resp.StatusCode)
		}

		if err := checkForError(resp.Body, cfg.Parser); err != nil {
			return nil, err
		}

		raw, err := extractRecords(resp.Body, cfg.Parser.DataPath)
		if err != nil {
			return nil, err
		}

		mapped := reg.ApplyBatch(cfg.Source, cfg.DataType, raw)
		return mapped, nil
	}

	hashFn := func(rec map[string]interface{}) string {
		var b strings.Builder
		for _, k := range cfg.DedupKeys {
			b.WriteString(fmt.Sprint(rec[k]))
			b.WriteByte('|')
		}
		return b.String()
	}

	validFn := func(rec map[string]interface{}) bool {
		return RequiredFieldsValid(rec, cfg.RequiredFields)
	}

	return New(Config{
		Source:         cfg.Source,
		RetryCount:     cfg.MaxRetries,
		RetryDelay:     cfg.RetryDelay,
		DedupEnabled:   cfg.DedupEnabled && len(cfg.DedupKeys) > 0,
		ValidEnabled:   len(cfg.RequiredFields) > 0,
		RequiredFields: cfg.RequiredFields,
		Fetch:          fetch,
		Hash:           hashFn,
		Valid:          validFn,
		Logger:         logger,
	})
}

// normalizeCodeConverter is registered for the "to_eastmoney_code" /
// "normalize_code" built-in converter names.
func normalizeCodeConverter(v interface{}) (interface{}, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("normalize_code: expected string, got %T", v)
	}
	return convert.NormalizeCode(s), nil
}
