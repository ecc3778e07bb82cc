package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultExt 为书籍文件的默认扩展名。
const DefaultExt = ".BOK"

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：inputs 不设默认（必须由 JSON/ENV/CLI 提供）。
func Defaults() Config {
	return Config{
		Ext:     DefaultExt,
		Logging: Logging{Level: "info"},
		Components: Components{
			Reader: "fs",
			Writer: "fs",
			Codec:  "ru",
		},
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
// 布尔开关只能由 false 打开为 true。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if strings.TrimSpace(over.CSV) != "" {
		out.CSV = strings.TrimSpace(over.CSV)
	}
	if strings.TrimSpace(over.Ext) != "" {
		out.Ext = strings.TrimSpace(over.Ext)
	}
	if over.Decode {
		out.Decode = true
	}
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}
	if strings.TrimSpace(over.Logging.Dir) != "" {
		out.Logging.Dir = strings.TrimSpace(over.Logging.Dir)
	}
	if over.Logging.MaxBytes != 0 {
		out.Logging.MaxBytes = over.Logging.MaxBytes
	}
	if over.RLE.Strict {
		out.RLE.Strict = true
	}
	if over.RLE.ExpectedSize != nil {
		v := *over.RLE.ExpectedSize
		out.RLE.ExpectedSize = &v
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}
	if over.Components.Codec != "" {
		out.Components.Codec = over.Components.Codec
	}

	// Options（完整替换对应键）
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	if len(over.Options.Codec) > 0 {
		out.Options.Codec = cloneRaw(over.Options.Codec)
	}
	return out
}

// EnvPrefix 为环境变量前缀。
const EnvPrefix = "BAKTT_"

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合，其余忽略）。
// 支持：INPUTS, CSV, EXT, DECODE, LOG_LEVEL, LOG_DIR, LOG_MAX_BYTES, RLE_STRICT, RLE_EXPECTED_SIZE,
// COMPONENTS_{READER,WRITER,CODEC}, OPTIONS_{READER,WRITER,CODEC}_JSON
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := strings.TrimPrefix(kv[:eq], EnvPrefix)
		val := kv[eq+1:]
		switch key {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "CSV":
			over.CSV = strings.TrimSpace(val)
		case "EXT":
			over.Ext = strings.TrimSpace(val)
		case "DECODE":
			b, err := parseBool(val)
			if err != nil {
				return over, fmt.Errorf("env %s: %w", kv[:eq], err)
			}
			over.Decode = b
		case "LOG_LEVEL":
			over.Logging.Level = strings.TrimSpace(val)
		case "LOG_DIR":
			over.Logging.Dir = strings.TrimSpace(val)
		case "LOG_MAX_BYTES":
			if strings.TrimSpace(val) == "" {
				continue
			}
			v, err := atoi(val)
			if err != nil {
				return over, fmt.Errorf("env %s: %w", kv[:eq], err)
			}
			over.Logging.MaxBytes = int64(v)
		case "RLE_STRICT":
			b, err := parseBool(val)
			if err != nil {
				return over, fmt.Errorf("env %s: %w", kv[:eq], err)
			}
			over.RLE.Strict = b
		case "RLE_EXPECTED_SIZE":
			if strings.TrimSpace(val) == "" {
				continue
			}
			v, err := atoi(val)
			if err != nil {
				return over, fmt.Errorf("env %s: %w", kv[:eq], err)
			}
			over.RLE.ExpectedSize = &v
		case "COMPONENTS_READER":
			over.Components.Reader = strings.TrimSpace(val)
		case "COMPONENTS_WRITER":
			over.Components.Writer = strings.TrimSpace(val)
		case "COMPONENTS_CODEC":
			over.Components.Codec = strings.TrimSpace(val)
		case "OPTIONS_READER_JSON":
			over.Options.Reader = rawOrNil(val)
		case "OPTIONS_WRITER_JSON":
			over.Options.Writer = rawOrNil(val)
		case "OPTIONS_CODEC_JSON":
			over.Options.Codec = rawOrNil(val)
		}
	}
	return over, nil
}

// rawOrNil: 空值视为未设置，避免清空 config.json 中的选项。
func rawOrNil(s string) json.RawMessage {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return json.RawMessage(s)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "", "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}
