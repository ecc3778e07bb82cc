package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"baktt/internal/pipeline"
	"baktt/internal/rle"
	"baktt/pkg/registry"
)

// DefaultOutputDir 为未配置 output_dir 时 Writer 的输出目录。
const DefaultOutputDir = "out"

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config, cmd pipeline.Command) error {
	if _, err := pipeline.ParseCommand(string(cmd)); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if len(cfg.Inputs) == 0 {
		return errors.New("config: inputs empty")
	}
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return errors.New("config: input path cannot be empty")
		}
	}
	if ext := strings.TrimSpace(cfg.Ext); ext != "" && !strings.HasPrefix(ext, ".") {
		return fmt.Errorf("config: ext %q must start with '.'", ext)
	}
	if cmd.NeedsCSV() && strings.TrimSpace(cfg.CSV) == "" {
		return fmt.Errorf("config: %s needs a csv path", cmd)
	}
	if cfg.Logging.MaxBytes < 0 {
		return errors.New("config: logging.max_bytes must be >= 0")
	}
	if cfg.RLE.ExpectedSize != nil && *cfg.RLE.ExpectedSize < 0 {
		return errors.New("config: rle.expected_size must be >= 0")
	}
	// 组件名若为空，使用默认名（由 Defaults() 提供）。
	d := Defaults()
	if name := effName(cfg.Components.Reader, d.Components.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Components.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	if name := effName(cfg.Components.Codec, d.Components.Codec); registry.Codec[name] == nil {
		return fmt.Errorf("config: codec %q not registered", name)
	}
	return nil
}

// Assemble 按命令构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只补全少量派生键。
func Assemble(cfg Config, cmd pipeline.Command) (pipeline.Components, pipeline.Settings, error) {
	var comp pipeline.Components
	if err := Validate(cfg, cmd); err != nil {
		return comp, pipeline.Settings{}, err
	}

	d := Defaults()
	rn := effName(cfg.Components.Reader, d.Components.Reader)
	wn := effName(cfg.Components.Writer, d.Components.Writer)
	cn := effName(cfg.Components.Codec, d.Components.Codec)

	// rle 命令处理任意文件，不按扩展名过滤
	ext := ""
	if cmd != pipeline.CmdRLEPack && cmd != pipeline.CmdRLEUnpack {
		ext = strings.TrimSpace(cfg.Ext)
	}
	ropts, err := setKey(cfg.Options.Reader, "ext", ext, false)
	if err != nil {
		return comp, pipeline.Settings{}, fmt.Errorf("config: options.reader: %w", err)
	}
	if comp.Reader, err = registry.Reader[rn](ropts); err != nil {
		return comp, pipeline.Settings{}, err
	}

	if cmd.NeedsWriter() {
		wopts, err := setKey(cfg.Options.Writer, "output_dir", DefaultOutputDir, false)
		if err != nil {
			return comp, pipeline.Settings{}, fmt.Errorf("config: options.writer: %w", err)
		}
		if comp.Writer, err = registry.Writer[wn](wopts); err != nil {
			return comp, pipeline.Settings{}, err
		}
	}
	if cmd == pipeline.CmdExport {
		// CSV 写到其所在目录，沿用 Writer 的其余选项
		sopts, err := setKey(cfg.Options.Writer, "output_dir", filepath.Dir(cfg.CSV), true)
		if err != nil {
			return comp, pipeline.Settings{}, fmt.Errorf("config: options.writer: %w", err)
		}
		if comp.Sheet, err = registry.Writer[wn](sopts); err != nil {
			return comp, pipeline.Settings{}, err
		}
	}
	if comp.Codec, err = registry.Codec[cn](cfg.Options.Codec); err != nil {
		return comp, pipeline.Settings{}, err
	}

	set := pipeline.Settings{
		Command:      cmd,
		Inputs:       cloneStrings(cfg.Inputs),
		CSV:          strings.TrimSpace(cfg.CSV),
		Decode:       cfg.Decode,
		ExpectedSize: rle.UnknownSize,
	}
	if cfg.RLE.Strict {
		set.RLEMode = rle.Strict
	}
	if cfg.RLE.ExpectedSize != nil {
		set.ExpectedSize = *cfg.RLE.ExpectedSize
	}
	return comp, set, nil
}

// setKey 在 Options 对象中写入 key；force 为 false 时仅在缺省时写入。
// val 为空字符串时不写入。
func setKey(raw json.RawMessage, key, val string, force bool) (json.RawMessage, error) {
	if val == "" {
		return raw, nil
	}
	m := map[string]json.RawMessage{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		if m == nil {
			// 字面量 null
			m = map[string]json.RawMessage{}
		}
	}
	if _, ok := m[key]; ok && !force {
		return raw, nil
	}
	b, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	m[key] = b
	return json.Marshal(m)
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}

// WithOutputDir 返回将 Writer 的 output_dir 强制设为 dir 的配置副本。
func WithOutputDir(cfg Config, dir string) (Config, error) {
	raw, err := setKey(cfg.Options.Writer, "output_dir", strings.TrimSpace(dir), true)
	if err != nil {
		return cfg, fmt.Errorf("config: options.writer: %w", err)
	}
	cfg.Options.Writer = raw
	return cfg, nil
}

// OutputDir 返回 Writer 的生效输出目录（未配置时为 DefaultOutputDir）。
func OutputDir(cfg Config) string {
	var wopts struct {
		OutputDir string `json:"output_dir"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	}
	if d := strings.TrimSpace(wopts.OutputDir); d != "" {
		return d
	}
	return DefaultOutputDir
}
