package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 输入为当前目录，遍历时选取 .BOK 文件；
// - Writer 输出到 ./out 目录，日志写入 ./logs；
// - 选项包含全部键，值为中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		Inputs:     []string{"."},
		CSV:        "out/book.csv",
		Ext:        d.Ext,
		Logging:    Logging{Level: d.Logging.Level, Dir: "logs", MaxBytes: 10 << 20},
		Components: d.Components,
	}
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git", "out"]
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "out",
  "flat": true,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	// 转写表无配置项，保持空对象
	cfg.Options.Codec = json.RawMessage(`{}`)
	return cfg
}
