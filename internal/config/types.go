package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON 使用 snake_case；未知字段在解析期失败。
type Config struct {
	Inputs []string `json:"inputs"`
	// CSV: export 的输出 / import 的输入路径。
	CSV string `json:"csv"`
	// Ext: 遍历目录时选取的书籍扩展名（默认 .BOK）；rle 命令忽略。
	Ext string `json:"ext"`
	// Decode: display 时按转写表逆映射。
	Decode  bool    `json:"decode"`
	Logging Logging `json:"logging"`
	RLE     RLE     `json:"rle"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 日志等级与落盘位置。
// 每次运行写 <dir>/baktt-current.txt；超过 max_bytes 时按运行 corr_id 归档。
type Logging struct {
	Level string `json:"level"`
	// Dir 为空时使用 logs。
	Dir string `json:"dir,omitempty"`
	// MaxBytes 为 0 时使用 10 MiB。
	MaxBytes int64 `json:"max_bytes,omitempty"`
}

// RLE: rle-unpack 的期望尺寸与失配策略。
type RLE struct {
	// Strict: 尺寸不一致时报错；否则告警并写出。
	Strict bool `json:"strict"`
	// ExpectedSize: 期望解压尺寸；nil 表示未知。
	ExpectedSize *int `json:"expected_size,omitempty"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader string `json:"reader"`
	Writer string `json:"writer"`
	Codec  string `json:"codec"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader json.RawMessage `json:"reader"`
	Writer json.RawMessage `json:"writer"`
	Codec  json.RawMessage `json:"codec"`
}
