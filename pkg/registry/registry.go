package registry

import (
	"bytes"
	"encoding/json"

	"baktt/internal/translit"
	"baktt/pkg/contract"
	rfs "baktt/plugins/reader/filesystem"
	wfs "baktt/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// NewCodec 工厂签名：接收原样 JSON Options。
type NewCodec func(raw json.RawMessage) (contract.TextCodec, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统 Reader（扩展名过滤、排除目录）
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（原子替换）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}

// noOptions 供无选项的工厂拒绝任何字段。
type noOptions struct{}

// Codec 转写工厂注册表。
var Codec = map[string]NewCodec{
	// ru: 俄文转写表
	"ru": func(raw json.RawMessage) (contract.TextCodec, error) {
		if err := strictUnmarshal(raw, &noOptions{}); err != nil {
			return nil, err
		}
		return translit.Russian{}, nil
	},
	// ascii: 7 位直通
	"ascii": func(raw json.RawMessage) (contract.TextCodec, error) {
		if err := strictUnmarshal(raw, &noOptions{}); err != nil {
			return nil, err
		}
		return translit.ASCII{}, nil
	},
}
