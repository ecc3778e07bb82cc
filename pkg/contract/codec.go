package contract

// TextCodec: 自然语言字母表与游戏单字节编码之间的转写（外部协作者）。
// Encode 将译者输入映射为游戏编码文本；Decode 为其逆映射，仅用于展示。
// 无法表示的字符必须返回错误，不得静默替换。
type TextCodec interface {
	Encode(s string) (string, error)
	Decode(s string) string
}
