package book

import (
	"bytes"
	"fmt"
	"strings"

	"baktt/internal/filebuf"
	"baktt/pkg/contract"
)

// 段落控制字节。
const (
	MarkerNext byte = 0xF1 // 后面还有段落
	MarkerEnd  byte = 0xF0 // 页结束
)

// PrefixSize 为每个段落前的不透明前缀长度。
const PrefixSize = 16

// 斜体开关的转义记号及其 11 字节二进制形式。
const (
	ItalicOn  = `\I`
	ItalicOff = `\i`
)

var escapes = []struct {
	token string
	raw   []byte
}{
	{ItalicOn, []byte{0xF4, 0, 0, 0, 0, 0, 0, 0, 0, 0x05, 0}},
	{ItalicOff, []byte{0xF4, 0, 0, 0, 0, 0, 0, 0, 0, 0x01, 0}},
}

// Text 是经过校验的段落文本（转义形式）。
// 只能通过 ParseText / DecodeText 获得；零值表示“无文本”。
type Text struct {
	s string
}

// ParseText 校验转义形式的文本：
// 非空、以 \I 或 \i 开头、全部为 7 位字节且不含保留控制字节 0xF0–0xF3。
func ParseText(s string) (Text, error) {
	if s == "" {
		return Text{}, fmt.Errorf("%w: empty paragraph text", contract.ErrFormat)
	}
	if !strings.HasPrefix(s, ItalicOn) && !strings.HasPrefix(s, ItalicOff) {
		return Text{}, fmt.Errorf("%w: paragraph text must start with %s or %s: %q", contract.ErrFormat, ItalicOn, ItalicOff, s)
	}
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b >= 0xF0 && b <= 0xF3 {
			return Text{}, fmt.Errorf("%w: reserved control byte 0x%02X at text index %d", contract.ErrFormat, b, i)
		}
		if b > 0x7F {
			return Text{}, fmt.Errorf("%w: non 7-bit byte 0x%02X at text index %d", contract.ErrFormat, b, i)
		}
	}
	return Text{s: s}, nil
}

// MustText 与 ParseText 相同，失败时 panic。仅用于常量文本与测试。
func MustText(s string) Text {
	t, err := ParseText(s)
	if err != nil {
		panic(err)
	}
	return t
}

// DecodeText 将页面中的原始字节还原为转义文本并校验。
// 原始字节中字面出现的 \I / \i 无法与转义记号区分，返回 ErrFormat。
func DecodeText(raw []byte) (Text, error) {
	for _, e := range escapes {
		if i := bytes.Index(raw, []byte(e.token)); i >= 0 {
			return Text{}, fmt.Errorf("%w: literal %s at body index %d collides with italics escape", contract.ErrFormat, e.token, i)
		}
	}
	b := raw
	for _, e := range escapes {
		b = bytes.ReplaceAll(b, e.raw, []byte(e.token))
	}
	return ParseText(string(b))
}

// String 返回转义形式的文本。
func (t Text) String() string { return t.s }

// IsZero 报告 t 是否为零值。
func (t Text) IsZero() bool { return t.s == "" }

// Bytes 返回写入页面的字节（转义记号替换为二进制形式）。
func (t Text) Bytes() []byte {
	b := []byte(t.s)
	for _, e := range escapes {
		b = bytes.ReplaceAll(b, []byte(e.token), e.raw)
	}
	return b
}

// Fragment 是页面中的一个段落：16 字节不透明前缀 + 文本。
type Fragment struct {
	Prefix [PrefixSize]byte
	text   Text
}

// NewFragment 构造段落。
func NewFragment(prefix [PrefixSize]byte, t Text) *Fragment {
	return &Fragment{Prefix: prefix, text: t}
}

func (f *Fragment) Text() Text { return f.text }

// SetText 替换段落文本。t 必须来自 ParseText/DecodeText。
func (f *Fragment) SetText(t Text) { f.text = t }

// Size 返回序列化长度：控制字节 + 前缀 + 文本字节。
func (f *Fragment) Size() int { return 1 + PrefixSize + len(f.text.Bytes()) }

// WriteTo 写出 0xF1、前缀与文本字节。
func (f *Fragment) WriteTo(c *filebuf.Cursor) error {
	if f.text.IsZero() {
		return fmt.Errorf("%w: fragment without text", contract.ErrInvariantViolation)
	}
	if err := c.WriteU8(MarkerNext); err != nil {
		return err
	}
	if err := c.Write(f.Prefix[:]); err != nil {
		return err
	}
	return c.Write(f.text.Bytes())
}
