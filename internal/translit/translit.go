// Package translit 实现 contract.TextCodec：
// 将译者输入的自然语言文本映射到游戏单字节字母表（及其逆映射，仅用于展示）。
package translit

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"baktt/pkg/contract"
)

// ruTable 将西里尔字母映射到 0x23..0x7E 的游戏字形槽位。
// I、V、X 保持原样（罗马数字）。
var ruTable = map[rune]byte{
	' ': 0x20, '!': 0x21, '"': 0x22, 'ж': 0x23, 'Ё': 0x24, '%': 0x25, 'ё': 0x26, 'и': 0x27,
	'(': 0x28, ')': 0x29, '*': 0x2A, '+': 0x2B, ',': 0x2C, '-': 0x2D, '.': 0x2E, '/': 0x2F,
	'0': 0x30, '1': 0x31, '2': 0x32, '3': 0x33, '4': 0x34, '5': 0x35, '6': 0x36, '7': 0x37,
	'8': 0x38, '9': 0x39, ':': 0x3A, ';': 0x3B, 'Ъ': 0x3C, '=': 0x3D, 'ь': 0x3E, '?': 0x3F,
	'ю': 0x40, 'а': 0x41, 'б': 0x42, 'ц': 0x43, 'д': 0x44, 'е': 0x45, 'ф': 0x46, 'г': 0x47,
	'х': 0x48, 'I': 0x49, 'й': 0x4A, 'к': 0x4B, 'л': 0x4C, 'м': 0x4D, 'н': 0x4E, 'о': 0x4F,
	'п': 0x50, 'я': 0x51, 'р': 0x52, 'с': 0x53, 'т': 0x54, 'у': 0x55, 'V': 0x56, 'в': 0x57,
	'X': 0x58, 'ы': 0x59, 'з': 0x5A, 'ш': 0x5B, 'э': 0x5C, 'щ': 0x5D, 'ч': 0x5E, 'ъ': 0x5F,
	'Ю': 0x60, 'А': 0x61, 'Б': 0x62, 'Ц': 0x63, 'Д': 0x64, 'Е': 0x65, 'Ф': 0x66, 'Г': 0x67,
	'Х': 0x68, 'И': 0x69, 'Й': 0x6A, 'К': 0x6B, 'Л': 0x6C, 'М': 0x6D, 'Н': 0x6E, 'О': 0x6F,
	'П': 0x70, 'Я': 0x71, 'Р': 0x72, 'С': 0x73, 'Т': 0x74, 'У': 0x75, 'Ж': 0x76, 'В': 0x77,
	'Ь': 0x78, 'Ы': 0x79, 'З': 0x7A, 'Ш': 0x7B, 'Э': 0x7C, 'Щ': 0x7D, 'Ч': 0x7E,
}

var ruInverse = func() map[byte]rune {
	m := make(map[byte]rune, len(ruTable))
	for r, b := range ruTable {
		m[b] = r
	}
	return m
}()

// 斜体转义记号在两个方向上都原样保留。
var escapeTokens = []string{`\I`, `\i`}

// Russian 为俄文转写。
type Russian struct{}

// Encode 按表转写；表外 ASCII 原样保留，表外非 ASCII 字符返回 ErrFormat。
// 输入先做 NFC 规范化，组合形式的 ё/й 与预组合形式等价。
// 输出中的 \I / \i 只能来自输入里的同一转义记号；э 映射为 '\'、И 映射为 'i'，
// 二者相邻拼出的伪记号返回 ErrFormat。
func (Russian) Encode(s string) (string, error) {
	in := norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(in))
	var prevSrc rune
	var prevOut byte
	for i, r := range in {
		var v byte
		if t, ok := ruTable[r]; ok {
			v = t
		} else if r > 0x7F {
			return "", fmt.Errorf("%w: cannot encode character %q (U+%04X) in %q", contract.ErrFormat, r, r, s)
		} else {
			v = byte(r)
		}
		if prevOut == '\\' && (v == 'I' || v == 'i') && (prevSrc != '\\' || r != rune(v)) {
			return "", fmt.Errorf("%w: %q%q at index %d encodes to italics escape %q in %q",
				contract.ErrFormat, prevSrc, r, i, string([]byte{prevOut, v}), s)
		}
		b.WriteByte(v)
		prevSrc, prevOut = r, v
	}
	return b.String(), nil
}

// Decode 为 Encode 的逆映射，斜体转义记号保持不变。
func (Russian) Decode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		if tok := escapeAt(s, i); tok != "" {
			b.WriteString(tok)
			i += len(tok)
			continue
		}
		c := s[i]
		if r, ok := ruInverse[c]; ok {
			b.WriteRune(r)
		} else {
			b.WriteByte(c)
		}
		i++
	}
	return b.String()
}

func escapeAt(s string, i int) string {
	for _, t := range escapeTokens {
		if strings.HasPrefix(s[i:], t) {
			return t
		}
	}
	return ""
}

// ASCII 为 7 位直通编码，用于原文本身即为游戏字母表的场景。
type ASCII struct{}

func (ASCII) Encode(s string) (string, error) {
	for i, r := range s {
		if r > 0x7F {
			return "", fmt.Errorf("%w: non-ASCII character %q at index %d", contract.ErrFormat, r, i)
		}
	}
	return s, nil
}

func (ASCII) Decode(s string) string { return s }

var (
	_ contract.TextCodec = Russian{}
	_ contract.TextCodec = ASCII{}
)
