// Package rle 实现游戏资源使用的行程编码：
// 控制字节高位为 1 表示重复组（低 7 位为次数，后随 1 字节取值），
// 高位为 0 表示字面组（控制字节即长度，后随同样多的原样字节）。
// 流本身没有结束标记，长度由压缩字节数或期望解压尺寸决定。
package rle

import (
	"fmt"
	"strconv"

	"baktt/internal/diag"
	"baktt/internal/filebuf"
	"baktt/pkg/contract"
)

const (
	repeatFlag = 0x80
	countMask  = 0x7F
	// MaxGroup 是单个控制字节可表示的最大次数/长度。
	MaxGroup = 127
	// UnknownSize 表示调用方不提供期望解压尺寸。
	UnknownSize = -1
)

// Mode 决定解压尺寸不一致时的处理策略。
type Mode int

const (
	// Lenient 记录告警并返回已解压数据（沿用旧工具的策略）。
	Lenient Mode = iota
	// Strict 将尺寸不一致作为错误返回。
	Strict
)

func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "lenient"
}

// Options 为解压选项。零值即宽松模式、无日志。
type Options struct {
	Mode   Mode
	Logger *diag.Logger
}

// SizeMismatchError 携带期望与实际的解压尺寸。
type SizeMismatchError struct {
	Expected int
	Actual   int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("rle: expected size %d, actual size %d", e.Expected, e.Actual)
}

func (e *SizeMismatchError) Unwrap() error { return contract.ErrSizeMismatch }

// Compress 从 src 当前偏移读到末尾并压缩，返回恰好容纳结果的新游标（偏移 0）。
func Compress(src *filebuf.Cursor) (*filebuf.Cursor, error) {
	data := src.ReadAll()
	// 最坏情况：全部为字面组，每 127 字节多 1 个控制字节
	tmp := filebuf.New(len(data) + (len(data)+MaxGroup-1)/MaxGroup)
	i := 0
	for i < len(data) {
		run := runLength(data, i)
		if run >= 2 {
			if err := tmp.WriteU8(repeatFlag | uint8(run)); err != nil {
				return nil, err
			}
			if err := tmp.WriteU8(data[i]); err != nil {
				return nil, err
			}
			i += run
			continue
		}
		// 字面组：直到下一处重复开始或达到 127
		j := i
		for j < len(data) && j-i < MaxGroup {
			if j+1 < len(data) && data[j] == data[j+1] {
				break
			}
			j++
		}
		if err := tmp.WriteU8(uint8(j - i)); err != nil {
			return nil, err
		}
		if err := tmp.Write(data[i:j]); err != nil {
			return nil, err
		}
		i = j
	}
	return filebuf.FromBytes(tmp.Bytes()[:tmp.Tell()]), nil
}

// runLength 返回从 i 开始相同字节的长度，上限 MaxGroup。
func runLength(data []byte, i int) int {
	n := 1
	for i+n < len(data) && n < MaxGroup && data[i+n] == data[i] {
		n++
	}
	return n
}

// Decompress 从 src 当前偏移开始解压。
// expected >= 0 时，产出达到 expected 字节即停止；否则读到输入耗尽。
// 尺寸不一致：Lenient 模式记录告警并返回结果，Strict 模式同时返回结果与 *SizeMismatchError。
// 截断的组（缺失重复值、字面长度超过剩余输入）返回 ErrOutOfBounds。
func Decompress(src *filebuf.Cursor, expected int, opts Options) (*filebuf.Cursor, error) {
	capHint := expected
	if capHint < 0 {
		capHint = 0
	}
	out := filebuf.New(capHint)
	for !src.AtEnd() {
		if expected >= 0 && out.Tell() >= expected {
			break
		}
		at := src.Tell()
		ctrl, err := src.ReadU8()
		if err != nil {
			return nil, err
		}
		n := int(ctrl & countMask)
		if ctrl&repeatFlag != 0 {
			v, err := src.ReadU8()
			if err != nil {
				return nil, fmt.Errorf("repeat group at offset %d: %w", at, err)
			}
			reserve(out, n)
			for k := 0; k < n; k++ {
				_ = out.WriteU8(v)
			}
			continue
		}
		lit, err := src.Read(n)
		if err != nil {
			return nil, fmt.Errorf("literal group at offset %d: %w", at, err)
		}
		reserve(out, n)
		_ = out.Write(lit)
	}

	actual := out.Tell()
	res := filebuf.FromBytes(out.Bytes()[:actual])
	if expected >= 0 && actual != expected {
		mis := &SizeMismatchError{Expected: expected, Actual: actual}
		if opts.Mode == Strict {
			return res, mis
		}
		opts.Logger.Warn("rle", string(diag.CodeSizeMismatch), mis.Error(), map[string]string{
			"expected": strconv.Itoa(expected),
			"actual":   strconv.Itoa(actual),
			"mode":     opts.Mode.String(),
		})
		diag.IncError("rle", string(diag.CodeSizeMismatch))
	}
	return res, nil
}

// reserve 保证 out 在当前偏移之后至少还有 n 字节容量。
func reserve(out *filebuf.Cursor, n int) {
	if r := out.Remaining(); r < n {
		out.Grow(n - r)
	}
}

// CompressBytes 是 Compress 的切片版本。
func CompressBytes(data []byte) []byte {
	c, err := Compress(filebuf.FromBytes(data))
	if err != nil {
		// 缓冲区按最坏情况分配，不会越界
		panic(err)
	}
	return c.Bytes()
}

// DecompressBytes 是 Decompress 的切片版本。
func DecompressBytes(data []byte, expected int, opts Options) ([]byte, error) {
	c, err := Decompress(filebuf.FromBytes(data), expected, opts)
	if c == nil {
		return nil, err
	}
	return c.Bytes(), err
}
