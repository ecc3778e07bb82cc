// Package filebuf 提供定长、可定位的字节游标，承载小端整数与定长字符串原语。
// 所有越界读写都返回 contract.ErrOutOfBounds，游标偏移保持不变。
package filebuf

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/charmap"

	"baktt/pkg/contract"
)

// CodePage 是定长字符串使用的单字节代码页。
var CodePage = charmap.Windows1251

// Cursor: 拥有一段连续缓冲区与单一读写偏移。
// 不变量：0 <= off <= len(buf)。不可在并发操作间共享。
type Cursor struct {
	buf []byte
	off int
}

// New 创建容量为 size 的零值缓冲区，偏移为 0。
func New(size int) *Cursor {
	if size < 0 {
		size = 0
	}
	return &Cursor{buf: make([]byte, size)}
}

// FromBytes 基于 b 的私有副本创建游标。
func FromBytes(b []byte) *Cursor {
	buf := make([]byte, len(b))
	copy(buf, b)
	return &Cursor{buf: buf}
}

// Len 返回缓冲区容量。
func (c *Cursor) Len() int { return len(c.buf) }

// Tell 返回当前偏移。
func (c *Cursor) Tell() int { return c.off }

// Remaining 返回偏移之后剩余的字节数。
func (c *Cursor) Remaining() int { return len(c.buf) - c.off }

// AtEnd 报告偏移是否位于缓冲区末尾。
func (c *Cursor) AtEnd() bool { return c.off >= len(c.buf) }

// Bytes 返回完整底层缓冲区（不复制）。
func (c *Cursor) Bytes() []byte { return c.buf }

// Seek 将偏移移动到绝对位置 off。
func (c *Cursor) Seek(off int) error {
	if off < 0 || off > len(c.buf) {
		return fmt.Errorf("%w: seek to %d, size %d", contract.ErrOutOfBounds, off, len(c.buf))
	}
	c.off = off
	return nil
}

// Skip 相对移动偏移（n 可为负）。
func (c *Cursor) Skip(n int) error {
	return c.Seek(c.off + n)
}

// Grow 在末尾追加 n 个零字节以扩展容量；偏移不变。
func (c *Cursor) Grow(n int) {
	if n <= 0 {
		return
	}
	c.buf = append(c.buf, make([]byte, n)...)
}

// need 检查从当前偏移起是否还有 n 字节可用。
func (c *Cursor) need(n int, op string) error {
	if n < 0 || c.off+n > len(c.buf) {
		return fmt.Errorf("%w: %s %d bytes at offset %d, size %d", contract.ErrOutOfBounds, op, n, c.off, len(c.buf))
	}
	return nil
}

func (c *Cursor) ReadU8() (uint8, error) {
	if err := c.need(1, "read"); err != nil {
		return 0, err
	}
	v := c.buf[c.off]
	c.off++
	return v, nil
}

func (c *Cursor) ReadU16LE() (uint16, error) {
	if err := c.need(2, "read"); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.buf[c.off:])
	c.off += 2
	return v, nil
}

func (c *Cursor) ReadU32LE() (uint32, error) {
	if err := c.need(4, "read"); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.buf[c.off:])
	c.off += 4
	return v, nil
}

func (c *Cursor) WriteU8(v uint8) error {
	if err := c.need(1, "write"); err != nil {
		return err
	}
	c.buf[c.off] = v
	c.off++
	return nil
}

func (c *Cursor) WriteU16LE(v uint16) error {
	if err := c.need(2, "write"); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(c.buf[c.off:], v)
	c.off += 2
	return nil
}

func (c *Cursor) WriteU32LE(v uint32) error {
	if err := c.need(4, "write"); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(c.buf[c.off:], v)
	c.off += 4
	return nil
}

// Read 读取恰好 n 字节，返回副本。
func (c *Cursor) Read(n int) ([]byte, error) {
	if err := c.need(n, "read"); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, c.buf[c.off:c.off+n])
	c.off += n
	return out, nil
}

// Write 写入 p 的全部字节。
func (c *Cursor) Write(p []byte) error {
	if err := c.need(len(p), "write"); err != nil {
		return err
	}
	copy(c.buf[c.off:], p)
	c.off += len(p)
	return nil
}

// ReadAll 读取从当前偏移到末尾的全部字节，偏移移动到末尾。
func (c *Cursor) ReadAll() []byte {
	b, _ := c.Read(c.Remaining())
	return b
}

// ReadRemaining 与 ReadAll 等价。
func (c *Cursor) ReadRemaining() []byte { return c.ReadAll() }

// ReadFixedString 读取恰好 n 字节，在首个零字节处截断，并按 CodePage 解码。
func (c *Cursor) ReadFixedString(n int) (string, error) {
	raw, err := c.Read(n)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	s, err := CodePage.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: decode fixed string at offset %d: %v", contract.ErrFormat, c.off-n, err)
	}
	return string(s), nil
}

// WriteFixedString 按 CodePage 编码 s，并以零字节右填充到 n 字节。
// 编码后长度超过 n 或存在不可表示字符时返回错误，且不写入任何字节。
func (c *Cursor) WriteFixedString(s string, n int) error {
	enc, err := CodePage.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return fmt.Errorf("%w: encode fixed string %q: %v", contract.ErrFormat, s, err)
	}
	if len(enc) > n {
		return fmt.Errorf("%w: fixed string %q needs %d bytes, field is %d", contract.ErrOutOfBounds, s, len(enc), n)
	}
	if err := c.need(n, "write"); err != nil {
		return err
	}
	copy(c.buf[c.off:], enc)
	for i := c.off + len(enc); i < c.off+n; i++ {
		c.buf[i] = 0
	}
	c.off += n
	return nil
}
