package book

import (
	"encoding/binary"
	"fmt"

	"baktt/internal/filebuf"
	"baktt/pkg/contract"
)

// 终止页写出的链接哨兵。
const (
	SentinelCopy uint16 = 0xFFFE
	SentinelNext uint16 = 0xFFFF
)

const (
	pageHeaderSize = 13 * 2
	reservedSize   = 30
	imageInfoSize  = 4 * 2
)

// ImageInfo 为装饰图/首字母图的引用。
type ImageInfo struct {
	X, Y, ID, Flag uint16
}

func readImageInfo(c *filebuf.Cursor) (ImageInfo, error) {
	var v [4]uint16
	for i := range v {
		x, err := c.ReadU16LE()
		if err != nil {
			return ImageInfo{}, err
		}
		v[i] = x
	}
	return ImageInfo{X: v[0], Y: v[1], ID: v[2], Flag: v[3]}, nil
}

func (ii ImageInfo) writeTo(c *filebuf.Cursor) error {
	for _, x := range [4]uint16{ii.X, ii.Y, ii.ID, ii.Flag} {
		if err := c.WriteU16LE(x); err != nil {
			return err
		}
	}
	return nil
}

// Page 为一页记录。PrevID/NextID 以 id 表示前后页，不持有引用。
type Page struct {
	X, Y, Width, Height uint16
	Number              uint16
	ID                  uint16
	PrevID              uint16
	NextID              uint16
	Flag                uint16
	ShowNumber          bool

	Decorations  []ImageInfo
	FirstLetters []ImageInfo
	Fragments    []*Fragment

	// NextIDCopy 是 next_id 之前的 2 字节，看起来是 next_id 的副本。
	NextIDCopy [2]byte
	// Reserved 是含义未知的 30 字节，原样保留。
	Reserved [reservedSize]byte

	// showRaw 记录读入时的原始 show_number 字，未修改时原样写回。
	showRaw uint16
}

// ReadPage 从游标当前偏移读取一页，游标停在页结束标记之后。
func ReadPage(c *filebuf.Cursor) (*Page, error) {
	var h [7]uint16
	for i := range h {
		v, err := c.ReadU16LE()
		if err != nil {
			return nil, err
		}
		h[i] = v
	}
	p := &Page{X: h[0], Y: h[1], Width: h[2], Height: h[3], Number: h[4], ID: h[5], PrevID: h[6]}

	cp, err := c.Read(2)
	if err != nil {
		return nil, err
	}
	copy(p.NextIDCopy[:], cp)

	var t [5]uint16
	for i := range t {
		v, err := c.ReadU16LE()
		if err != nil {
			return nil, err
		}
		t[i] = v
	}
	p.NextID, p.Flag = t[0], t[1]
	numDec, numFirst := int(t[2]), int(t[3])
	p.showRaw = t[4]
	p.ShowNumber = t[4] > 0

	rs, err := c.Read(reservedSize)
	if err != nil {
		return nil, err
	}
	copy(p.Reserved[:], rs)

	if p.Decorations, err = readImageInfos(c, numDec); err != nil {
		return nil, fmt.Errorf("decorations: %w", err)
	}
	if p.FirstLetters, err = readImageInfos(c, numFirst); err != nil {
		return nil, fmt.Errorf("first letters: %w", err)
	}
	if p.Fragments, err = ScanFragments(c); err != nil {
		return nil, err
	}
	return p, nil
}

func readImageInfos(c *filebuf.Cursor, n int) ([]ImageInfo, error) {
	if n == 0 {
		return nil, nil
	}
	// 先做边界检查，避免按损坏的计数分配
	if c.Remaining() < n*imageInfoSize {
		return nil, fmt.Errorf("%w: %d image entries need %d bytes at offset %d, remaining %d",
			contract.ErrOutOfBounds, n, n*imageInfoSize, c.Tell(), c.Remaining())
	}
	out := make([]ImageInfo, n)
	for i := range out {
		ii, err := readImageInfo(c)
		if err != nil {
			return nil, err
		}
		out[i] = ii
	}
	return out, nil
}

// Size 返回页面序列化后的精确长度。
func (p *Page) Size() int {
	n := pageHeaderSize + reservedSize
	n += imageInfoSize * (len(p.Decorations) + len(p.FirstLetters))
	for _, f := range p.Fragments {
		n += f.Size()
	}
	return n + 1
}

// showWord 返回写出的 show_number 字：布尔值未改动时保留原始字。
func (p *Page) showWord() uint16 {
	if (p.showRaw != 0) == p.ShowNumber {
		return p.showRaw
	}
	if p.ShowNumber {
		return 1
	}
	return 0
}

// WriteTo 按读取时的布局写出页面。terminal 为 true 时写出哨兵而非 NextID。
// 实际写出长度必须等于 Size()。
func (p *Page) WriteTo(c *filebuf.Cursor, terminal bool) error {
	if len(p.Decorations) > 0xFFFF || len(p.FirstLetters) > 0xFFFF {
		return fmt.Errorf("%w: page %d has too many image entries", contract.ErrInvariantViolation, p.ID)
	}
	start := c.Tell()
	copyWord, next := p.NextID, p.NextID
	if terminal {
		copyWord, next = SentinelCopy, SentinelNext
	}
	words := []uint16{
		p.X, p.Y, p.Width, p.Height, p.Number, p.ID, p.PrevID,
		copyWord, next, p.Flag,
		uint16(len(p.Decorations)), uint16(len(p.FirstLetters)), p.showWord(),
	}
	for _, w := range words {
		if err := c.WriteU16LE(w); err != nil {
			return err
		}
	}
	if err := c.Write(p.Reserved[:]); err != nil {
		return err
	}
	for _, ii := range p.Decorations {
		if err := ii.writeTo(c); err != nil {
			return err
		}
	}
	for _, ii := range p.FirstLetters {
		if err := ii.writeTo(c); err != nil {
			return err
		}
	}
	for _, f := range p.Fragments {
		if err := f.WriteTo(c); err != nil {
			return err
		}
	}
	if err := c.WriteU8(MarkerEnd); err != nil {
		return err
	}
	if n := c.Tell() - start; n != p.Size() {
		return fmt.Errorf("%w: page %d wrote %d bytes, predicted %d", contract.ErrInvariantViolation, p.ID, n, p.Size())
	}
	return nil
}

// setNextID 重连后继页，同时更新副本字段。
func (p *Page) setNextID(id uint16) {
	p.NextID = id
	binary.LittleEndian.PutUint16(p.NextIDCopy[:], id)
}
