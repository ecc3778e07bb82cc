// Package book 读写游戏的分页“书籍”容器（.BOK）。
//
// 文件布局（小端）：
//
//	u32 total_size        其后全部字节数（仅作参考，不校验）
//	u16 page_count = N
//	u32 offsets[N]        相对于 total_size 字段之后（即文件偏移 4）
//	Page[N]
//
// 未修改文本的书籍满足 Marshal(Unmarshal(b)) == b。
package book

import (
	"fmt"
	"io"

	"baktt/internal/filebuf"
	"baktt/pkg/contract"
)

// sizeFieldLen 为 total_size 字段长度，页偏移以其末尾为基准。
const sizeFieldLen = 4

// Book 拥有按遍历顺序排列的页面。页面只追加，不删除、不重排。
type Book struct {
	// DeclaredSize 为读入时文件头声明的尺寸，仅供展示。
	DeclaredSize uint32
	Pages        []*Page
}

// Unmarshal 解析完整的书籍文件内容。
func Unmarshal(data []byte) (*Book, error) {
	c := filebuf.FromBytes(data)
	declared, err := c.ReadU32LE()
	if err != nil {
		return nil, fmt.Errorf("read size field: %w", err)
	}
	n, err := c.ReadU16LE()
	if err != nil {
		return nil, fmt.Errorf("read page count: %w", err)
	}
	offsets := make([]uint32, 0, n)
	for i := 0; i < int(n); i++ {
		off, err := c.ReadU32LE()
		if err != nil {
			return nil, fmt.Errorf("read offset %d: %w", i, err)
		}
		offsets = append(offsets, off)
	}

	b := &Book{DeclaredSize: declared, Pages: make([]*Page, 0, n)}
	for i, off := range offsets {
		at := sizeFieldLen + int(off)
		if err := c.Seek(at); err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		p, err := ReadPage(c)
		if err != nil {
			return nil, fmt.Errorf("page %d at offset %d: %w", i, at, err)
		}
		b.Pages = append(b.Pages, p)
	}
	return b, nil
}

// Decode 读入 r 的全部内容后解析。
func Decode(r io.Reader) (*Book, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

// headerLen 返回页数字段与偏移表的长度（不含 total_size 字段）。
func (b *Book) headerLen() int { return 2 + 4*len(b.Pages) }

// Size 返回序列化后的文件总长度。
func (b *Book) Size() int {
	n := sizeFieldLen + b.headerLen()
	for _, p := range b.Pages {
		n += p.Size()
	}
	return n
}

// Offsets 返回各页偏移（相对文件偏移 4），首页为 2+4N。
func (b *Book) Offsets() []uint32 {
	out := make([]uint32, len(b.Pages))
	off := uint32(b.headerLen())
	for i, p := range b.Pages {
		out[i] = off
		off += uint32(p.Size())
	}
	return out
}

// Marshal 两遍序列化：先算尺寸与偏移，再按精确总长分配并写出。
// 只有最后一页写出哨兵。
func (b *Book) Marshal() ([]byte, error) {
	if len(b.Pages) > 0xFFFF {
		return nil, fmt.Errorf("%w: %d pages exceed u16 page count", contract.ErrInvariantViolation, len(b.Pages))
	}
	total := b.Size()
	offsets := b.Offsets()
	c := filebuf.New(total)
	if err := c.WriteU32LE(uint32(total - sizeFieldLen)); err != nil {
		return nil, err
	}
	if err := c.WriteU16LE(uint16(len(b.Pages))); err != nil {
		return nil, err
	}
	for _, off := range offsets {
		if err := c.WriteU32LE(off); err != nil {
			return nil, err
		}
	}
	last := len(b.Pages) - 1
	for i, p := range b.Pages {
		if err := p.WriteTo(c, i == last); err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
	}
	if !c.AtEnd() {
		return nil, fmt.Errorf("%w: wrote %d of %d bytes", contract.ErrInvariantViolation, c.Tell(), total)
	}
	return c.Bytes(), nil
}

// NewPage 为追加页面的可选内容；编号与链接由 AppendPage 决定。
type NewPage struct {
	X, Y, Width, Height uint16
	Flag                uint16
	ShowNumber          bool
	Decorations         []ImageInfo
	FirstLetters        []ImageInfo
	Fragments           []*Fragment
	Reserved            [reservedSize]byte
}

// AppendPage 在末尾追加一页：number/id 为末页加一，prev_id 为末页 id，
// 自身 next_id 为哨兵；原末页的 next_id 及其副本改指新页。
// 新页持有 np 中各切片的副本，调用方之后修改原切片不影响书籍。
func (b *Book) AppendPage(np NewPage) (*Page, error) {
	if len(b.Pages) == 0 {
		return nil, fmt.Errorf("%w: append on empty book", contract.ErrInvariantViolation)
	}
	last := b.Pages[len(b.Pages)-1]
	if last.ID == 0xFFFF || last.Number == 0xFFFF {
		return nil, fmt.Errorf("%w: page id %d cannot be incremented", contract.ErrInvariantViolation, last.ID)
	}
	p := &Page{
		X: np.X, Y: np.Y, Width: np.Width, Height: np.Height,
		Number:       last.Number + 1,
		ID:           last.ID + 1,
		PrevID:       last.ID,
		Flag:         np.Flag,
		ShowNumber:   np.ShowNumber,
		Decorations:  append([]ImageInfo(nil), np.Decorations...),
		FirstLetters: append([]ImageInfo(nil), np.FirstLetters...),
		Fragments:    append([]*Fragment(nil), np.Fragments...),
		Reserved:     np.Reserved,
	}
	p.setNextID(SentinelNext)
	last.setNextID(p.ID)
	b.Pages = append(b.Pages, p)
	return p, nil
}

// Page 按 id 线性查找页面。
func (b *Book) Page(id uint16) (*Page, bool) {
	for _, p := range b.Pages {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// Fragments 按页面顺序返回全部段落。
func (b *Book) Fragments() []*Fragment {
	var out []*Fragment
	for _, p := range b.Pages {
		out = append(out, p.Fragments...)
	}
	return out
}
