package book

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"baktt/internal/filebuf"
	"baktt/pkg/contract"
)

var (
	rawOn  = []byte{0xF4, 0, 0, 0, 0, 0, 0, 0, 0, 0x05, 0}
	rawOff = []byte{0xF4, 0, 0, 0, 0, 0, 0, 0, 0, 0x01, 0}
)

// rawPage 描述一个手工构造的页面。
type rawPage struct {
	id, prev, next uint16
	show           uint16
	terminal       bool
	decs, firsts   [][4]uint16
	paras          [][]byte
}

func le16(b *bytes.Buffer, v uint16) { _ = binary.Write(b, binary.LittleEndian, v) }

func (s rawPage) bytes() []byte {
	var b bytes.Buffer
	for _, v := range []uint16{10, 20, 300, 200, s.id, s.id, s.prev} {
		le16(&b, v)
	}
	if s.terminal {
		le16(&b, 0xFFFE)
		le16(&b, 0xFFFF)
	} else {
		le16(&b, s.next)
		le16(&b, s.next)
	}
	le16(&b, 7)
	le16(&b, uint16(len(s.decs)))
	le16(&b, uint16(len(s.firsts)))
	le16(&b, s.show)
	for i := 0; i < 30; i++ {
		b.WriteByte(byte(i * 3))
	}
	for _, set := range [][][4]uint16{s.decs, s.firsts} {
		for _, d := range set {
			for _, v := range d {
				le16(&b, v)
			}
		}
	}
	for i, p := range s.paras {
		b.WriteByte(MarkerNext)
		for j := 0; j < PrefixSize; j++ {
			b.WriteByte(byte(i + j))
		}
		b.Write(p)
	}
	b.WriteByte(MarkerEnd)
	return b.Bytes()
}

func rawBook(pages ...[]byte) []byte {
	n := len(pages)
	body := 0
	for _, p := range pages {
		body += len(p)
	}
	var b bytes.Buffer
	_ = binary.Write(&b, binary.LittleEndian, uint32(2+4*n+body))
	le16(&b, uint16(n))
	off := uint32(2 + 4*n)
	for _, p := range pages {
		_ = binary.Write(&b, binary.LittleEndian, off)
		off += uint32(len(p))
	}
	for _, p := range pages {
		b.Write(p)
	}
	return b.Bytes()
}

func cat(parts ...[]byte) []byte { return bytes.Join(parts, nil) }

func sampleBook() []byte {
	p0 := rawPage{id: 1, prev: 0xFFFF, next: 2, show: 1,
		decs:  [][4]uint16{{1, 2, 3, 4}},
		paras: [][]byte{cat(rawOn, []byte("Once")), cat(rawOff, []byte("upon "), rawOn, []byte("a time"))},
	}
	p1 := rawPage{id: 2, prev: 1, next: 3, show: 2,
		firsts: [][4]uint16{{5, 6, 7, 8}, {9, 10, 11, 12}},
	}
	p2 := rawPage{id: 3, prev: 2, terminal: true,
		paras: [][]byte{cat(rawOff, []byte("The end."))},
	}
	return rawBook(p0.bytes(), p1.bytes(), p2.bytes())
}

// TestRoundTrip 未修改的书籍逐字节还原。
func TestRoundTrip(t *testing.T) {
	in := sampleBook()
	b, err := Unmarshal(in)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(b.Pages) != 3 {
		t.Fatalf("pages=%d", len(b.Pages))
	}
	if int(b.DeclaredSize) != len(in)-4 {
		t.Fatalf("declared size %d, file %d", b.DeclaredSize, len(in))
	}
	out, err := b.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("round trip mismatch\n got % X\nwant % X", out, in)
	}
	if b.Size() != len(in) {
		t.Fatalf("Size()=%d want %d", b.Size(), len(in))
	}
}

// TestDecodedFields 校验各字段的解析结果。
func TestDecodedFields(t *testing.T) {
	b, err := Decode(bytes.NewReader(sampleBook()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p0, p1, p2 := b.Pages[0], b.Pages[1], b.Pages[2]
	if p0.X != 10 || p0.Y != 20 || p0.Width != 300 || p0.Height != 200 || p0.Flag != 7 {
		t.Fatalf("geometry %+v", p0)
	}
	if p0.NextID != 2 || p1.PrevID != 1 || p2.NextID != SentinelNext {
		t.Fatalf("linkage %d %d %d", p0.NextID, p1.PrevID, p2.NextID)
	}
	if p2.NextIDCopy != [2]byte{0xFE, 0xFF} {
		t.Fatalf("terminal copy % X", p2.NextIDCopy)
	}
	if !p0.ShowNumber || !p1.ShowNumber || p2.ShowNumber {
		t.Fatalf("show number flags")
	}
	if len(p0.Decorations) != 1 || p0.Decorations[0] != (ImageInfo{1, 2, 3, 4}) {
		t.Fatalf("decorations %+v", p0.Decorations)
	}
	if len(p1.FirstLetters) != 2 || p1.FirstLetters[1].Flag != 12 {
		t.Fatalf("first letters %+v", p1.FirstLetters)
	}
	if p0.Reserved[29] != 87 {
		t.Fatalf("reserved blob %v", p0.Reserved)
	}
	var texts []string
	for _, f := range b.Fragments() {
		texts = append(texts, f.Text().String())
	}
	want := []string{`\IOnce`, `\iupon \Ia time`, `\iThe end.`}
	if strings.Join(texts, "|") != strings.Join(want, "|") {
		t.Fatalf("texts %q", texts)
	}
	if b.Pages[0].Fragments[1].Prefix[15] != 16 {
		t.Fatalf("prefix %v", b.Pages[0].Fragments[1].Prefix)
	}
}

// TestOffsets 偏移表从 2+4N 开始做前缀和。
func TestOffsets(t *testing.T) {
	b, err := Unmarshal(sampleBook())
	if err != nil {
		t.Fatal(err)
	}
	offs := b.Offsets()
	if offs[0] != 2+4*3 {
		t.Fatalf("first offset %d", offs[0])
	}
	for i := 1; i < len(offs); i++ {
		if offs[i]-offs[i-1] != uint32(b.Pages[i-1].Size()) {
			t.Fatalf("offset %d not prefix sum", i)
		}
	}
	empty := &Book{}
	out, err := empty.Marshal()
	if err != nil || !bytes.Equal(out, []byte{2, 0, 0, 0, 0, 0}) {
		t.Fatalf("empty book % X err=%v", out, err)
	}
}

// TestAppendPage 追加后原末页指向新页，只有新页写出哨兵。
func TestAppendPage(t *testing.T) {
	p0 := rawPage{id: 5, prev: 0xFFFF, terminal: true, paras: [][]byte{cat(rawOn, []byte("x"))}}
	b, err := Unmarshal(rawBook(p0.bytes()))
	if err != nil {
		t.Fatal(err)
	}
	np, err := b.AppendPage(NewPage{Width: 64, Height: 32, ShowNumber: true,
		Fragments: []*Fragment{NewFragment([PrefixSize]byte{}, MustText(`\inew`))}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	first := b.Pages[0]
	if np.ID != 6 || np.Number != 6 || np.PrevID != 5 || np.NextID != SentinelNext {
		t.Fatalf("new page %+v", np)
	}
	if first.NextID != np.ID || first.NextIDCopy != [2]byte{6, 0} {
		t.Fatalf("previous page not rewired: %d % X", first.NextID, first.NextIDCopy)
	}
	if got, ok := b.Page(6); !ok || got != np {
		t.Fatalf("Page(6) lookup")
	}
	if _, ok := b.Page(99); ok {
		t.Fatalf("Page(99) should miss")
	}

	out, err := b.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	offs := b.Offsets()
	at0, at1 := 4+int(offs[0]), 4+int(offs[1])
	word := func(at int) uint16 { return binary.LittleEndian.Uint16(out[at:]) }
	if word(at0+14) != 6 || word(at0+16) != 6 {
		t.Fatalf("p0 next slots %d %d", word(at0+14), word(at0+16))
	}
	if word(at1+14) != 0xFFFE || word(at1+16) != 0xFFFF {
		t.Fatalf("p1 sentinel slots %X %X", word(at1+14), word(at1+16))
	}

	again, err := Unmarshal(out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if again.Pages[1].Fragments[0].Text().String() != `\inew` || again.Pages[1].Width != 64 {
		t.Fatalf("appended page lost")
	}
}

// TestAppendPageCopiesSlices 追加后修改调用方切片，不影响书籍中的新页。
func TestAppendPageCopiesSlices(t *testing.T) {
	p0 := rawPage{id: 1, prev: 0xFFFF, terminal: true, paras: [][]byte{cat(rawOn, []byte("x"))}}
	b, err := Unmarshal(rawBook(p0.bytes()))
	if err != nil {
		t.Fatal(err)
	}
	decs := []ImageInfo{{X: 1, Y: 2, ID: 3}}
	firsts := []ImageInfo{{X: 4, Y: 5, ID: 6}}
	frags := []*Fragment{NewFragment([PrefixSize]byte{}, MustText(`\ia`))}
	np, err := b.AppendPage(NewPage{Decorations: decs, FirstLetters: firsts, Fragments: frags})
	if err != nil {
		t.Fatal(err)
	}
	before := np.Size()

	decs[0].ID = 99
	firsts[0].X = 99
	frags[0] = NewFragment([PrefixSize]byte{}, MustText(`\ia much longer replacement`))

	if np.Decorations[0].ID != 3 || np.FirstLetters[0].X != 4 {
		t.Fatalf("image slices aliased: %+v %+v", np.Decorations, np.FirstLetters)
	}
	if np.Fragments[0].Text().String() != `\ia` || np.Size() != before {
		t.Fatalf("fragment slice aliased: %q size %d -> %d", np.Fragments[0].Text(), before, np.Size())
	}
}

func TestAppendEmptyBook(t *testing.T) {
	if _, err := (&Book{}).AppendPage(NewPage{}); !errors.Is(err, contract.ErrInvariantViolation) {
		t.Fatalf("want ErrInvariantViolation, got %v", err)
	}
}

// TestEditFragment 修改文本后偏移随尺寸变化，重新解析得到新文本。
func TestEditFragment(t *testing.T) {
	b, err := Unmarshal(sampleBook())
	if err != nil {
		t.Fatal(err)
	}
	before := b.Offsets()
	f := b.Pages[0].Fragments[0]
	f.SetText(MustText(`\IOnce upon a longer time`))
	after := b.Offsets()
	if after[1]-before[1] != uint32(len(" upon a longer time")) {
		t.Fatalf("offsets did not shift: %v -> %v", before, after)
	}
	out, err := b.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	again, err := Unmarshal(out)
	if err != nil {
		t.Fatal(err)
	}
	if got := again.Pages[0].Fragments[0].Text().String(); got != `\IOnce upon a longer time` {
		t.Fatalf("got %q", got)
	}
}

// TestUnmarshalErrors 损坏的文件返回可判定的错误。
func TestUnmarshalErrors(t *testing.T) {
	good := sampleBook()
	badCtrl := append([]byte(nil), good...)
	// 第一页文本区首字节：头 26 + 保留 30 + 1 个装饰 8
	badCtrl[4+2+4*3+26+30+8] = 0x41

	literal := rawBook(rawPage{id: 1, prev: 0xFFFF, terminal: true,
		paras: [][]byte{cat(rawOn, []byte("a\x5C\x69b"))}}.bytes())

	cases := []struct {
		name string
		in   []byte
		want error
	}{
		{"empty", nil, contract.ErrOutOfBounds},
		{"truncated offsets", good[:8], contract.ErrOutOfBounds},
		{"truncated page", good[:len(good)-3], contract.ErrOutOfBounds},
		{"bad control", badCtrl, contract.ErrFormat},
		{"literal escape token", literal, contract.ErrFormat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Unmarshal(tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}

// TestPageSizeMatchesWritten 页面预测尺寸与实际写出一致。
func TestPageSizeMatchesWritten(t *testing.T) {
	b, err := Unmarshal(sampleBook())
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range b.Pages {
		c := filebuf.New(p.Size())
		if err := p.WriteTo(c, i == len(b.Pages)-1); err != nil {
			t.Fatalf("page %d: %v", i, err)
		}
		if !c.AtEnd() {
			t.Fatalf("page %d size prediction off", i)
		}
	}
	// 容量不足
	small := filebuf.New(b.Pages[0].Size() - 1)
	if err := b.Pages[0].WriteTo(small, false); !errors.Is(err, contract.ErrOutOfBounds) {
		t.Fatalf("want ErrOutOfBounds, got %v", err)
	}
}

// TestShowNumberEdit 修改布尔值时写出 0/1，未修改时保留原始字。
func TestShowNumberEdit(t *testing.T) {
	b, err := Unmarshal(sampleBook())
	if err != nil {
		t.Fatal(err)
	}
	p1 := b.Pages[1]
	if p1.showWord() != 2 {
		t.Fatalf("raw word lost: %d", p1.showWord())
	}
	p1.ShowNumber = false
	if p1.showWord() != 0 {
		t.Fatalf("edited word %d", p1.showWord())
	}
	b.Pages[2].ShowNumber = true
	if b.Pages[2].showWord() != 1 {
		t.Fatalf("edited word %d", b.Pages[2].showWord())
	}
}
