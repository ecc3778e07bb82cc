package book

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"baktt/internal/filebuf"
	"baktt/pkg/contract"
)

// TestScannerSingleFragment 单个段落以 0xF0 结束。
func TestScannerSingleFragment(t *testing.T) {
	body := cat([]byte{MarkerNext}, make([]byte, PrefixSize), []byte(`\ihello`), []byte{MarkerEnd})
	c := filebuf.FromBytes(body)
	frags, err := ScanFragments(c)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(frags) != 1 || frags[0].Text().String() != `\ihello` {
		t.Fatalf("frags %+v", frags)
	}
	if !c.AtEnd() {
		t.Fatalf("cursor should stop after end marker, off=%d", c.Tell())
	}
}

// TestScannerEmptyPage 仅有 0xF0 时没有段落，且只消费 1 字节。
func TestScannerEmptyPage(t *testing.T) {
	c := filebuf.FromBytes([]byte{MarkerEnd, 0x99})
	s := NewScanner(c)
	if s.Scan() {
		t.Fatalf("expect no fragment")
	}
	if s.Err() != nil || c.Tell() != 1 {
		t.Fatalf("err=%v off=%d", s.Err(), c.Tell())
	}
	if s.Scan() {
		t.Fatalf("done scanner must stay done")
	}
}

// TestScannerMultiple 多个段落依次产出，前缀原样保留。
func TestScannerMultiple(t *testing.T) {
	pre := bytes.Repeat([]byte{0xAB}, PrefixSize)
	body := cat([]byte{MarkerNext}, pre, rawOn, []byte("one"),
		[]byte{MarkerNext}, pre, rawOff, []byte("two"), []byte{MarkerEnd})
	s := NewScanner(filebuf.FromBytes(body))
	var got []string
	for s.Scan() {
		f := s.Fragment()
		if f.Prefix[0] != 0xAB {
			t.Fatalf("prefix lost")
		}
		got = append(got, f.Text().String())
	}
	if s.Err() != nil {
		t.Fatal(s.Err())
	}
	if strings.Join(got, ",") != `\Ione,\itwo` {
		t.Fatalf("got %q", got)
	}
}

// TestScannerErrors 非法控制字节、未终止与非法文本。
func TestScannerErrors(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want error
		msg  string
	}{
		{"bad control", []byte{0x41}, contract.ErrFormat, "0x41 at offset 0"},
		{"no end marker", cat([]byte{MarkerNext}, make([]byte, PrefixSize), []byte(`\ihi`)), contract.ErrOutOfBounds, "not terminated"},
		{"short prefix", []byte{MarkerNext, 1, 2}, contract.ErrOutOfBounds, ""},
		{"empty text", cat([]byte{MarkerNext}, make([]byte, PrefixSize), []byte{MarkerEnd}), contract.ErrFormat, "empty"},
		{"no italics", cat([]byte{MarkerNext}, make([]byte, PrefixSize), []byte("plain"), []byte{MarkerEnd}), contract.ErrFormat, "must start"},
		{"reserved byte", cat([]byte{MarkerNext}, make([]byte, PrefixSize), []byte(`\ia`), []byte{0xF2, MarkerEnd}), contract.ErrFormat, "0xF2"},
		{"high byte", cat([]byte{MarkerNext}, make([]byte, PrefixSize), []byte(`\ia`), []byte{0x90, MarkerEnd}), contract.ErrFormat, "7-bit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ScanFragments(filebuf.FromBytes(tc.in))
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
			if tc.msg != "" && !strings.Contains(err.Error(), tc.msg) {
				t.Fatalf("error %q lacks %q", err, tc.msg)
			}
		})
	}
}

// TestEscapeRoundTrip 转义记号编码再解码得到原记号而非二进制。
func TestEscapeRoundTrip(t *testing.T) {
	for _, s := range []string{`\I`, `\i`, `\Ia\ib\I`, `\itext with \I inside`} {
		tx := MustText(s)
		raw := tx.Bytes()
		if bytes.Contains(raw, []byte(`\`)) {
			t.Fatalf("%q: escape token left in raw bytes % X", s, raw)
		}
		back, err := DecodeText(raw)
		if err != nil {
			t.Fatalf("%q: %v", s, err)
		}
		if back.String() != s {
			t.Fatalf("got %q want %q", back, s)
		}
	}
	if got := MustText(`\Ix`).Bytes(); !bytes.Equal(got, cat(rawOn, []byte("x"))) {
		t.Fatalf("binary form % X", got)
	}
}

func TestParseText(t *testing.T) {
	ok := []string{`\I`, `\iHello, world!`, "\\i~tilde"}
	for _, s := range ok {
		if _, err := ParseText(s); err != nil {
			t.Fatalf("%q: %v", s, err)
		}
	}
	bad := []string{"", "hello", `I\i`, "\\i\xF0", "\\iжук"}
	for _, s := range bad {
		if _, err := ParseText(s); !errors.Is(err, contract.ErrFormat) {
			t.Fatalf("%q: want ErrFormat, got %v", s, err)
		}
	}
}

// TestFragmentWrite 段落写出布局与尺寸。
func TestFragmentWrite(t *testing.T) {
	var pre [PrefixSize]byte
	pre[3] = 9
	f := NewFragment(pre, MustText(`\iab`))
	if f.Size() != 1+PrefixSize+11+2 {
		t.Fatalf("size %d", f.Size())
	}
	c := filebuf.New(f.Size())
	if err := f.WriteTo(c); err != nil {
		t.Fatal(err)
	}
	want := cat([]byte{MarkerNext}, pre[:], rawOff, []byte("ab"))
	if !bytes.Equal(c.Bytes(), want) {
		t.Fatalf("got % X", c.Bytes())
	}
	if err := (&Fragment{}).WriteTo(filebuf.New(64)); !errors.Is(err, contract.ErrInvariantViolation) {
		t.Fatalf("zero text: %v", err)
	}
}

// TestDecodeTextLiteralToken 原始字节中的字面 \I / \i 与转义记号冲突，解码失败。
func TestDecodeTextLiteralToken(t *testing.T) {
	for _, raw := range [][]byte{
		cat(rawOn, []byte("a\x5C\x69b")),
		cat(rawOff, []byte(`x\I`)),
	} {
		if _, err := DecodeText(raw); !errors.Is(err, contract.ErrFormat) {
			t.Fatalf("% X: want ErrFormat, got %v", raw, err)
		}
	}
	// 单独的反斜杠可以往返
	raw := cat(rawOn, []byte(`a\b\`), rawOff)
	tx, err := DecodeText(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(tx.Bytes(), raw) {
		t.Fatalf("round trip % X", tx.Bytes())
	}
}
