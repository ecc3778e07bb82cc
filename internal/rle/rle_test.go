package rle

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"baktt/internal/diag"
	"baktt/internal/filebuf"
	"baktt/pkg/contract"
)

// groups 解析压缩流，返回每个组的 (是否重复, 次数)。
func groups(t *testing.T, comp []byte) [][2]int {
	t.Helper()
	var out [][2]int
	for i := 0; i < len(comp); {
		ctrl := comp[i]
		n := int(ctrl & countMask)
		if ctrl&repeatFlag != 0 {
			out = append(out, [2]int{1, n})
			i += 2
			continue
		}
		out = append(out, [2]int{0, n})
		i += 1 + n
	}
	return out
}

// TestRoundTrip 解压为压缩的逆运算。
func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	random := make([]byte, 4096)
	rng.Read(random)
	mixed := append(bytes.Repeat([]byte{0}, 200), []byte("abcdefg")...)
	mixed = append(mixed, bytes.Repeat([]byte{0xF0}, 3)...)
	mixed = append(mixed, random[:300]...)

	cases := map[string][]byte{
		"empty":      {},
		"single":     {0x42},
		"pair":       {7, 7},
		"run 127":    bytes.Repeat([]byte{1}, 127),
		"run 128":    bytes.Repeat([]byte{1}, 128),
		"run 1000":   bytes.Repeat([]byte{0xAA}, 1000),
		"alternate":  bytes.Repeat([]byte{1, 2}, 300),
		"random":     random,
		"mixed":      mixed,
		"high bytes": {0x80, 0xFF, 0xFF, 0x7F, 0x80},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			comp := CompressBytes(in)
			got, err := DecompressBytes(comp, UnknownSize, Options{Mode: Strict})
			if err != nil {
				t.Fatalf("decompress: %v", err)
			}
			if !bytes.Equal(got, in) {
				t.Fatalf("round trip mismatch: len %d vs %d", len(got), len(in))
			}
			withSize, err := DecompressBytes(comp, len(in), Options{Mode: Strict})
			if err != nil || !bytes.Equal(withSize, in) {
				t.Fatalf("sized decompress mismatch: %v", err)
			}
		})
	}
}

// TestLongRunSplit 300 字节的同值行程至少拆为 3 组，且每组不超过 127。
func TestLongRunSplit(t *testing.T) {
	in := bytes.Repeat([]byte{0x55}, 300)
	comp := CompressBytes(in)
	gs := groups(t, comp)
	if len(gs) < 3 {
		t.Fatalf("expect >= 3 groups, got %v", gs)
	}
	total := 0
	for _, g := range gs {
		if g[1] > MaxGroup || g[1] == 0 {
			t.Fatalf("组长度越界: %v", gs)
		}
		total += g[1]
	}
	if total != 300 {
		t.Fatalf("组长度合计 %d", total)
	}
	out, err := DecompressBytes(comp, 300, Options{Mode: Strict})
	if err != nil || len(out) != 300 {
		t.Fatalf("decompress len=%d err=%v", len(out), err)
	}
}

// TestGreedyEncoding 固定输入的逐字节编码结果。
func TestGreedyEncoding(t *testing.T) {
	in := []byte{1, 2, 3, 3, 3, 4}
	want := []byte{0x02, 1, 2, 0x83, 3, 0x01, 4}
	if got := CompressBytes(in); !bytes.Equal(got, want) {
		t.Fatalf("got % X want % X", got, want)
	}
	// 字面组上限 127
	lit := make([]byte, 200)
	for i := range lit {
		lit[i] = byte(i)
	}
	gs := groups(t, CompressBytes(lit))
	if len(gs) != 2 || gs[0] != [2]int{0, 127} || gs[1] != [2]int{0, 73} {
		t.Fatalf("字面组拆分错误: %v", gs)
	}
}

// TestCompressCursorOffset 压缩从游标当前偏移开始，结果游标偏移为 0 且尺寸精确。
func TestCompressCursorOffset(t *testing.T) {
	src := filebuf.FromBytes([]byte{9, 9, 5, 5, 5, 5})
	_ = src.Skip(2)
	out, err := Compress(src)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if out.Tell() != 0 || !bytes.Equal(out.Bytes(), []byte{0x84, 5}) {
		t.Fatalf("got % X off=%d", out.Bytes(), out.Tell())
	}
	if !src.AtEnd() {
		t.Fatalf("源游标应被消费到末尾")
	}
}

// TestDecompressStopsAtExpected 达到期望尺寸后不再读取后续组。
func TestDecompressStopsAtExpected(t *testing.T) {
	src := filebuf.FromBytes([]byte{0x83, 'a', 0x02, 'b', 'c', 0xFF})
	out, err := Decompress(src, 3, Options{Mode: Strict})
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(out.Bytes()) != "aaa" {
		t.Fatalf("got %q", out.Bytes())
	}
	if src.Tell() != 2 {
		t.Fatalf("应停在第二组之前, off=%d", src.Tell())
	}
}

// TestSizeMismatchStrict 严格模式返回错误与已解压数据。
func TestSizeMismatchStrict(t *testing.T) {
	comp := CompressBytes([]byte("hello"))
	out, err := DecompressBytes(comp, 8, Options{Mode: Strict})
	var mis *SizeMismatchError
	if !errors.As(err, &mis) || !errors.Is(err, contract.ErrSizeMismatch) {
		t.Fatalf("want size mismatch, got %v", err)
	}
	if mis.Expected != 8 || mis.Actual != 5 || string(out) != "hello" {
		t.Fatalf("mismatch detail %+v out=%q", mis, out)
	}
}

// TestSizeMismatchLenient 宽松模式仅告警，返回结果且无错误。
func TestSizeMismatchLenient(t *testing.T) {
	dir := t.TempDir()
	sink := diag.NewRotatingFile(dir, "c", 0)
	defer sink.Close()
	logger := diag.NewLoggerTo("c", "info", sink)

	// 重复组越过期望尺寸
	out, err := DecompressBytes([]byte{0x8A, 'z'}, 4, Options{Logger: logger})
	if err != nil {
		t.Fatalf("lenient 不应报错: %v", err)
	}
	if len(out) != 10 {
		t.Fatalf("应保留实际解压结果, len=%d", len(out))
	}
	b, _ := os.ReadFile(filepath.Join(dir, "baktt-current.txt"))
	if !strings.Contains(string(b), `"code":"size_mismatch"`) || !strings.Contains(string(b), `"level":"warn"`) {
		t.Fatalf("缺少告警日志: %s", b)
	}
	// 无 logger 也不应 panic
	if _, err := DecompressBytes([]byte{0x01, 'a'}, 3, Options{}); err != nil {
		t.Fatalf("nil logger: %v", err)
	}
}

// TestTruncatedGroups 截断的组为越界错误。
func TestTruncatedGroups(t *testing.T) {
	cases := map[string][]byte{
		"repeat without value": {0x85},
		"short literal":        {0x05, 'a', 'b'},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecompressBytes(in, UnknownSize, Options{}); !errors.Is(err, contract.ErrOutOfBounds) {
				t.Fatalf("want ErrOutOfBounds, got %v", err)
			}
		})
	}
}

func TestModeString(t *testing.T) {
	if Lenient.String() != "lenient" || Strict.String() != "strict" {
		t.Fatalf("mode string")
	}
}
