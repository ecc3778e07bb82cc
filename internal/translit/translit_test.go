package translit

import (
	"errors"
	"testing"

	"baktt/pkg/contract"
)

func TestRussianEncode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"小写", "жук", "#UK"},
		{"大写", "ЖУК", "vuk"},
		{"罗马数字", "Глава IV", "gLAWA IV"},
		{"转义记号", `\iПривет`, `\ipR'WET`},
		{"标点数字", "1, 2!", "1, 2!"},
		{"表外 ASCII", "abc", "abc"},
	}
	var ru Russian
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ru.Encode(tt.in)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Encode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestRussianNFC 组合形式与预组合形式编码一致。
func TestRussianNFC(t *testing.T) {
	var ru Russian
	got, err := ru.Encode("ё") // е + 分音符
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got != "&" {
		t.Fatalf("got %q", got)
	}
}

func TestRussianRejects(t *testing.T) {
	var ru Russian
	for _, s := range []string{"ї", "日本", "é"} {
		if _, err := ru.Encode(s); !errors.Is(err, contract.ErrFormat) {
			t.Fatalf("%q: want ErrFormat, got %v", s, err)
		}
	}
}

// TestRussianForgedEscape э 与 И/I 相邻会拼出斜体转义记号，必须拒绝；真实记号照常通过。
func TestRussianForgedEscape(t *testing.T) {
	var ru Russian
	for _, s := range []string{"эИ", "поэI", `\И`, `\iэИ`} {
		if _, err := ru.Encode(s); !errors.Is(err, contract.ErrFormat) {
			t.Fatalf("%q: want ErrFormat, got %v", s, err)
		}
	}
	for in, want := range map[string]string{
		`\Iэ`: `\I\`,
		`э\i`: `\\i`,
		"эи":  `\'`,
		`\\I`: `\\I`,
	} {
		got, err := ru.Encode(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if got != want {
			t.Fatalf("%q: got %q want %q", in, got, want)
		}
	}
}

// TestRussianDecode 逆映射恢复原文，转义记号保持不变。
func TestRussianDecode(t *testing.T) {
	var ru Russian
	in := `\IЁлка и ёж. Глава XIV`
	enc, err := ru.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	if got := ru.Decode(enc); got != in {
		t.Fatalf("Decode = %q want %q", got, in)
	}
}

func TestASCII(t *testing.T) {
	var a ASCII
	if got, err := a.Encode(`\ihello`); err != nil || got != `\ihello` {
		t.Fatalf("got %q err=%v", got, err)
	}
	if _, err := a.Encode("héllo"); !errors.Is(err, contract.ErrFormat) {
		t.Fatalf("want ErrFormat, got %v", err)
	}
	if a.Decode("x") != "x" {
		t.Fatalf("decode")
	}
}
