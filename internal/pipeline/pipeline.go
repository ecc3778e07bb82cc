package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"time"

	"baktt/internal/book"
	"baktt/internal/diag"
	"baktt/internal/rle"
	"baktt/internal/sections"
	"baktt/pkg/contract"
)

// - 单线程：文件按 Reader 的稳定顺序逐个处理，每个文件整体读入内存后再解析。
// - 首错即停：任一文件失败时记录错误并返回，已写出的文件保持完整（Writer 原子替换）。
// - 输出：书籍与 CSV 经由 Writer 写出；display 仅写 Settings.Out。

// Command 为子命令名。
type Command string

const (
	CmdDisplay   Command = "display"
	CmdCopy      Command = "copy"
	CmdExport    Command = "export"
	CmdImport    Command = "import"
	CmdRLEPack   Command = "rle-pack"
	CmdRLEUnpack Command = "rle-unpack"
)

// Commands 按帮助输出顺序列出全部子命令。
var Commands = []Command{CmdDisplay, CmdCopy, CmdExport, CmdImport, CmdRLEPack, CmdRLEUnpack}

// ParseCommand 校验子命令名。
func ParseCommand(s string) (Command, error) {
	for _, c := range Commands {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown command %q", contract.ErrInvalidInput, s)
}

// NeedsWriter 报告命令是否写出书籍/原始文件。
func (c Command) NeedsWriter() bool {
	switch c {
	case CmdCopy, CmdImport, CmdRLEPack, CmdRLEUnpack:
		return true
	}
	return false
}

// NeedsCSV 报告命令是否读写翻译 CSV。
func (c Command) NeedsCSV() bool { return c == CmdExport || c == CmdImport }

// Components 聚合运行所需的组件。按命令只需其中一部分。
type Components struct {
	Reader contract.Reader
	// Writer 写出书籍与 rle 产物。
	Writer contract.Writer
	// Sheet 写出导出的 CSV（目标目录为 CSV 所在目录）。
	Sheet contract.Writer
	Codec contract.TextCodec
}

// Settings 运行期配置。
type Settings struct {
	Command Command
	Inputs  []string
	// CSV 为 export 的输出 / import 的输入路径。
	CSV string
	// Decode: display 时按 Codec 逆映射展示文本。
	Decode bool
	// RLEMode / ExpectedSize 用于 rle-unpack；ExpectedSize < 0 表示未知。
	RLEMode      rle.Mode
	ExpectedSize int
	// Out 为 display 与提示信息的输出，默认 os.Stdout。
	Out io.Writer
}

// Run 按命令执行：Reader → (book/rle) → Writer。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) error {
	if err := sanity(comp, set); err != nil {
		return fmt.Errorf("sanity: %w", err)
	}
	if set.Out == nil {
		set.Out = os.Stdout
	}
	r := &runner{comp: comp, set: set, logger: logger}

	var err error
	switch set.Command {
	case CmdDisplay:
		err = r.eachFile(ctx, "display", r.display)
	case CmdCopy:
		err = r.eachFile(ctx, "copy", r.copyBook)
	case CmdExport:
		err = r.export(ctx)
	case CmdImport:
		err = r.importCSV(ctx)
	case CmdRLEPack:
		err = r.eachFile(ctx, "rle", r.pack)
	case CmdRLEUnpack:
		err = r.eachFile(ctx, "rle", r.unpack)
	}
	return err
}

func sanity(c Components, s Settings) error {
	if _, err := ParseCommand(string(s.Command)); err != nil {
		return err
	}
	if c.Reader == nil {
		return errors.New("pipeline: missing reader")
	}
	if s.Command.NeedsWriter() && c.Writer == nil {
		return fmt.Errorf("pipeline: %s needs a writer", s.Command)
	}
	if s.Command == CmdExport && c.Sheet == nil {
		return errors.New("pipeline: export needs a csv writer")
	}
	if (s.Command == CmdImport || s.Decode) && c.Codec == nil {
		return fmt.Errorf("pipeline: %s needs a text codec", s.Command)
	}
	if s.Command.NeedsCSV() && s.CSV == "" {
		return fmt.Errorf("%w: %s needs a csv path", contract.ErrInvalidInput, s.Command)
	}
	if len(s.Inputs) == 0 {
		return errors.New("pipeline: empty inputs")
	}
	return nil
}

type runner struct {
	comp   Components
	set    Settings
	logger *diag.Logger
}

// fileFunc 处理一个已整体读入内存的文件，返回计入终端进度的页数/条目数。
type fileFunc func(ctx context.Context, id contract.FileID, data []byte) (int, error)

// eachFile 遍历输入，逐文件读入并调用 fn；负责日志、指标与终端进度。
func (r *runner) eachFile(ctx context.Context, comp string, fn fileFunc) error {
	rtimer := r.logger.Start("reader", "iterate")
	files := 0
	err := r.comp.Reader.Iterate(ctx, r.set.Inputs, func(id contract.FileID, rc io.ReadCloser) error {
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			r.fail("reader", id, err)
			return fmt.Errorf("read %s: %w", id, err)
		}
		t0 := time.Now()
		timer := r.logger.StartWith(comp, string(r.set.Command), string(id))
		term := diag.GetTerminal()
		term.FileStart(string(id))
		n, err := fn(ctx, id, data)
		term.FileFinish(err == nil, n, time.Since(t0))
		if err != nil {
			r.fail(comp, id, err)
			return fmt.Errorf("%s: %w", id, err)
		}
		timer.Finish(string(r.set.Command), int64(n))
		diag.IncOp(comp, "finish", "success")
		diag.ObserveDuration(comp, "file", time.Since(t0).Milliseconds())
		files++
		return nil
	})
	if err != nil {
		return err
	}
	rtimer.Finish("iterate", int64(files))
	return nil
}

// fail 记录错误事件与指标。错误偏移等细节保留在错误消息中。
func (r *runner) fail(comp string, id contract.FileID, err error) {
	code := diag.Classify(err)
	r.logger.ErrorWith(comp, string(code), err.Error(), string(id), nil)
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}

func (r *runner) display(_ context.Context, id contract.FileID, data []byte) (int, error) {
	b, err := book.Unmarshal(data)
	if err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	fmt.Fprintln(&buf, id)
	for i, p := range b.Pages {
		fmt.Fprintf(&buf, "Page %d\n", i+1)
		fmt.Fprintln(&buf, "===========")
		for _, f := range p.Fragments {
			s := f.Text().String()
			if r.set.Decode {
				s = r.comp.Codec.Decode(s)
			}
			fmt.Fprintln(&buf, s)
		}
	}
	_, err = r.set.Out.Write(buf.Bytes())
	return len(b.Pages), err
}

func (r *runner) copyBook(ctx context.Context, id contract.FileID, data []byte) (int, error) {
	b, err := book.Unmarshal(data)
	if err != nil {
		return 0, err
	}
	if err := r.saveBook(ctx, id, b); err != nil {
		return len(b.Pages), err
	}
	fmt.Fprintf(r.set.Out, "%s is copied\n", id)
	return len(b.Pages), nil
}

// saveBook 先完整序列化，再交给 Writer 原子写出。
func (r *runner) saveBook(ctx context.Context, id contract.FileID, b *book.Book) error {
	out, err := b.Marshal()
	if err != nil {
		return err
	}
	return r.comp.Writer.Write(ctx, contract.ArtifactID(id), bytes.NewReader(out))
}

// export 将每本书的段落文本导出为一个 CSV 分节（分节名为文件基名，译文列留空）。
func (r *runner) export(ctx context.Context) error {
	var secs []sections.Section
	err := r.eachFile(ctx, "export", func(_ context.Context, id contract.FileID, data []byte) (int, error) {
		b, err := book.Unmarshal(data)
		if err != nil {
			return 0, err
		}
		sec := sections.Section{Name: id.BaseName()}
		for _, f := range b.Fragments() {
			sec.Strings = append(sec.Strings, [2]string{f.Text().String(), ""})
		}
		secs = append(secs, sec)
		return len(b.Pages), nil
	})
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := sections.Save(&buf, secs); err != nil {
		return err
	}
	name := contract.ArtifactID(path.Base(string(contract.NormalizeFileID(r.set.CSV))))
	if err := r.comp.Sheet.Write(ctx, name, &buf); err != nil {
		r.fail("writer", contract.FileID(r.set.CSV), err)
		return fmt.Errorf("write csv: %w", err)
	}
	fmt.Fprintf(r.set.Out, "%d books are exported to %s\n", len(secs), r.set.CSV)
	return nil
}

// importCSV 以 CSV 中的非空译文替换段落文本；无对应分节的书籍跳过并告警。
func (r *runner) importCSV(ctx context.Context) error {
	f, err := os.Open(r.set.CSV)
	if err != nil {
		return err
	}
	secs, err := sections.Load(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("load %s: %w", r.set.CSV, err)
	}
	index := sections.Index(secs)

	imported := 0
	err = r.eachFile(ctx, "import", func(ctx context.Context, id contract.FileID, data []byte) (int, error) {
		sec, ok := index[id.BaseName()]
		if !ok {
			r.logger.Warn("import", "missing_section", "no csv section for book, skipped", map[string]string{"file": string(id)})
			return 0, nil
		}
		b, err := book.Unmarshal(data)
		if err != nil {
			return 0, err
		}
		if err := r.translate(b, sec.Translations()); err != nil {
			return len(b.Pages), err
		}
		if err := r.saveBook(ctx, id, b); err != nil {
			return len(b.Pages), err
		}
		imported++
		return len(b.Pages), nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(r.set.Out, "%d books are imported from %s\n", imported, r.set.CSV)
	return nil
}

func (r *runner) translate(b *book.Book, tr map[string]string) error {
	for i, f := range b.Fragments() {
		src := f.Text().String()
		dst, ok := tr[src]
		if !ok {
			continue
		}
		enc, err := r.comp.Codec.Encode(dst)
		if err != nil {
			return fmt.Errorf("fragment %d: %w", i, err)
		}
		t, err := book.ParseText(enc)
		if err != nil {
			return fmt.Errorf("fragment %d: %w", i, err)
		}
		f.SetText(t)
	}
	return nil
}

func (r *runner) pack(ctx context.Context, id contract.FileID, data []byte) (int, error) {
	out := rle.CompressBytes(data)
	r.logger.DebugStart("rle", "compressed", string(id), map[string]string{
		"in":  strconv.Itoa(len(data)),
		"out": strconv.Itoa(len(out)),
	})
	return len(out), r.comp.Writer.Write(ctx, contract.ArtifactID(string(id)+".rle"), bytes.NewReader(out))
}

func (r *runner) unpack(ctx context.Context, id contract.FileID, data []byte) (int, error) {
	out, err := rle.DecompressBytes(data, r.set.ExpectedSize, rle.Options{Mode: r.set.RLEMode, Logger: r.logger})
	if err != nil {
		return len(out), err
	}
	return len(out), r.comp.Writer.Write(ctx, contract.ArtifactID(string(id)+".raw"), bytes.NewReader(out))
}
