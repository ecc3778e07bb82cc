package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// DefaultLogDir 为未配置 logging.dir 时的日志目录。
	DefaultLogDir = "logs"
	// DefaultLogMaxBytes 为未配置 logging.max_bytes 时的单文件上限。
	DefaultLogMaxBytes int64 = 10 << 20

	currentLog = "baktt-current.txt"
)

// RotatingFile 是一次运行的日志落盘目标。
//
// 运行期间写 <dir>/baktt-current.txt。首次写入时若该文件非空（上一次运行遗留），
// 先按其修改时间归档为 baktt-YYYYMMDD-HHMMSS.txt，使 current 只含本次运行。
// 运行内超过 maxBytes 时归档为 baktt-<corr>-<n>.txt，n 从 1 递增。
// 归档出的文件名由 Logger 补记为 rotate 事件。
type RotatingFile struct {
	dir      string
	corrID   string
	maxBytes int64

	mu      sync.Mutex
	f       *os.File
	size    int64
	seq     int
	opened  bool
	pending []string
}

// NewRotatingFile 构造 sink；dir 为空用 DefaultLogDir，maxBytes<=0 用 DefaultLogMaxBytes。
func NewRotatingFile(dir, corrID string, maxBytes int64) *RotatingFile {
	if dir == "" {
		dir = DefaultLogDir
	}
	if maxBytes <= 0 {
		maxBytes = DefaultLogMaxBytes
	}
	return &RotatingFile{dir: dir, corrID: corrID, maxBytes: maxBytes}
}

// Path 返回当前日志文件路径。
func (w *RotatingFile) Path() string { return filepath.Join(w.dir, currentLog) }

// WriteLine 追加一行；本行放不下且当前文件非空时先归档。
// 单行超过上限时仍整行写入，不拆分。
func (w *RotatingFile) WriteLine(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.open(); err != nil {
		return err
	}
	line := int64(len(b) + 1)
	if w.size > 0 && w.size+line > w.maxBytes {
		w.seq++
		if err := w.archive(w.runName(w.seq)); err != nil {
			return err
		}
		if err := w.open(); err != nil {
			return err
		}
	}
	n, err := w.f.Write(append(b, '\n'))
	w.size += int64(n)
	return err
}

// takeRotated 取走尚未报告的归档文件名。
func (w *RotatingFile) takeRotated() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.pending
	w.pending = nil
	return out
}

func (w *RotatingFile) open() error {
	if w.f != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	if !w.opened {
		w.opened = true
		if st, err := os.Stat(w.Path()); err == nil && st.Size() > 0 {
			if err := w.archive(w.prevName(st.ModTime().UTC().Format("20060102-150405"))); err != nil {
				return err
			}
		}
	}
	f, err := os.OpenFile(w.Path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	w.size = 0
	if st, err := f.Stat(); err == nil {
		w.size = st.Size()
	}
	return nil
}

// archive 关闭并重命名 current；下一次 open 重新创建。
func (w *RotatingFile) archive(name string) error {
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	if err := os.Rename(w.Path(), filepath.Join(w.dir, name)); err != nil {
		return fmt.Errorf("archive log %s: %w", name, err)
	}
	w.pending = append(w.pending, name)
	return nil
}

func (w *RotatingFile) runName(seq int) string {
	id := w.corrID
	if id == "" {
		id = "run"
	}
	return fmt.Sprintf("baktt-%s-%d.txt", id, seq)
}

// prevName 以时间戳命名，同秒冲突时追加序号。
func (w *RotatingFile) prevName(ts string) string {
	name := fmt.Sprintf("baktt-%s.txt", ts)
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(w.dir, name)); err != nil {
			return name
		}
		name = fmt.Sprintf("baktt-%s-%d.txt", ts, i)
	}
}

// Close 关闭当前文件；之后再写会重新打开，不再归档上一轮内容。
func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
