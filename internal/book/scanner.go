package book

import (
	"fmt"

	"baktt/internal/filebuf"
	"baktt/pkg/contract"
)

type scanState int

const (
	stateExpectControlOrEnd scanState = iota
	stateReadingPrefix
	stateReadingBody
	stateDone
)

// Scanner 将页面的文本区切分为段落，用法与 bufio.Scanner 相同：
//
//	s := NewScanner(c)
//	for s.Scan() {
//		frag := s.Fragment()
//	}
//	if err := s.Err(); err != nil { ... }
//
// 消费到 0xF0 后停止，游标停在其后一个字节。
type Scanner struct {
	c     *filebuf.Cursor
	state scanState
	frag  *Fragment
	err   error
}

func NewScanner(c *filebuf.Cursor) *Scanner {
	return &Scanner{c: c, state: stateExpectControlOrEnd}
}

// Scan 前进到下一个段落。没有更多段落或出错时返回 false。
func (s *Scanner) Scan() bool {
	s.frag = nil
	for s.err == nil {
		switch s.state {
		case stateExpectControlOrEnd:
			at := s.c.Tell()
			b, err := s.c.ReadU8()
			if err != nil {
				s.err = err
				return false
			}
			switch b {
			case MarkerEnd:
				s.state = stateDone
			case MarkerNext:
				s.state = stateReadingPrefix
			default:
				s.err = fmt.Errorf("%w: unexpected control byte 0x%02X at offset %d", contract.ErrFormat, b, at)
			}
		case stateReadingPrefix:
			p, err := s.c.Read(PrefixSize)
			if err != nil {
				s.err = err
				return false
			}
			s.frag = &Fragment{}
			copy(s.frag.Prefix[:], p)
			s.state = stateReadingBody
		case stateReadingBody:
			return s.readBody()
		case stateDone:
			return false
		}
	}
	return false
}

// readBody 累积正文直到遇到任一控制字节，并据此决定下一状态。
func (s *Scanner) readBody() bool {
	start := s.c.Tell()
	for {
		b, err := s.c.ReadU8()
		if err != nil {
			s.err = fmt.Errorf("paragraph at offset %d not terminated: %w", start, err)
			s.frag = nil
			return false
		}
		if b != MarkerNext && b != MarkerEnd {
			continue
		}
		end := s.c.Tell() - 1
		body := s.c.Bytes()[start:end]
		t, err := DecodeText(body)
		if err != nil {
			s.err = fmt.Errorf("paragraph at offset %d: %w", start, err)
			s.frag = nil
			return false
		}
		s.frag.text = t
		if b == MarkerEnd {
			s.state = stateDone
		} else {
			s.state = stateReadingPrefix
		}
		return true
	}
}

// Fragment 返回最近一次 Scan 得到的段落。
func (s *Scanner) Fragment() *Fragment { return s.frag }

// Err 返回扫描过程中的第一个错误。
func (s *Scanner) Err() error { return s.err }

// ScanFragments 读取整段文本区，返回全部段落。
func ScanFragments(c *filebuf.Cursor) ([]*Fragment, error) {
	var out []*Fragment
	s := NewScanner(c)
	for s.Scan() {
		out = append(out, s.Fragment())
	}
	return out, s.Err()
}
