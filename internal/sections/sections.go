// Package sections 读写翻译 CSV：每个分节以 "===名称" 单列行开头，
// 其后每行为 (原文, 译文) 两列。
package sections

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"baktt/pkg/contract"
)

const headerPrefix = "==="

// Section 为一个文件对应的翻译分节。
type Section struct {
	Name    string
	Strings [][2]string
}

// Translations 返回原文到非空译文的映射；空译文表示保留原文。
// 同一原文出现多次时以最后一次为准。
func (s Section) Translations() map[string]string {
	m := make(map[string]string, len(s.Strings))
	for _, kv := range s.Strings {
		if kv[1] != "" {
			m[kv[0]] = kv[1]
		} else {
			delete(m, kv[0])
		}
	}
	return m
}

// Load 解析 CSV。分节之前出现数据行、数据行列数不为 2 都是 ErrInvalidInput。
func Load(r io.Reader) ([]Section, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	var (
		out []Section
		cur *Section
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv: %v", contract.ErrInvalidInput, err)
		}
		line, _ := cr.FieldPos(0)
		if len(row) > 0 && strings.HasPrefix(row[0], headerPrefix) {
			if cur != nil {
				out = append(out, *cur)
			}
			cur = &Section{Name: strings.TrimPrefix(row[0], headerPrefix)}
			continue
		}
		if cur == nil {
			return nil, fmt.Errorf("%w: csv line %d: row before first section header", contract.ErrInvalidInput, line)
		}
		if len(row) != 2 {
			return nil, fmt.Errorf("%w: csv line %d: want 2 columns, got %d", contract.ErrInvalidInput, line, len(row))
		}
		cur.Strings = append(cur.Strings, [2]string{row[0], row[1]})
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out, nil
}

// Save 按名称排序写出全部分节。
func Save(w io.Writer, secs []Section) error {
	sorted := make([]Section, len(secs))
	copy(sorted, secs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	cw := csv.NewWriter(w)
	for _, s := range sorted {
		if err := cw.Write([]string{headerPrefix + s.Name}); err != nil {
			return err
		}
		for _, kv := range s.Strings {
			if err := cw.Write(kv[:]); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// Index 按名称索引分节；重名时后者覆盖前者。
func Index(secs []Section) map[string]Section {
	m := make(map[string]Section, len(secs))
	for _, s := range secs {
		m[s.Name] = s
	}
	return m
}
