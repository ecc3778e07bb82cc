package contract

import "errors"

// 书籍容器与工具链共享的最小错误分类。
// 调用方通过 errors.Is 判定类别；具体位置/取值信息由 fmt.Errorf("%w: ...") 附带。
var (
	// ErrOutOfBounds: 游标读写越过缓冲区边界（致命，终止当前加载/保存）。
	ErrOutOfBounds = errors.New("out of bounds")
	// ErrFormat: 非预期控制字节、不可表示字符、文本中出现保留控制字节等格式错误（致命）。
	ErrFormat = errors.New("format error")
	// ErrSizeMismatch: 解压后字节数与期望不一致。宽松模式下仅告警，不中断。
	ErrSizeMismatch = errors.New("size mismatch")
	// ErrInvariantViolation: 领域不变量违例（页面实际写出长度与预测不符、空书追加页等）。
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvalidInput: 调用方输入不合法（命令参数、CSV 行结构等）。
	ErrInvalidInput = errors.New("invalid input")
)
