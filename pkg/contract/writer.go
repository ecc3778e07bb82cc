package contract

import (
	"context"
	"io"
)

// Writer: 将序列化结果持久化到目标介质。
// 约束：
//  1. 同一 ArtifactID 单写者；
//  2. 按字节透传，不读取/修改业务内容；
//  3. 要么完整替换目标，要么保持旧文件不变（原子实现）；
//  4. ctx 取消需尽快返回；错误直接上抛（不做重试）。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}
