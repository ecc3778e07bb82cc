package contract

// FileID: 逻辑文件 ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// ArtifactID: 与 FileID 等价的持久化工件标识（语义别名）。
type ArtifactID = FileID
