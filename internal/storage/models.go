package storage

import "time"

// 审计记录与测试运行共用的状态值
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// AuditRecord 记录一次工具调用及其结果，用于审计与追溯。
//
// 一条审计记录对应 Agent 的一次工具调用（例如 calculator.add、testrunner.run_test_suite）。
// 入参/输出以截断后的字符串存放，不做结构化拆分。
type AuditRecord struct {
	// ID 为自增主键（内部使用）。
	ID uint64 `gorm:"primaryKey"`
	// TraceID 串联一次调用内的全部工具调用。
	TraceID string `gorm:"size:64;index"`
	// Action 为 "<agent>.<tool>"。
	Action string `gorm:"size:128;not null;index"`
	// ParamsJSON 存放工具入参（模型给出的 JSON 字符串）。
	ParamsJSON string `gorm:"type:text"`
	// ResultJSON 存放工具输出（可能被截断）。
	ResultJSON string `gorm:"type:text"`
	// Status 为 running/success/failed。
	Status string `gorm:"size:32;not null;index"`
	// ErrorMessage 存放失败时的错误信息。
	ErrorMessage string    `gorm:"type:text"`
	StartedAt    time.Time `gorm:"index"`
	FinishedAt   time.Time `gorm:"index"`
	// CreatedAt 为写入数据库的时间，保留策略按它清理。
	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"`
}

// TestRun 记录一次测试 Agent 的完整调用 (定时触发或手动触发)
type TestRun struct {
	ID      uint64 `gorm:"primaryKey"`
	TraceID string `gorm:"size:64;index"`
	// TriggeredBy 为 cron 或 manual
	TriggeredBy string `gorm:"size:32;not null;index"`
	Status      string `gorm:"size:32;not null;index"`
	// Summary 是模型最后一条回复
	Summary        string `gorm:"type:text"`
	TestOutput     string `gorm:"type:text"`
	LLMCalls       int
	EnvInitialized bool
	ErrorMessage   string    `gorm:"type:text"`
	StartedAt      time.Time `gorm:"index"`
	FinishedAt     time.Time
	CreatedAt      time.Time `gorm:"not null;autoCreateTime;index"`
}
