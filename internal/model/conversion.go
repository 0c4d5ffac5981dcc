package model

// ConversionStatus 表示一个文档页面栅格化任务的状态。
type ConversionStatus string

const (
	ConversionUnknown    ConversionStatus = "unknown"
	ConversionPending    ConversionStatus = "pending"
	ConversionConverting ConversionStatus = "converting"
	ConversionDone       ConversionStatus = "done"
	ConversionFailed     ConversionStatus = "failed"
)

// Valid 报告 s 是否是 worker 可以写入的状态，ConversionUnknown 不算。
func (s ConversionStatus) Valid() bool {
	switch s {
	case ConversionPending, ConversionConverting, ConversionDone, ConversionFailed:
		return true
	}
	return false
}
