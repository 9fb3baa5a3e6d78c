package consts

const (
	MimePrefixImage = "image"
	MimePrefixVideo = "video"
)

const (
	// DefaultPageSize 历史消息默认分页大小
	DefaultPageSize = 20
	// MaxPageSize 历史消息分页上限
	MaxPageSize = 100
)
