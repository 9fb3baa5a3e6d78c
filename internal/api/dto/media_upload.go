package dto

// MediaTempMetadata 临时附件元数据（Redis Hash 存储）
type MediaTempMetadata struct {
	MimeType  string `json:"mime_type"`
	Size      int64  `json:"size"`
	CreatedAt int64  `json:"created_at"`
}

// MediaUploadResp 附件上传响应
type MediaUploadResp struct {
	FileKey string `json:"file_key"`
	FileURL string `json:"file_url"`
	MsgType string `json:"msg_type"` // 按 MIME 推断出的消息类型
}
