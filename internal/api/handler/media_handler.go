package handler

import (
	"CampusLink/internal/api/dto"
	"CampusLink/internal/model"
	"CampusLink/internal/pkg/consts"
	"CampusLink/internal/pkg/minio"
	"CampusLink/internal/pkg/redis"
	"CampusLink/internal/pkg/response"
	"CampusLink/internal/pkg/util"
	"CampusLink/internal/service"
	log "log/slog"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type MediaHandler struct{}

func NewMediaHandler() *MediaHandler {
	return &MediaHandler{}
}

// Upload 聊天附件上传
// 上传成功后登记到临时元数据表，消息发送时摘除，超期未引用由清理任务回收。
func (s *MediaHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	reader, err := file.Open()
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	defer func() { _ = reader.Close() }()

	contentType, err := util.GetSafeContentType(reader)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	var msgType string
	switch {
	case strings.HasPrefix(contentType, consts.MimePrefixImage):
		msgType = model.MsgTypeImage
	case strings.HasPrefix(contentType, consts.MimePrefixVideo):
		msgType = model.MsgTypeVideo
	default:
		msgType = model.MsgTypeFile
	}

	ext := path.Ext(file.Filename)
	objectName := time.Now().Format("2006/01/02/") + uuid.NewString() + ext

	fileKey, err := minio.UploadFile(c.Request.Context(), objectName, reader, file.Size, contentType)
	if err != nil {
		log.ErrorContext(c, "MinIO upload failed", "err", err)
		response.Error(c, service.UnExpectedError)
		return
	}

	meta := dto.MediaTempMetadata{
		MimeType:  contentType,
		Size:      file.Size,
		CreatedAt: time.Now().Unix(),
	}
	metaBytes, _ := json.Marshal(meta)
	_ = redis.HSet(c.Request.Context(), consts.MediaTempKey, fileKey, string(metaBytes))

	log.InfoContext(c, "media upload success and metadata cached", "fileKey", fileKey, "type", contentType)
	response.Success(c, dto.MediaUploadResp{
		FileKey: fileKey,
		FileURL: minio.GetPublicURL(fileKey),
		MsgType: msgType,
	})
}
