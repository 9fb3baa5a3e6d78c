package util

import (
	"io"
	"mime/multipart"
	"net/http"
)

// GetSafeContentType 嗅探文件头部字节判定真实 MIME，不信任客户端声明
func GetSafeContentType(file multipart.File) (string, error) {
	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return "", err
	}

	// 嗅探后重置读取位置，后续上传从头读
	if _, err = file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	return http.DetectContentType(buf[:n]), nil
}
