package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	NotFound            = 404
	InternalServerError = 500
)

var (
	ErrParamInvalid      = errors.New("参数错误")
	ErrUnauthenticated   = errors.New("未登录或登录已过期")
	ErrRoomNotFound      = errors.New("房间不存在")
	ErrNotRoomMember     = errors.New("不是房间成员")
	ErrNotGroupRoom      = errors.New("不是群聊房间")
	ErrTargetUserInvalid = errors.New("目标用户无效")
	ErrMessageNotFound   = errors.New("消息不存在")
	ErrMsgTypeInvalid    = errors.New("不支持的消息类型")
	ErrFileNotSupported  = errors.New("不支持的文件类型")
	UnExpectedError      = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:      BadRequest,
	ErrUnauthenticated:   Unauthorized,
	ErrRoomNotFound:      NotFound,
	ErrNotRoomMember:     Unauthorized,
	ErrNotGroupRoom:      BadRequest,
	ErrTargetUserInvalid: BadRequest,
	ErrMessageNotFound:   NotFound,
	ErrMsgTypeInvalid:    BadRequest,
	ErrFileNotSupported:  BadRequest,
	UnExpectedError:      InternalServerError,
}
