package consts

const (
	// ChatRoomKey 房间推送频道前缀，后接房间 ID
	// 频道上只投递 messages 表的插入事件
	ChatRoomKey = "chat:room:"

	// MediaTempKey 未被消息引用的临时附件哈希
	MediaTempKey = "media:temp"
)
