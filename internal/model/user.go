package model

// User 用户资料读模型
// 用户表由账号服务维护，本服务只做发送者资料的联表投影
type User struct {
	ID       uint64 `gorm:"primaryKey" json:"id"`
	Username string `gorm:"type:varchar(32)" json:"username"`
	Nickname string `gorm:"type:varchar(32)" json:"nickname"`
	Avatar   string `gorm:"type:varchar(255)" json:"avatar"`
}

func (User) TableName() string { return "users" }
