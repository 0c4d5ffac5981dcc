// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"time"

	"gorm.io/gorm"
)

// Document 定义了 documents 表的 ORM 模型。
// 一条记录对应一个通过校验的上传文件，创建后不再修改。
type Document struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	FileName  string `gorm:"type:varchar(255);not null" json:"fileName"`
	Uploader  string `gorm:"type:varchar(255);not null" json:"uploader"`
	PageCount int    `gorm:"not null;default:0" json:"pageCount"`
	// FolderID 在所有记录（包含已软删除的）中唯一，对应存储根目录下的一个子目录。
	FolderID  string         `gorm:"type:varchar(255);not null;uniqueIndex" json:"folderId"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}
