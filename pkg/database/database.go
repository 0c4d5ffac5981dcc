// Package database 负责创建数据库连接并执行表结构迁移。
package database

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"toz-go/internal/config"
	"toz-go/internal/model"
	"toz-go/pkg/log"
)

// Open 按配置的 driver 打开 gorm 连接，支持 sqlite 与 mysql。
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.Driver == "mysql" {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		// sqlite 只有一个写者
		sqlDB.SetMaxOpenConns(1)
	}

	log.Infof("database connected successfully, driver=%s", cfg.Driver)
	return db, nil
}

// Migrate 根据模型自动建表或补齐字段。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Document{})
}
