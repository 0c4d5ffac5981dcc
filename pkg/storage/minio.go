package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"toz-go/internal/config"
	"toz-go/pkg/log"
)

// MinioMirror 把渲染好的页面图片复制到 MinIO，按 <folderId>/<图片名> 组织对象。
type MinioMirror struct {
	client *minio.Client
	bucket string
}

// NewMinioMirror 初始化 MinIO 客户端并确保存储桶存在。
func NewMinioMirror(ctx context.Context, cfg config.MinIOConfig) (*MinioMirror, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
	}

	log.Infof("MinIO 镜像初始化成功, bucket=%s", cfg.BucketName)
	return &MinioMirror{client: client, bucket: cfg.BucketName}, nil
}

func (m *MinioMirror) objectName(folderID, localPath string) string {
	return folderID + "/" + filepath.Base(localPath)
}

// PutPage 上传一张页面图片。
func (m *MinioMirror) PutPage(ctx context.Context, folderID, localPath string) error {
	_, err := m.client.FPutObject(ctx, m.bucket, m.objectName(folderID, localPath), localPath, minio.PutObjectOptions{
		ContentType: "image/png",
	})
	return err
}

// RemoveFolder 删除 folderID 前缀下的所有对象。
func (m *MinioMirror) RemoveFolder(ctx context.Context, folderID string) error {
	objects := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    folderID + "/",
		Recursive: true,
	})
	for obj := range objects {
		if obj.Err != nil {
			return obj.Err
		}
		if err := m.client.RemoveObject(ctx, m.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return err
		}
	}
	return nil
}
