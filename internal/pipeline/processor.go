// Package pipeline 定义了文件事件的索引流程。
package pipeline

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"kb-admin-go/pkg/es"
	"kb-admin-go/pkg/log"
	"kb-admin-go/pkg/tasks"
)

// maxContentRunes 限制写入索引的正文长度。
const maxContentRunes = 32000

// DocumentIndexer 是搜索索引的写入端，由 es.Client 实现。
type DocumentIndexer interface {
	IndexFile(ctx context.Context, doc es.FileDocument) error
	DeleteFile(ctx context.Context, fileID uint) error
}

// ObjectReader 读取已保存的文件内容。
type ObjectReader interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// TextExtractor 从文件内容中抽取纯文本，由 tika.Client 实现。
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, fileName string) (string, error)
}

// Processor 消费文件事件，把知识库的变化同步到搜索索引。
type Processor struct {
	indexer   DocumentIndexer
	objects   ObjectReader
	extractor TextExtractor
	now       func() time.Time
}

// NewProcessor 创建一个新的 Processor 实例。objects 或 extractor 为 nil 时只索引元数据。
func NewProcessor(indexer DocumentIndexer, objects ObjectReader, extractor TextExtractor) *Processor {
	return &Processor{indexer: indexer, objects: objects, extractor: extractor, now: time.Now}
}

// Handle 实现 kafka.EventHandler。
func (p *Processor) Handle(ctx context.Context, event tasks.FileEvent) error {
	switch event.Type {
	case tasks.EventFileUploaded, tasks.EventFileUpdated:
		// 更新事件同样写入完整文档，索引中不存在时也能补齐
		return p.index(ctx, event)
	case tasks.EventFileDeleted:
		log.Infof("[Processor] 删除索引, dept: %d, file: %d", event.DepartmentID, event.FileID)
		if err := p.indexer.DeleteFile(ctx, event.FileID); err != nil {
			return fmt.Errorf("删除索引失败: %w", err)
		}
		return nil
	default:
		// 未知事件直接丢弃，避免阻塞分区
		log.Warnf("[Processor] 未知的事件类型: %s, key: %s", event.Type, event.Key())
		return nil
	}
}

func (p *Processor) index(ctx context.Context, event tasks.FileEvent) error {
	log.Infof("[Processor] 开始索引文件, dept: %d, file: %d, name: %s", event.DepartmentID, event.FileID, event.FileName)
	doc := es.FileDocument{
		FileID:       event.FileID,
		FileName:     event.FileName,
		Category:     event.Category,
		ContentType:  event.ContentType,
		Size:         event.Size,
		DepartmentID: event.DepartmentID,
		Uploader:     event.Uploader,
		ObjectKey:    event.ObjectKey,
		Content:      p.extract(ctx, event),
		IndexedAt:    p.now(),
	}
	if err := p.indexer.IndexFile(ctx, doc); err != nil {
		log.Errorf("[Processor] 索引文件失败, file: %d, error: %v", event.FileID, err)
		return fmt.Errorf("索引文件失败: %w", err)
	}
	log.Infof("[Processor] 文件索引完成, file: %d, 正文长度: %d", event.FileID, utf8.RuneCountInString(doc.Content))
	return nil
}

// extract 下载并抽取正文，任何失败都只记录日志，文件仍以元数据索引。
func (p *Processor) extract(ctx context.Context, event tasks.FileEvent) string {
	if event.ObjectKey == "" || p.objects == nil || p.extractor == nil {
		return ""
	}
	data, err := p.objects.GetObject(ctx, event.ObjectKey)
	if err != nil {
		log.Warnf("[Processor] 读取文件内容失败, key: %s, error: %v", event.ObjectKey, err)
		return ""
	}
	if len(data) == 0 {
		return ""
	}
	text, err := p.extractor.ExtractText(ctx, data, event.FileName)
	if err != nil {
		log.Warnf("[Processor] 提取文本失败, file: %s, error: %v", event.FileName, err)
		return ""
	}
	if utf8.RuneCountInString(text) > maxContentRunes {
		text = string([]rune(text)[:maxContentRunes])
	}
	return text
}
