// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kb-admin-go/internal/config"
	"kb-admin-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// FileDocument 是知识库文件在索引中的文档结构。
type FileDocument struct {
	FileID       uint      `json:"file_id"`
	FileName     string    `json:"file_name"`
	Category     string    `json:"category"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	DepartmentID uint      `json:"department_id"`
	Uploader     string    `json:"uploader"`
	ObjectKey    string    `json:"object_key"`
	// Content 是抽取出的正文，未保存内容或抽取失败时为空。
	Content   string    `json:"content,omitempty"`
	IndexedAt time.Time `json:"indexed_at"`
}

// Client 封装 Elasticsearch 客户端和目标索引。
type Client struct {
	es        *elasticsearch.Client
	indexName string
}

// NewClient 初始化 Elasticsearch 客户端并确保索引存在。
func NewClient(esCfg config.ElasticsearchConfig) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{es: client, indexName: esCfg.IndexName}
	if err := c.createIndexIfNotExists(); err != nil {
		return nil, err
	}
	return c, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (c *Client) createIndexIfNotExists() error {
	res, err := c.es.Indices.Exists([]string{c.indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	defer res.Body.Close()
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", c.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 文件名和正文使用 ik 中文分词，其余字段用于按部门和分类过滤
	mapping := `{
		"mappings": {
			"properties": {
				"file_id": { "type": "long" },
				"file_name": {
					"type": "text",
					"analyzer": "ik_max_word",
					"search_analyzer": "ik_smart",
					"fields": { "raw": { "type": "keyword" } }
				},
				"category": { "type": "keyword" },
				"content_type": { "type": "keyword" },
				"size": { "type": "long" },
				"department_id": { "type": "long" },
				"uploader": { "type": "keyword" },
				"object_key": { "type": "keyword" },
				"content": {
					"type": "text",
					"analyzer": "ik_max_word",
					"search_analyzer": "ik_smart"
				},
				"indexed_at": { "type": "date" }
			}
		}
	}`

	createRes, err := c.es.Indices.Create(
		c.indexName,
		c.es.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", c.indexName, err)
		return err
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", c.indexName, createRes.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", c.indexName)
	return nil
}

func docID(fileID uint) string {
	return strconv.FormatUint(uint64(fileID), 10)
}

// IndexFile 写入或覆盖单个文件文档。
func (c *Client) IndexFile(ctx context.Context, doc FileDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      c.indexName,
		DocumentID: docID(doc.FileID),
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index document")
	}
	return nil
}

// DeleteFile 删除文件文档，文档不存在时视为成功。
func (c *Client) DeleteFile(ctx context.Context, fileID uint) error {
	req := esapi.DeleteRequest{
		Index:      c.indexName,
		DocumentID: docID(fileID),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		log.Errorf("从 Elasticsearch 删除文档出错: %s", res.String())
		return errors.New("failed to delete document")
	}
	return nil
}
