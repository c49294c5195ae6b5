package chunkfs

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// 合并中间产物的后缀，最终产物通过 rename 原子落盘，
// 外界永远看不到写了一半的合并文件
const mergingSuffix = ".merging.tmp"

// Storage 分片与合并产物的本地磁盘存储。
// 分片：<chunkDir>/<file_id>/<chunk_index>，按 (file_id, chunk_index) 唯一定位，
// 并发写不同分片互不冲突，重传同一分片安全覆盖。
// 合并产物：<mergeDir>/<file_id>，每个文件只写一次。
type Storage struct {
	chunkDir string
	mergeDir string
}

// NewStorage 初始化存储目录
func NewStorage(chunkDir, mergeDir string) (*Storage, error) {
	if chunkDir == "" || mergeDir == "" {
		return nil, errors.New("分片目录和合并目录不能为空")
	}
	if err := os.MkdirAll(chunkDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "创建分片目录失败: %s", chunkDir)
	}
	if err := os.MkdirAll(mergeDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "创建合并目录失败: %s", mergeDir)
	}
	return &Storage{
		chunkDir: chunkDir,
		mergeDir: mergeDir,
	}, nil
}

// ChunkPath 分片文件路径
func (s *Storage) ChunkPath(fileId string, chunkIndex int64) string {
	return filepath.Join(s.chunkDir, fileId, strconv.FormatInt(chunkIndex, 10))
}

// MergedPath 合并产物路径
func (s *Storage) MergedPath(fileId string) string {
	return filepath.Join(s.mergeDir, fileId)
}

// WriteChunk 把一个分片落盘，返回写入字节数。
// 先写临时文件再 rename 到最终名字，重传覆盖时正在读旧分片的合并协程
// 不会看到写了一半的内容。
func (s *Storage) WriteChunk(fileId string, chunkIndex int64, r io.Reader) (int64, error) {
	fileDir := filepath.Join(s.chunkDir, fileId)
	if err := os.MkdirAll(fileDir, 0755); err != nil {
		return 0, errors.Wrapf(err, "创建文件分片目录失败: %s", fileDir)
	}

	chunkPath := s.ChunkPath(fileId, chunkIndex)
	// 临时文件名带随机段，同一分片并发重传互不踩踏，最后一次 rename 胜出
	f, err := os.CreateTemp(fileDir, strconv.FormatInt(chunkIndex, 10)+".*.uploading.tmp")
	if err != nil {
		return 0, errors.Wrapf(err, "创建分片临时文件失败: %s", fileDir)
	}
	tmpPath := f.Name()

	written, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, errors.Wrapf(err, "写入分片文件失败: %s", tmpPath)
	}
	if err = f.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, errors.Wrapf(err, "关闭分片文件失败: %s", tmpPath)
	}
	if err = os.Rename(tmpPath, chunkPath); err != nil {
		os.Remove(tmpPath)
		return 0, errors.Wrapf(err, "分片文件改名失败: %s -> %s", tmpPath, chunkPath)
	}
	return written, nil
}

// Merge 按分片序号升序把所有分片拼接成最终文件。
// 分片序号编码了原始文件的字节偏移顺序，升序读取是正确性前提。
// 任何分片缺失或读写失败都会中止合并并清理中间产物，
// 全部内容落盘（Sync）之后才通过 rename 暴露最终文件。
func (s *Storage) Merge(fileId string, totalChunks int64) (string, error) {
	finalPath := s.MergedPath(fileId)
	tmpPath := finalPath + mergingSuffix

	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", errors.Wrapf(err, "创建合并临时文件失败: %s", tmpPath)
	}

	cleanup := func() {
		out.Close()
		os.Remove(tmpPath)
	}

	for i := int64(0); i < totalChunks; i++ {
		if err = s.appendChunk(out, fileId, i); err != nil {
			cleanup()
			return "", err
		}
	}

	if err = out.Sync(); err != nil {
		cleanup()
		return "", errors.Wrapf(err, "合并文件落盘失败: %s", tmpPath)
	}
	if err = out.Close(); err != nil {
		os.Remove(tmpPath)
		return "", errors.Wrapf(err, "关闭合并临时文件失败: %s", tmpPath)
	}
	if err = os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", errors.Wrapf(err, "合并文件改名失败: %s -> %s", tmpPath, finalPath)
	}
	return finalPath, nil
}

func (s *Storage) appendChunk(out *os.File, fileId string, chunkIndex int64) error {
	chunkPath := s.ChunkPath(fileId, chunkIndex)
	in, err := os.Open(chunkPath)
	if err != nil {
		return errors.Wrapf(err, "读取分片失败: %s", chunkPath)
	}
	defer in.Close()

	if _, err = io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "拼接分片失败: %s", chunkPath)
	}
	return nil
}

// RemoveChunks 删除一个文件的全部分片，合并成功或失败后都要调用以回收磁盘
func (s *Storage) RemoveChunks(fileId string) error {
	fileDir := filepath.Join(s.chunkDir, fileId)
	if err := os.RemoveAll(fileDir); err != nil {
		return errors.Wrapf(err, "删除分片目录失败: %s", fileDir)
	}
	return nil
}

// MergedExists 判断最终产物是否已经存在
func (s *Storage) MergedExists(fileId string) (bool, error) {
	_, err := os.Stat(s.MergedPath(fileId))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "检查合并产物失败: %s", fileId)
}

// ChunkCount 统计一个文件已落盘的分片数，目录不存在按 0 计
func (s *Storage) ChunkCount(fileId string) (int64, error) {
	entries, err := os.ReadDir(filepath.Join(s.chunkDir, fileId))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "读取文件分片目录失败: %s", fileId)
	}

	var count int64
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		count++
	}
	return count, nil
}

// ListChunkDirs 列出还留有分片目录的 file_id，供巡检任务使用
func (s *Storage) ListChunkDirs() ([]string, error) {
	entries, err := os.ReadDir(s.chunkDir)
	if err != nil {
		return nil, errors.Wrapf(err, "读取分片根目录失败: %s", s.chunkDir)
	}

	fileIds := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			fileIds = append(fileIds, entry.Name())
		}
	}
	return fileIds, nil
}

// RemoveStaleMergeTemps 清理合并中途残留的临时文件，只清理超过保护期的
func (s *Storage) RemoveStaleMergeTemps(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.mergeDir)
	if err != nil {
		return 0, errors.Wrapf(err, "读取合并目录失败: %s", s.mergeDir)
	}

	removed := 0
	deadline := time.Now().Add(-olderThan)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), mergingSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(deadline) {
			continue
		}
		if err = os.Remove(filepath.Join(s.mergeDir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
