package bench

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
)

const lockFileName = "bench_new_site.lock"

// Workspace 访问 bench 的 sites 目录
type Workspace struct {
	path string
}

// NewWorkspace 创建站点目录访问器
func NewWorkspace(path string) *Workspace {
	return &Workspace{path: path}
}

// SiteDir 站点目录
func (w *Workspace) SiteDir(siteName string) string {
	return filepath.Join(w.path, "sites", siteName)
}

// SiteExists 站点目录是否存在
func (w *Workspace) SiteExists(siteName string) bool {
	info, err := os.Stat(w.SiteDir(siteName))
	return err == nil && info.IsDir()
}

// LockFile 站点创建锁文件
func (w *Workspace) LockFile(siteName string) (string, bool) {
	path := filepath.Join(w.SiteDir(siteName), "locks", lockFileName)
	_, err := os.Stat(path)
	return path, err == nil
}

// RemoveLock 删除锁文件，不存在视为成功
func (w *Workspace) RemoveLock(siteName string) error {
	path, _ := w.LockFile(siteName)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// MoveSite 重命名站点目录
func (w *Workspace) MoveSite(oldName, newName string) error {
	src, dst := w.SiteDir(oldName), w.SiteDir(newName)
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("site directory %s already exists", newName)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move site directory: %w", err)
	}
	return nil
}

// FileSizeMB 文件大小（MB，两位小数），相对路径依次按 bench 目录与 sites 目录解析
func (w *Workspace) FileSizeMB(path string) float64 {
	if path == "" {
		return 0
	}
	candidates := []string{path}
	if !filepath.IsAbs(path) {
		candidates = append(candidates, filepath.Join(w.path, path), filepath.Join(w.path, "sites", path))
	}
	for _, p := range candidates {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		return math.Round(float64(info.Size())/(1024*1024)*100) / 100
	}
	return 0
}
