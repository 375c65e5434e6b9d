package bench

import (
	"encoding/json"
	"strconv"
)

// Commands 构造 bench 命令行参数
type Commands struct {
	Binary string
}

// NewCommands 创建命令构造器
func NewCommands(binary string) Commands {
	if binary == "" {
		binary = "bench"
	}
	return Commands{Binary: binary}
}

func (c Commands) site(siteName string, args ...string) []string {
	return append([]string{c.Binary, "--site", siteName}, args...)
}

// Version bench --version，用于平台探测
func (c Commands) Version() []string {
	return []string{c.Binary, "--version"}
}

// SetGlobalConfig bench set-config -g key value
func (c Commands) SetGlobalConfig(key, value string) []string {
	return []string{c.Binary, "set-config", "-g", key, value}
}

// SetGlobalDBPort 端口按字符串写入
func (c Commands) SetGlobalDBPort(port int) []string {
	return c.SetGlobalConfig("db_port", strconv.Itoa(port))
}

// NewSite 创建站点
func (c Commands) NewSite(siteName, adminPassword, rootUser, rootPassword string) []string {
	return []string{
		c.Binary, "new-site", siteName,
		"--admin-password", adminPassword,
		"--db-root-username", rootUser,
		"--db-root-password", rootPassword,
		"--mariadb-user-host-login-scope", "%",
		"--force",
	}
}

// DropSite 删除站点（不备份）
func (c Commands) DropSite(siteName, rootPassword string) []string {
	return []string{c.Binary, "drop-site", siteName, "--force", "--no-backup", "--mariadb-root-password", rootPassword}
}

// ListApps 列出已安装应用
func (c Commands) ListApps(siteName string) []string {
	return c.site(siteName, "list-apps")
}

// InstallApp 安装应用
func (c Commands) InstallApp(siteName, app string) []string {
	return c.site(siteName, "install-app", app)
}

// UninstallApp 卸载应用
func (c Commands) UninstallApp(siteName, app string) []string {
	return c.site(siteName, "uninstall-app", app, "--yes", "--force")
}

// GetAppUpgrade 拉取应用最新代码
func (c Commands) GetAppUpgrade(app string) []string {
	return []string{c.Binary, "get-app", "--upgrade", app}
}

// Migrate 执行迁移
func (c Commands) Migrate(siteName string) []string {
	return c.site(siteName, "migrate")
}

// Backup 全量备份（含文件）
func (c Commands) Backup(siteName string) []string {
	return c.site(siteName, "backup", "--with-files")
}

// Restore 从备份文件恢复
func (c Commands) Restore(siteName, file string) []string {
	return c.site(siteName, "restore", file)
}

// Doctor 站点健康检查
func (c Commands) Doctor(siteName string) []string {
	return c.site(siteName, "doctor")
}

// Execute 在站点上下文执行方法，kwargs 以 JSON 传递
func (c Commands) Execute(siteName, method string, kwargs map[string]string) ([]string, error) {
	raw, err := json.Marshal(kwargs)
	if err != nil {
		return nil, err
	}
	return c.site(siteName, "execute", method, "--kwargs", string(raw)), nil
}

// FindNewSiteProcesses 查找正在运行的 new-site 进程
func FindNewSiteProcesses() []string {
	return []string{"pgrep", "-af", "bench .* new-site"}
}

// DiskUsage 目录占用（MB）
func DiskUsage(dir string) []string {
	return []string{"du", "-sm", dir}
}
