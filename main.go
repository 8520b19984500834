package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/crate-radar/crate-radar/internal/cachestore"
	"github.com/crate-radar/crate-radar/internal/checker"
	"github.com/crate-radar/crate-radar/internal/config"
	"github.com/crate-radar/crate-radar/internal/logging"
	"github.com/crate-radar/crate-radar/internal/manifest"
	"github.com/crate-radar/crate-radar/internal/registry"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath   string
	manifestPath string
	force        bool
	prerelease   bool
	checkOnly    bool
	showVersion  bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
// 0 全部最新；1 启动失败；3 存在过期或解析失败的依赖。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	runID := uuid.NewString()

	if opts.checkOnly {
		fields := logging.RunFields("check_config", opts.manifestPath, runID)
		fields["registry"] = cfg.RegistryURL
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	deps, err := manifest.Load(opts.manifestPath)
	if err != nil {
		fmt.Fprintf(stdErr, "读取依赖清单失败: %v\n", err)
		return 1
	}
	if len(deps) == 0 {
		fmt.Fprintln(stdOut, "清单中没有注册表依赖")
		return 0
	}

	// 启动顺序：配置 → 日志 → 缓存库（单写 worker）→ 共享 HTTP client →
	// 解析器 → 受限并发的检查运行。
	store, err := cachestore.Open(cfg.CachePath, cfg.BatchWindow.DurationValue(), logger)
	if err != nil {
		fmt.Fprintf(stdErr, "打开缓存数据库失败: %v\n", err)
		return 1
	}

	client := registry.NewIndexClient(cfg.UpstreamTimeout.DurationValue())
	resolver := registry.NewResolver(client, store, cfg.RegistryURL, logger)

	fields := logging.RunFields("startup", opts.manifestPath, runID)
	fields["crates"] = len(deps)
	fields["registry"] = cfg.RegistryURL
	fields["force"] = opts.force
	logger.WithFields(fields).Info("开始检查依赖")

	results := checker.Run(context.Background(), deps, resolver, logger, checker.Options{
		Concurrency:     int64(cfg.Concurrency),
		Force:           opts.force,
		AllowPrerelease: opts.prerelease,
	})

	// 先关闭缓存库：等待 worker 提交最后一批写入后再输出报告。
	if err := store.Close(); err != nil {
		logger.WithError(err).Warn("关闭缓存数据库失败")
	}

	outdated, failed := checker.Report(stdOut, results)
	if outdated > 0 || failed > 0 {
		return 3
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("crate-radar", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag   string
		manifestFlag string
		force        bool
		prerelease   bool
		checkOnly    bool
		showVer      bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 CRATE_RADAR_CONFIG 覆盖）")
	fs.StringVar(&manifestFlag, "manifest", "Cargo.toml", "依赖清单路径")
	fs.BoolVar(&force, "force", false, "跳过缓存新鲜度检查，总是请求注册表")
	fs.BoolVar(&prerelease, "prerelease", false, "允许预发布版本参与最新版本选择")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("CRATE_RADAR_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:   path,
		manifestPath: manifestFlag,
		force:        force,
		prerelease:   prerelease,
		checkOnly:    checkOnly,
		showVersion:  showVer,
	}, nil
}
