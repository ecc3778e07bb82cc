package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	cfgpkg "baktt/internal/config"
	"baktt/internal/diag"
	"baktt/internal/pipeline"
)

var pipelineRun = pipeline.Run

// 用法：baktt [flags] <command> [flags] [inputs...]
// 旗标须写在第一个输入之前；输入之后出现以 - 开头的参数时退出码为 3。
// export/import 的最后一个位置参数为 CSV 路径（至少两个位置参数时）。
// 退出码：0 成功；1 运行期错误；3 配置/用法错误。
func main() {
	os.Exit(run())
}

func run() int {
	start := time.Now()
	corrID := uuid.NewString()
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")
	logLevel := "info"
	// 先占位默认，稍后在解析/合并配置后重建 logger 以使用最终 level
	logger := diag.NewLogger(corrID, logLevel)
	var (
		flagConfig   string
		flagInitDir  string
		flagOut      string
		flagCodec    string
		flagExt      string
		flagLogLevel string
		flagDecode   bool
		flagStrict   bool
		flagSize     int
		flagStatus   bool
	)
	flag.StringVar(&flagConfig, "config", "", "配置文件路径（JSON）；缺省读取 ./config.json（若存在）")
	flag.StringVar(&flagInitDir, "init-config", "", "在指定目录生成默认配置 config.json 和 .env 模板（若已存在则跳过，不覆盖）；不带值时默认当前目录")
	flag.StringVar(&flagOut, "out", "", "输出目录（覆盖 options.writer.output_dir）")
	flag.StringVar(&flagCodec, "codec", "", "转写表名称：ru | ascii（覆盖配置）")
	flag.StringVar(&flagExt, "ext", "", "遍历目录时选取的扩展名（覆盖配置，默认 .BOK）")
	flag.StringVar(&flagLogLevel, "log-level", "", "日志级别：debug | info | warn | error")
	flag.BoolVar(&flagDecode, "decode", false, "display 时按转写表逆映射文本")
	flag.BoolVar(&flagStrict, "strict", false, "rle-unpack：解压尺寸不一致时报错")
	// size 为 -1 表示未覆盖
	flag.IntVar(&flagSize, "size", -1, "rle-unpack：期望解压尺寸（字节）")
	flag.BoolVar(&flagStatus, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	flag.Usage = usage
	normalizeInitArg()
	if err := flag.CommandLine.Parse(os.Args[1:]); err != nil {
		return 3
	}

	// --init-config: 生成模板并退出
	if initDir := strings.TrimSpace(flagInitDir); initDir != "" {
		if err := os.MkdirAll(initDir, 0o755); err != nil {
			fprintf(os.Stderr, "生成默认配置失败: %v\n", err)
			logger.Error("cli", string(diag.Classify(err)), "first error", &start)
			return 3
		}
		cfgPath := filepath.Join(initDir, "config.json")
		if err := writeConfig(cfgPath, cfgpkg.DefaultTemplateConfig()); err != nil {
			fprintf(os.Stderr, "生成默认配置失败: %v\n", err)
			logger.Error("cli", string(diag.Classify(err)), "first error", &start)
			return 3
		}
		if err := writeDotEnv(filepath.Join(initDir, ".env")); err != nil {
			fprintf(os.Stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
		}
		return 0
	}

	// 子命令；命令之后仍可出现旗标
	if flag.NArg() == 0 {
		usage()
		return 3
	}
	cmd, err := pipeline.ParseCommand(flag.Arg(0))
	if err != nil {
		fprintf(os.Stderr, "%v\n", err)
		usage()
		return 3
	}
	if err := flag.CommandLine.Parse(flag.Args()[1:]); err != nil {
		return 3
	}
	args := flag.Args()
	// 旗标只能写在第一个输入之前；之后的 -x 视为误用而非路径
	for _, a := range args {
		if strings.HasPrefix(a, "-") && a != "-" {
			fprintf(os.Stderr, "旗标 %s 须写在输入之前（以 - 开头的路径请写作 ./%s）\n", a, a)
			usage()
			return 3
		}
	}

	// JSON 配置（文件或 ENV: BAKTT_CONFIG_JSON）
	var cfgJSON []byte
	if s := os.Getenv("BAKTT_CONFIG_JSON"); s != "" {
		cfgJSON = []byte(s)
	}
	if flagConfig == "" {
		flagConfig = os.Getenv("BAKTT_CONFIG_FILE")
	}
	if flagConfig == "" {
		if _, err := os.Stat("config.json"); err == nil {
			flagConfig = "config.json"
		}
	}

	cfg := cfgpkg.Defaults()
	if flagConfig != "" || len(cfgJSON) > 0 {
		base, err := cfgpkg.LoadJSON(flagConfig, cfgJSON)
		if err != nil {
			fprintf(os.Stderr, "配置解析失败: %v\n", err)
			logger.Error("cli", string(diag.Classify(err)), "first error", &start)
			return 3
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		fprintf(os.Stderr, "环境变量解析失败: %v\n", err)
		logger.Error("cli", string(diag.Classify(err)), "first error", &start)
		return 3
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	// CLI 覆盖
	var overCLI cfgpkg.Config
	if cmd.NeedsCSV() && len(args) >= 2 {
		overCLI.CSV = args[len(args)-1]
		args = args[:len(args)-1]
	}
	overCLI.Inputs = args
	overCLI.Components.Codec = flagCodec
	overCLI.Ext = flagExt
	overCLI.Logging.Level = flagLogLevel
	overCLI.Decode = flagDecode
	overCLI.RLE.Strict = flagStrict
	if flagSize >= 0 {
		overCLI.RLE.ExpectedSize = &flagSize
	}
	cfg = cfgpkg.Merge(cfg, overCLI)
	if flagOut != "" {
		if cfg, err = cfgpkg.WithOutputDir(cfg, flagOut); err != nil {
			fprintf(os.Stderr, "配置校验失败: %v\n", err)
			return 3
		}
	}

	if err := cfgpkg.Validate(cfg, cmd); err != nil {
		fprintf(os.Stderr, "配置校验失败: %v\n", err)
		// 提示打印有效配置，便于诊断
		_ = dumpConfig(cfg)
		logger.Error("cli", string(diag.Classify(err)), "first error", &start)
		return 3
	}

	// 使用最终配置中的日志级别重建 logger
	if strings.TrimSpace(cfg.Logging.Level) != "" {
		logLevel = strings.TrimSpace(cfg.Logging.Level)
	}
	logger = diag.NewLoggerTo(corrID, logLevel, diag.NewRotatingFile(cfg.Logging.Dir, corrID, cfg.Logging.MaxBytes))

	if err := preflightCheckOutputDir(cfg, cmd); err != nil {
		fprintf(os.Stderr, "输出目录不可写或无法创建: %v\n", err)
		logger.Error("cli", string(diag.Classify(err)), "first error", &start)
		return 3
	}

	comp, set, err := cfgpkg.Assemble(cfg, cmd)
	if err != nil {
		fprintf(os.Stderr, "装配失败: %v\n", err)
		logger.Error("cli", string(diag.Classify(err)), "first error", &start)
		return 3
	}

	// 终端信息提示（非日志）：按 CLI 启用，默认开启
	term := diag.NewTerminal(os.Stderr, flagStatus)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)
	codecName := cfg.Components.Codec
	term.RunStart(string(cmd), codecName)

	logger.DebugStart("config", "effective", "", map[string]string{
		"command":      string(cmd),
		"inputs_count": strconv.Itoa(len(cfg.Inputs)),
		"csv":          cfg.CSV,
		"ext":          cfg.Ext,
		"reader":       cfg.Components.Reader,
		"writer":       cfg.Components.Writer,
		"codec":        codecName,
		"output_dir":   cfgpkg.OutputDir(cfg),
		"rle_mode":     set.RLEMode.String(),
		"rle_size":     strconv.Itoa(set.ExpectedSize),
	})

	t := logger.Start("pipeline", string(cmd))
	if err := pipelineRun(context.Background(), comp, set, logger); err != nil {
		code := string(diag.Classify(err))
		logger.Error("pipeline", code, "first error", &start)
		diag.IncOp("pipeline", "error", "error")
		if code != string(diag.CodeUnknown) {
			diag.IncError("pipeline", code)
		}
		if !errors.Is(err, context.Canceled) {
			fprintf(os.Stderr, "运行失败: %v\n", err)
		}
		term.RunFinish(false, time.Since(start))
		return 1
	}
	t.Finish(string(cmd), 0)
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())
	term.RunFinish(true, time.Since(start))
	return 0
}

func usage() {
	w := flag.CommandLine.Output()
	fmt.Fprintf(w, "用法: baktt [flags] <command> [inputs...]\n\n命令:\n")
	fmt.Fprintf(w, "  display BOOK|DIR...        逐页打印段落文本\n")
	fmt.Fprintf(w, "  copy    BOOK|DIR...        读入并重新写出（往返校验）\n")
	fmt.Fprintf(w, "  export  BOOK|DIR... CSV    导出段落文本到 CSV\n")
	fmt.Fprintf(w, "  import  BOOK|DIR... CSV    以 CSV 译文替换段落并写出\n")
	fmt.Fprintf(w, "  rle-pack   FILE...         RLE 压缩，输出 NAME.rle\n")
	fmt.Fprintf(w, "  rle-unpack FILE...         RLE 解压，输出 NAME.raw\n\n")
	fmt.Fprintf(w, "旗标须写在第一个输入之前；以 - 开头的路径请写作 ./-name。\n\n旗标:\n")
	flag.PrintDefaults()
}

func fprintf(w *os.File, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, _ = os.Stderr.Write(append([]byte("有效配置:\n"), b...))
	_, _ = os.Stderr.Write([]byte("\n"))
	return nil
}

func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(b, '\n'))
		return err
	}
	// 不覆盖已存在文件
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return err
	}
	_, _ = f.Write([]byte("\n"))
	return nil
}

// loadDotEnv 读取简单的 .env 文件格式并注入进程环境。
// 规则：
// - 忽略不存在的文件；无法读取时返回错误（但调用处可忽略）。
// - 跳过空行与以 # 开头的行；支持可选的前缀 "export "。
// - 仅按首个 '=' 分割；value 去首尾空白，成对引号去除，双引号内处理少量转义。
// - 不覆盖已存在的环境变量（保持系统/调用者优先）。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" {
			continue
		}
		if len(val) >= 2 {
			if (val[0] == '\'' && val[len(val)-1] == '\'') || (val[0] == '"' && val[len(val)-1] == '"') {
				quoted := val[0]
				val = val[1 : len(val)-1]
				if quoted == '"' {
					val = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r", `\"`, `"`, `\\`, `\`).Replace(val)
				}
			}
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

// normalizeInitArg: 允许 --init-config 在未提供路径值时采用默认值当前目录 "."。
//
//	--init-config                => 等价于 --init-config .
//	--init-config=out
//	--init-config out
func normalizeInitArg() {
	args := os.Args
	if len(args) <= 1 {
		return
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args[0])
	for i := 1; i < len(args); i++ {
		a := args[i]
		out = append(out, a)
		if a == "--init-config" || a == "-init-config" {
			if i == len(args)-1 || strings.HasPrefix(args[i+1], "-") {
				out = append(out, ".")
			}
		}
	}
	os.Args = out
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
func writeDotEnv(path string) error {
	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		return nil
	} else if err != nil && !os.IsNotExist(err) {
		return err
	}
	var b strings.Builder
	b.WriteString("# baktt .env 模板（由 --init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > JSON\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源（可二选一）\n")
	b.WriteString("BAKTT_CONFIG_FILE=\n")
	b.WriteString("BAKTT_CONFIG_JSON=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{"INPUTS", "CSV", "EXT", "DECODE", "LOG_LEVEL", "LOG_DIR", "LOG_MAX_BYTES", "RLE_STRICT", "RLE_EXPECTED_SIZE"} {
		b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 组件选择\n")
	for _, k := range []string{"READER", "WRITER", "CODEC"} {
		b.WriteString(cfgpkg.EnvPrefix + "COMPONENTS_" + k + "=\n")
	}
	b.WriteString("\n# 组件选项（原样 JSON）\n")
	for _, k := range []string{"READER", "WRITER", "CODEC"} {
		b.WriteString(cfgpkg.EnvPrefix + "OPTIONS_" + k + "_JSON=\n")
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}

// preflightCheckOutputDir: 使用文件系统 Writer 时，启动前检查输出目录可写性。
// 需要写出书籍的命令检查 output_dir；export 检查 CSV 所在目录。
func preflightCheckOutputDir(cfg cfgpkg.Config, cmd pipeline.Command) error {
	writerName := strings.TrimSpace(cfg.Components.Writer)
	if writerName == "" {
		writerName = cfgpkg.Defaults().Components.Writer
	}
	if writerName != "fs" {
		return nil
	}
	var dirs []string
	if cmd.NeedsWriter() {
		dirs = append(dirs, cfgpkg.OutputDir(cfg))
	}
	if cmd == pipeline.CmdExport {
		dirs = append(dirs, filepath.Dir(cfg.CSV))
	}
	for _, d := range dirs {
		if err := checkDirWritable(d); err != nil {
			return err
		}
	}
	return nil
}

// checkDirWritable:
// - 目录已存在：尝试创建并删除临时文件；
// - 目录不存在：检查父目录可写性（创建并删除临时目录）。
func checkDirWritable(dir string) error {
	if st, err := os.Stat(dir); err == nil && st.IsDir() {
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
		return nil
	} else if err == nil {
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	} else if !os.IsNotExist(err) {
		return err
	}
	parent := filepath.Dir(dir)
	if parent == dir {
		return fmt.Errorf("无法确定父目录: %s", dir)
	}
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("父路径不是目录: %s", parent)
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	_ = os.RemoveAll(tmpd)
	return nil
}
