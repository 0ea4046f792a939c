// octrade是交易核心的命令行客户端。它登录智能账户或连接密钥文件，
// 并按钱包解析出的路径发送市场操作。
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
)

// 发布版本的Git SHA1提交哈希(通过链接器参数设置)
var gitCommit = ""

var app = &cli.App{
	Name:    "octrade",
	Usage:   "smart-account and EOA trading client",
	Version: version(),
	Flags: []cli.Flag{
		configFileFlag,
		dataDirFlag,
		rpcFlag,
		bundlerFlag,
		paymasterFlag,
		apiKeyFlag,
		verbosityFlag,
	},
	Before: setupLogging,
	Commands: []*cli.Command{
		commandAccount,
		commandStatus,
		commandSignOut,
		commandDeposit,
		commandBuy,
		commandSell,
		commandRedeem,
		commandImportKey,
		commandDumpConfig,
	},
}

// 常用命令行参数
var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "data directory for the session database (empty keeps everything in memory)",
	}
	rpcFlag = &cli.StringFlag{
		Name:  "rpc",
		Usage: "chain JSON-RPC endpoint",
	}
	bundlerFlag = &cli.StringFlag{
		Name:  "bundler",
		Usage: "ERC-4337 bundler endpoint",
	}
	paymasterFlag = &cli.StringFlag{
		Name:  "paymaster",
		Usage: "sponsorship endpoint (defaults to the bundler)",
	}
	apiKeyFlag = &cli.StringFlag{
		Name:    "apikey",
		Usage:   "API key appended to the bundler and paymaster endpoints",
		EnvVars: []string{"OCTRADE_APIKEY"},
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "logging verbosity: 0=crit, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
	sessionFlag = &cli.StringFlag{
		Name:  "session",
		Usage: "social login session file used to derive the smart-account owner",
	}
	keyFileFlag = &cli.StringFlag{
		Name:  "keyfile",
		Usage: "key file of the externally owned account",
	}
	passwordFileFlag = &cli.StringFlag{
		Name:  "passwordfile",
		Usage: "the file that contains the password for the keyfile",
	}
	modeFlag = &cli.StringFlag{
		Name:  "mode",
		Usage: "wallet to sign in: auto, smart or eoa",
		Value: "auto",
	}
	waitFlag = &cli.DurationFlag{
		Name:  "wait",
		Usage: "wait up to this long for inclusion (0 returns after submission)",
		Value: 2 * time.Minute,
	}
)

var walletFlags = []cli.Flag{sessionFlag, keyFileFlag, passwordFileFlag, modeFlag}

func version() string {
	if gitCommit != "" && len(gitCommit) >= 8 {
		return "0.1.0-" + gitCommit[:8]
	}
	return "0.1.0"
}

func setupLogging(ctx *cli.Context) error {
	var (
		output   = io.Writer(os.Stderr)
		usecolor = (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())) && os.Getenv("TERM") != "dumb"
	)
	if usecolor {
		output = colorable.NewColorableStderr()
	}
	handler := log.NewTerminalHandlerWithLevel(output, log.FromLegacyLevel(ctx.Int(verbosityFlag.Name)), usecolor)
	log.SetDefault(log.NewLogger(handler))
	return nil
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
