package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/radiation-octopus/octopus-trade/accounts"
	"github.com/radiation-octopus/octopus-trade/identity"
	"github.com/radiation-octopus/octopus-trade/node"
	"github.com/urfave/cli/v2"
)

// makeConfig加载配置文件(如有)，再应用命令行覆盖
func makeConfig(ctx *cli.Context) (*node.Config, error) {
	conf := node.DefaultConfig
	if file := ctx.String(configFileFlag.Name); file != "" {
		loaded, err := node.LoadConfig(file)
		if err != nil {
			return nil, err
		}
		conf = *loaded
	}
	if ctx.IsSet(dataDirFlag.Name) {
		conf.DataDir = ctx.String(dataDirFlag.Name)
	}
	if ctx.IsSet(rpcFlag.Name) {
		conf.RPCURL = ctx.String(rpcFlag.Name)
	}
	if ctx.IsSet(bundlerFlag.Name) {
		conf.BundlerURL = ctx.String(bundlerFlag.Name)
	}
	if ctx.IsSet(paymasterFlag.Name) {
		conf.PaymasterURL = ctx.String(paymasterFlag.Name)
	}
	if ctx.IsSet(apiKeyFlag.Name) {
		conf.APIKey = ctx.String(apiKeyFlag.Name)
	}
	if ctx.IsSet(keyFileFlag.Name) {
		conf.KeyFile = ctx.String(keyFileFlag.Name)
	}
	return &conf, nil
}

// openNode拨号后端，有密钥文件时挂上提供者，然后启动节点
func openNode(ctx *cli.Context, conf *node.Config) (*node.Node, error) {
	backends, err := node.DialBackends(ctx.Context, conf)
	if err != nil {
		return nil, err
	}
	if mode := ctx.String(modeFlag.Name); mode != "smart" {
		if keyfile := conf.KeyFilePath(); keyfile != "" {
			if _, err := os.Stat(keyfile); err == nil {
				key, err := accounts.LoadKey(keyfile, readPassword(ctx))
				var auth *accounts.AuthNeededError
				if errors.As(err, &auth) {
					backends.Close()
					return nil, fmt.Errorf("key file %s is encrypted, pass --%s", keyfile, passwordFileFlag.Name)
				}
				if err != nil {
					backends.Close()
					return nil, fmt.Errorf("failed to load key file %s: %v", keyfile, err)
				}
				kp := accounts.NewKeyProvider(key, accounts.URL{Scheme: accounts.KeyStoreScheme, Path: keyfile}, backends.EthClient())
				backends.Provider = kp
				backends.OnClose(func() { kp.Close() })
			}
		}
	}
	stack, err := node.New(conf, backends)
	if err != nil {
		backends.Close()
		return nil, err
	}
	if err := stack.Start(); err != nil {
		return nil, err
	}
	return stack, nil
}

// connectWallet按--mode登录。auto模式下会话文件选择智能账户，同时连接密钥文件，
//智能账户不可用时仍可走EOA路径。
func connectWallet(ctx *cli.Context, stack *node.Node) error {
	mode := ctx.String(modeFlag.Name)
	switch mode {
	case "auto", "smart", "eoa":
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
	if mode != "eoa" {
		if file := ctx.String(sessionFlag.Name); file != "" {
			if err := signIn(ctx.Context, stack, file); err != nil {
				return err
			}
		} else if mode == "smart" {
			return fmt.Errorf("--%s is required in smart mode", sessionFlag.Name)
		}
	}
	if mode != "smart" {
		_, err := stack.ConnectEOA(ctx.Context)
		switch {
		case errors.Is(err, node.ErrNoProvider):
			if mode == "eoa" {
				return fmt.Errorf("--%s is required in eoa mode", keyFileFlag.Name)
			}
		case err != nil:
			return err
		}
	}
	return nil
}

func signIn(ctx context.Context, stack *node.Node, file string) error {
	sess, err := identity.LoadSession(file)
	if err != nil {
		return fmt.Errorf("failed to read session file: %v", err)
	}
	d := identity.SocialDeriver(accounts.URL{Scheme: accounts.SocialScheme, Path: file}, sess)
	addr, err := stack.SignIn(ctx, d)
	if err != nil {
		return err
	}
	log.Info("Signed in", "account", addr)
	return nil
}

func readPassword(ctx *cli.Context) string {
	file := ctx.String(passwordFileFlag.Name)
	if file == "" {
		return ""
	}
	content, err := os.ReadFile(file)
	if err != nil {
		log.Crit("Failed to read password file", "file", file, "err", err)
	}
	return strings.TrimRight(string(content), "\r\n")
}
