package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/radiation-octopus/octopus-trade/accounts"
	"github.com/radiation-octopus/octopus-trade/contract"
	"github.com/radiation-octopus/octopus-trade/executor"
	"github.com/radiation-octopus/octopus-trade/node"
	"github.com/radiation-octopus/octopus-trade/smartaccount"
	"github.com/radiation-octopus/octopus-trade/terr"
	"github.com/radiation-octopus/octopus-trade/wallet"
	"github.com/urfave/cli/v2"
)

var (
	tokenFlag = &cli.StringFlag{
		Name:     "token",
		Usage:    "collateral token address",
		Required: true,
	}
	vaultFlag = &cli.StringFlag{
		Name:     "vault",
		Usage:    "vault address",
		Required: true,
	}
	marketFlag = &cli.StringFlag{
		Name:     "market",
		Usage:    "market maker address",
		Required: true,
	}
	amountFlag = &cli.StringFlag{
		Name:     "amount",
		Usage:    "amount in base units",
		Required: true,
	}
	receiverFlag = &cli.StringFlag{
		Name:  "receiver",
		Usage: "receiver of the vault shares (defaults to the active wallet)",
	}
	outcomeFlag = &cli.Uint64Flag{
		Name:  "outcome",
		Usage: "outcome index",
	}
	limitFlag = &cli.StringFlag{
		Name:  "limit",
		Usage: "minimum outcome tokens to buy, or maximum to sell",
		Value: "0",
	}
	ctfFlag = &cli.StringFlag{
		Name:     "ctf",
		Usage:    "conditional tokens contract address",
		Required: true,
	}
	conditionFlag = &cli.StringFlag{
		Name:     "condition",
		Usage:    "condition id",
		Required: true,
	}
)

var commandAccount = &cli.Command{
	Name:  "account",
	Usage: "sign in and print the active wallet",
	Description: `
Derives the smart-account owner from the session file (or connects the key
file) and prints the resulting wallet. The smart-account address is kept in
the data directory until signout.`,
	Flags: walletFlags,
	Action: func(ctx *cli.Context) error {
		return withNode(ctx, func(stack *node.Node) error {
			if err := connectWallet(ctx, stack); err != nil {
				return err
			}
			printView(stack.View())
			return nil
		})
	},
}

var commandStatus = &cli.Command{
	Name:  "status",
	Usage: "print the wallet restored from the data directory",
	Action: func(ctx *cli.Context) error {
		return withNode(ctx, func(stack *node.Node) error {
			printStatus(os.Stdout, stack.View(), stack.SmartAccount())
			return nil
		})
	},
}

var commandSignOut = &cli.Command{
	Name:  "signout",
	Usage: "tear down the smart account and forget the persisted address",
	Action: func(ctx *cli.Context) error {
		return withNode(ctx, func(stack *node.Node) error {
			stack.SignOut()
			fmt.Println("Signed out")
			return nil
		})
	},
}

var commandDeposit = &cli.Command{
	Name:  "deposit",
	Usage: "approve and deposit collateral into a vault",
	Flags: append([]cli.Flag{tokenFlag, vaultFlag, amountFlag, receiverFlag, waitFlag}, walletFlags...),
	Action: func(ctx *cli.Context) error {
		return trade(ctx, func(v wallet.View) ([]contract.Call, error) {
			token, err := addressFlag(ctx, tokenFlag)
			if err != nil {
				return nil, err
			}
			vault, err := addressFlag(ctx, vaultFlag)
			if err != nil {
				return nil, err
			}
			amount, err := bigFlag(ctx, amountFlag)
			if err != nil {
				return nil, err
			}
			receiver := v.Address
			if ctx.IsSet(receiverFlag.Name) {
				if receiver, err = addressFlag(ctx, receiverFlag); err != nil {
					return nil, err
				}
			}
			return contract.ApproveAndDeposit(token, vault, amount, receiver)
		})
	},
}

var commandBuy = &cli.Command{
	Name:  "buy",
	Usage: "approve collateral and buy outcome tokens",
	Flags: append([]cli.Flag{tokenFlag, marketFlag, amountFlag, outcomeFlag, limitFlag, waitFlag}, walletFlags...),
	Action: func(ctx *cli.Context) error {
		return trade(ctx, func(wallet.View) ([]contract.Call, error) {
			token, err := addressFlag(ctx, tokenFlag)
			if err != nil {
				return nil, err
			}
			market, err := addressFlag(ctx, marketFlag)
			if err != nil {
				return nil, err
			}
			amount, err := bigFlag(ctx, amountFlag)
			if err != nil {
				return nil, err
			}
			limit, err := bigFlag(ctx, limitFlag)
			if err != nil {
				return nil, err
			}
			return contract.ApproveAndBuy(token, market, amount, ctx.Uint64(outcomeFlag.Name), limit)
		})
	},
}

var commandSell = &cli.Command{
	Name:  "sell",
	Usage: "sell outcome tokens for a collateral amount",
	Flags: append([]cli.Flag{marketFlag, amountFlag, outcomeFlag, limitFlag, waitFlag}, walletFlags...),
	Action: func(ctx *cli.Context) error {
		return trade(ctx, func(wallet.View) ([]contract.Call, error) {
			market, err := addressFlag(ctx, marketFlag)
			if err != nil {
				return nil, err
			}
			amount, err := bigFlag(ctx, amountFlag)
			if err != nil {
				return nil, err
			}
			limit, err := bigFlag(ctx, limitFlag)
			if err != nil {
				return nil, err
			}
			call, err := contract.Sell(market, amount, ctx.Uint64(outcomeFlag.Name), limit)
			if err != nil {
				return nil, err
			}
			return []contract.Call{call}, nil
		})
	},
}

var commandRedeem = &cli.Command{
	Name:  "redeem",
	Usage: "redeem the positions of a resolved binary condition",
	Flags: append([]cli.Flag{ctfFlag, tokenFlag, conditionFlag, waitFlag}, walletFlags...),
	Action: func(ctx *cli.Context) error {
		return trade(ctx, func(wallet.View) ([]contract.Call, error) {
			ctf, err := addressFlag(ctx, ctfFlag)
			if err != nil {
				return nil, err
			}
			token, err := addressFlag(ctx, tokenFlag)
			if err != nil {
				return nil, err
			}
			cond := ctx.String(conditionFlag.Name)
			if len(common.FromHex(cond)) != common.HashLength {
				return nil, fmt.Errorf("invalid condition id %q", cond)
			}
			call, err := contract.Redeem(ctf, token, common.HexToHash(cond), contract.BinaryIndexSets())
			if err != nil {
				return nil, err
			}
			return []contract.Call{call}, nil
		})
	},
}

var commandImportKey = &cli.Command{
	Name:      "importkey",
	Usage:     "encrypt a hex private key into the key file",
	ArgsUsage: "<hexkeyfile>",
	Flags:     []cli.Flag{keyFileFlag, passwordFileFlag},
	Action: func(ctx *cli.Context) error {
		if ctx.Args().Len() != 1 {
			return fmt.Errorf("expected one argument, the file holding the hex private key")
		}
		conf, err := makeConfig(ctx)
		if err != nil {
			return err
		}
		target := conf.KeyFilePath()
		if target == "" {
			return fmt.Errorf("set --%s or --%s", keyFileFlag.Name, dataDirFlag.Name)
		}
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("key file %s already exists", target)
		}
		hexkey, err := os.ReadFile(ctx.Args().First())
		if err != nil {
			return err
		}
		key, err := accounts.NewKeyFromHex(strings.TrimSpace(string(hexkey)))
		if err != nil {
			return fmt.Errorf("invalid private key: %v", err)
		}
		defer key.Zero()
		if err := accounts.StoreKey(target, key, readPassword(ctx), keystore.StandardScryptN, keystore.StandardScryptP); err != nil {
			return err
		}
		fmt.Println("Address:", key.Address.Hex())
		fmt.Println("Key file:", target)
		return nil
	},
}

var commandDumpConfig = &cli.Command{
	Name:  "dumpconfig",
	Usage: "show configuration values",
	Action: func(ctx *cli.Context) error {
		conf, err := makeConfig(ctx)
		if err != nil {
			return err
		}
		out, err := conf.Dump()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

func withNode(ctx *cli.Context, fn func(*node.Node) error) error {
	conf, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	stack, err := openNode(ctx, conf)
	if err != nil {
		return err
	}
	defer stack.Close()
	return fn(stack)
}

// trade登录后针对解析出的钱包构建调用并执行，--wait为正时等待打包
func trade(ctx *cli.Context, build func(wallet.View) ([]contract.Call, error)) error {
	return withNode(ctx, func(stack *node.Node) error {
		if err := connectWallet(ctx, stack); err != nil {
			return err
		}
		view := stack.View()
		calls, err := build(view)
		if err != nil {
			return err
		}
		for i, call := range calls {
			fmt.Printf("  %d. %v\n", i+1, call)
		}
		res, err := stack.Execute(ctx.Context, calls)
		if err != nil {
			return explain(err)
		}
		printResult(res)

		if wait := ctx.Duration(waitFlag.Name); wait > 0 {
			wctx, cancel := context.WithTimeout(ctx.Context, wait)
			defer cancel()
			if err := stack.WaitResult(wctx, res); err != nil {
				return err
			}
			color.Green("Included")
		}
		return nil
	})
}

func explain(err error) error {
	var step *terr.SequentialStepError
	switch {
	case errors.As(err, &step):
		for i, h := range step.Committed {
			fmt.Printf("  step %d committed: %s\n", i+1, h)
		}
	case errors.Is(err, terr.ErrNotInitialized):
		return fmt.Errorf("%w: sign in again with --%s", err, sessionFlag.Name)
	case errors.Is(err, terr.ErrNotConnected):
		return fmt.Errorf("%w: pass --%s or --%s", err, sessionFlag.Name, keyFileFlag.Name)
	}
	return err
}

func printView(v wallet.View) {
	switch {
	case v.Mode == wallet.ModeNone:
		color.Yellow("No wallet connected")
		return
	case v.Optimistic:
		color.Yellow("%s (%s, not signed in)", v.DisplayName, v.Mode)
	default:
		color.Green("%s (%s)", v.DisplayName, v.Mode)
	}
	fmt.Println("Address:", v.Address.Hex())
	fmt.Println("Gasless:", v.Gasless)
}

// printStatus以表格输出钱包视图与智能账户状态
func printStatus(w io.Writer, v wallet.View, snap smartaccount.Snapshot) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Field", "Value"})
	table.SetAutoWrapText(false)
	table.Append([]string{"Mode", v.Mode.String()})
	if v.Mode != wallet.ModeNone {
		table.Append([]string{"Wallet", v.DisplayName})
		table.Append([]string{"Address", v.Address.Hex()})
	}
	table.Append([]string{"Gasless", fmt.Sprint(v.Gasless)})
	table.Append([]string{"Signed in", fmt.Sprint(v.Mode != wallet.ModeNone && !v.Optimistic)})
	table.Append([]string{"Smart account", snap.State.String()})
	if snap.Restored != nil {
		table.Append([]string{"Persisted", snap.Restored.Hex()})
	}
	if snap.Pending > 0 {
		table.Append([]string{"Pending calls", fmt.Sprint(snap.Pending)})
	}
	table.Render()
}

func printResult(res executor.Result) {
	if res.Mode == wallet.ModeSmartAccount {
		fmt.Println("User operation:", res.ID.Hex())
		return
	}
	for i, h := range res.Steps {
		fmt.Printf("Transaction %d: %s\n", i+1, h.Hex())
	}
}

func addressFlag(ctx *cli.Context, f *cli.StringFlag) (common.Address, error) {
	s := ctx.String(f.Name)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid --%s address %q", f.Name, s)
	}
	return common.HexToAddress(s), nil
}

func bigFlag(ctx *cli.Context, f *cli.StringFlag) (*big.Int, error) {
	s := ctx.String(f.Name)
	v, ok := math.ParseBig256(s)
	if !ok {
		return nil, fmt.Errorf("invalid --%s value %q", f.Name, s)
	}
	return v, nil
}
