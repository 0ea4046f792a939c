package contract

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Approve 授权spender使用token
func Approve(token, spender common.Address, amount *big.Int) (Call, error) {
	return NewCall(token, ERC20ABI, "approve", spender, amount)
}

// Deposit 向ERC-4626金库存入资产
func Deposit(vault common.Address, assets *big.Int, receiver common.Address) (Call, error) {
	return NewCall(vault, VaultABI, "deposit", assets, receiver)
}

// Buy 在FPMM市场买入某个结果的份额
func Buy(market common.Address, investment *big.Int, outcomeIndex uint64, minOutcomeTokens *big.Int) (Call, error) {
	return NewCall(market, MarketMakerABI, "buy", investment, new(big.Int).SetUint64(outcomeIndex), minOutcomeTokens)
}

// Sell 在FPMM市场卖出某个结果的份额
func Sell(market common.Address, returnAmount *big.Int, outcomeIndex uint64, maxOutcomeTokens *big.Int) (Call, error) {
	return NewCall(market, MarketMakerABI, "sell", returnAmount, new(big.Int).SetUint64(outcomeIndex), maxOutcomeTokens)
}

// Redeem 在条件决议后赎回头寸，父集合固定为空
func Redeem(ctf, collateral common.Address, conditionID common.Hash, indexSets []*big.Int) (Call, error) {
	return NewCall(ctf, ConditionalTokensABI, "redeemPositions", collateral, [32]byte{}, [32]byte(conditionID), indexSets)
}

// ApproveAndDeposit 返回 approve + deposit 两步调用
func ApproveAndDeposit(token, vault common.Address, assets *big.Int, receiver common.Address) ([]Call, error) {
	approve, err := Approve(token, vault, assets)
	if err != nil {
		return nil, err
	}
	deposit, err := Deposit(vault, assets, receiver)
	if err != nil {
		return nil, err
	}
	return []Call{approve, deposit}, nil
}

// ApproveAndBuy 返回 approve + buy 两步调用
func ApproveAndBuy(collateral, market common.Address, investment *big.Int, outcomeIndex uint64, minOutcomeTokens *big.Int) ([]Call, error) {
	approve, err := Approve(collateral, market, investment)
	if err != nil {
		return nil, err
	}
	buy, err := Buy(market, investment, outcomeIndex, minOutcomeTokens)
	if err != nil {
		return nil, err
	}
	return []Call{approve, buy}, nil
}

// BinaryIndexSets 二元市场的两个结果集合 {1, 2}
func BinaryIndexSets() []*big.Int {
	return []*big.Int{big.NewInt(1), big.NewInt(2)}
}
