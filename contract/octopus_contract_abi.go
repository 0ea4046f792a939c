package contract

// ERC20ABI 只包含交易流程用到的函数
const ERC20ABI = `[
	{"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

// VaultABI ERC-4626 金库，手续费路由在合约内部完成
const VaultABI = `[
	{"inputs":[{"name":"assets","type":"uint256"},{"name":"receiver","type":"address"}],"name":"deposit","outputs":[{"name":"shares","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"shares","type":"uint256"},{"name":"receiver","type":"address"},{"name":"owner","type":"address"}],"name":"redeem","outputs":[{"name":"assets","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`

// MarketMakerABI 固定乘积做市商（FPMM）
const MarketMakerABI = `[
	{"inputs":[{"name":"investmentAmount","type":"uint256"},{"name":"outcomeIndex","type":"uint256"},{"name":"minOutcomeTokensToBuy","type":"uint256"}],"name":"buy","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"returnAmount","type":"uint256"},{"name":"outcomeIndex","type":"uint256"},{"name":"maxOutcomeTokensToSell","type":"uint256"}],"name":"sell","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"investmentAmount","type":"uint256"},{"name":"outcomeIndex","type":"uint256"}],"name":"calcBuyAmount","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// ConditionalTokensABI Conditional Token Framework 合约
// 包含 splitPosition, mergePositions, redeemPositions, setApprovalForAll
const ConditionalTokensABI = `[
	{"inputs":[{"name":"collateralToken","type":"address"},{"name":"parentCollectionId","type":"bytes32"},{"name":"conditionId","type":"bytes32"},{"name":"partition","type":"uint256[]"},{"name":"amount","type":"uint256"}],"name":"splitPosition","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"collateralToken","type":"address"},{"name":"parentCollectionId","type":"bytes32"},{"name":"conditionId","type":"bytes32"},{"name":"partition","type":"uint256[]"},{"name":"amount","type":"uint256"}],"name":"mergePositions","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"collateralToken","type":"address"},{"name":"parentCollectionId","type":"bytes32"},{"name":"conditionId","type":"bytes32"},{"name":"indexSets","type":"uint256[]"}],"name":"redeemPositions","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"name":"setApprovalForAll","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`
