// wallet包从智能账户会话和已连接的EOA中推导出呈现给用户的唯一钱包视图。
package wallet

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/radiation-octopus/octopus-trade/identity"
)

// Mode当前钱包视图的执行模式
type Mode uint8

const (
	ModeNone Mode = iota
	ModeExternallyOwned
	ModeSmartAccount
)

func (m Mode) String() string {
	switch m {
	case ModeExternallyOwned:
		return "externally-owned"
	case ModeSmartAccount:
		return "smart-account"
	}
	return "none"
}

// EOAState来自EOA连接器的输入
type EOAState struct {
	Address   common.Address
	Connected bool
}

// SmartAccountState来自智能账户会话的输入
type SmartAccountState struct {
	Address  common.Address
	Ready    bool
	Restored *common.Address // 等待重新派生的持久化地址
}

// View统一的钱包身份
type View struct {
	Address     common.Address
	Connected   bool
	Mode        Mode
	DisplayName string
	Gasless     bool // 支持赞助批处理
	Optimistic  bool // 地址来自存储，尚未验证
}

// Resolve计算视图。智能账户就绪后总是优先于EOA，恢复的地址只在没有已验证地址时显示。
func Resolve(eoa EOAState, sa SmartAccountState, profile *identity.Profile) View {
	switch {
	case sa.Ready && sa.Address != (common.Address{}):
		return View{
			Address:     sa.Address,
			Connected:   true,
			Mode:        ModeSmartAccount,
			DisplayName: displayName(sa.Address, profile),
			Gasless:     true,
		}
	case eoa.Connected && eoa.Address != (common.Address{}):
		return View{
			Address:     eoa.Address,
			Connected:   true,
			Mode:        ModeExternallyOwned,
			DisplayName: TruncateAddress(eoa.Address),
		}
	case sa.Restored != nil && *sa.Restored != (common.Address{}):
		return View{
			Address:     *sa.Restored,
			Mode:        ModeSmartAccount,
			DisplayName: TruncateAddress(*sa.Restored),
			Gasless:     true,
			Optimistic:  true,
		}
	}
	return View{Mode: ModeNone}
}

func displayName(addr common.Address, profile *identity.Profile) string {
	if profile != nil && profile.Name != "" {
		return profile.Name
	}
	return TruncateAddress(addr)
}

// TruncateAddress把校验和形式的地址缩短为前6位和后4位，例如0x970E...F791
func TruncateAddress(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}
