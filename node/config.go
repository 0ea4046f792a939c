package node

import (
	"bufio"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/naoina/toml"
	"github.com/radiation-octopus/octopus-trade/smartaccount"
)

const (
	datadirSessionDB = "session" // 实例目录下会话数据库的路径
	datadirKeyFile   = "key.json"
)

// DefaultConfig包含Polygon主网的合理默认设置
var DefaultConfig = Config{
	Name:                  "octrade",
	ChainID:               137,
	RPCURL:                "https://polygon-rpc.com",
	EntryPoint:            common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"),
	AccountFactory:        common.HexToAddress("0x9406Cc6185a346906296840746125a0E44976454"),
	AccountImplementation: common.HexToAddress("0x8E8e658E22B12ada97B402fF0b044D6A325013C7"),
	SponsorshipMode:       "SPONSORED",
	PollInterval:          2 * time.Second,
	DatabaseCache:         16,
	DatabaseHandles:       16,
}

// Config表示一小部分用于微调交易节点的配置值，所有注册的服务都可以进一步扩展这些值
type Config struct {
	// Name设置实例名称，作为数据目录下的子目录。不能包含/字符。
	Name string `toml:"-"`

	// DataDir是存放会话数据库和密钥文件的目录。为空时全部驻留在内存中，
	//重启后不会恢复智能账户地址。
	DataDir string

	// ChainID是目标链的EIP-155链ID，参与计算用户操作哈希和反事实地址。
	ChainID uint64

	// RPCURL是链节点的JSON-RPC端点，用于读取代码、nonce、费用和收据。
	RPCURL string

	// BundlerURL和PaymasterURL是ERC-4337打包器和赞助服务的端点。
	//PaymasterURL为空时使用BundlerURL。
	BundlerURL   string
	PaymasterURL string `toml:",omitempty"`

	// APIKey作为apikey查询参数追加到打包器和赞助服务端点。
	APIKey string `toml:",omitempty"`

	EntryPoint            common.Address
	AccountFactory        common.Address
	AccountImplementation common.Address

	// SponsorshipMode是pm_sponsorUserOperation上下文中的mode字段。
	SponsorshipMode string

	// PollInterval是等待收据时的轮询间隔。
	PollInterval time.Duration

	// KeyFile是外部账户的密钥文件。相对路径在实例目录中解析。
	KeyFile string `toml:",omitempty"`

	DatabaseCache   int `toml:",omitempty"`
	DatabaseHandles int `toml:",omitempty"`

	// CheckEntryPoint在启动时确认打包器支持配置的入口合约。
	CheckEntryPoint bool `toml:",omitempty"`

	// Logger是节点使用的自定义记录器。
	Logger log.Logger `toml:"-"`
}

// tomlSettings保留字段原名，拒绝未知键
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// LoadConfig在默认值之上读取TOML文件
func LoadConfig(file string) (*Config, error) {
	cfg := DefaultConfig
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg)
	// 为带行号的错误加上文件名。
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Dump把配置输出为TOML
func (c *Config) Dump() ([]byte, error) {
	return tomlSettings.Marshal(c)
}

// Validate检查节点运行必需的字段
func (c *Config) Validate() error {
	switch {
	case c.ChainID == 0:
		return errors.New("config: ChainID must be set")
	case c.RPCURL == "":
		return errors.New("config: RPCURL must be set")
	case c.BundlerURL == "":
		return errors.New("config: BundlerURL must be set")
	case c.EntryPoint == (common.Address{}):
		return errors.New("config: EntryPoint must be set")
	case c.AccountFactory == (common.Address{}) || c.AccountImplementation == (common.Address{}):
		return errors.New("config: AccountFactory and AccountImplementation must be set")
	case strings.ContainsAny(c.Name, `/\`):
		return errors.New(`config: Name must not contain '/' or '\'`)
	}
	return nil
}

// BundlerEndpoint返回附带API密钥的bundler URL
func (c *Config) BundlerEndpoint() (string, error) {
	return withAPIKey(c.BundlerURL, c.APIKey)
}

// PaymasterEndpoint返回附带API密钥的赞助URL，未配置时回退到bundler
func (c *Config) PaymasterEndpoint() (string, error) {
	if c.PaymasterURL == "" {
		return c.BundlerEndpoint()
	}
	return withAPIKey(c.PaymasterURL, c.APIKey)
}

func withAPIKey(raw, key string) (string, error) {
	if key == "" {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("apikey", key)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SessionConfig把节点设置转换为智能账户设置
func (c *Config) SessionConfig() smartaccount.Config {
	var sponsorCtx map[string]interface{}
	if c.SponsorshipMode != "" {
		sponsorCtx = map[string]interface{}{"mode": c.SponsorshipMode}
	}
	return smartaccount.Config{
		ChainID:            new(big.Int).SetUint64(c.ChainID),
		EntryPoint:         c.EntryPoint,
		Factory:            c.AccountFactory,
		Implementation:     c.AccountImplementation,
		SponsorshipContext: sponsorCtx,
		PollInterval:       c.PollInterval,
	}
}

func (c *Config) name() string {
	if c.Name == "" {
		progname := strings.TrimSuffix(filepath.Base(os.Args[0]), ".exe")
		if progname == "" {
			panic("empty executable name, set Config.Name")
		}
		return progname
	}
	return c.Name
}

// ResolvePath解析实例目录中的路径。
func (c *Config) ResolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.instanceDir(), path)
}

// KeyFilePath返回解析后的密钥文件位置，不适用时返回""
func (c *Config) KeyFilePath() string {
	if c.KeyFile != "" {
		if filepath.IsAbs(c.KeyFile) || c.DataDir == "" {
			return c.KeyFile
		}
		return c.ResolvePath(c.KeyFile)
	}
	return c.ResolvePath(datadirKeyFile)
}

func (c *Config) instanceDir() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, c.name())
}
