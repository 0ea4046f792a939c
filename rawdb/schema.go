// Package rawdb 包含客户端会话持久化的底层访问器。
package rawdb

// smartAccountAddressKey 保存上次初始化成功的智能账户地址（十六进制字符串）。
// 该记录只用于重启后的乐观展示，不代表会话已经就绪。
var smartAccountAddressKey = []byte("SmartAccountAddress")
