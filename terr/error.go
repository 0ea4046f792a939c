package terr

import (
	"errors"
	"fmt"
)

//交易执行核心的错误列表。核心内部从不自动重试，是否重试由调用方决定。
var (
	// 在会话ready之前尝试提交操作时返回ErrNotInitialized。
	ErrNotInitialized = errors.New("smart account not initialized")

	// 赞助方拒绝或gas估算出错时返回ErrEstimationFailed。
	ErrEstimationFailed = errors.New("user operation estimation failed")

	// bundler或网络提交出错时返回ErrSubmissionFailed。
	ErrSubmissionFailed = errors.New("user operation submission failed")

	// 调用列表为空时返回ErrEmptyRequest，此时不会触达任何外部边界。
	ErrEmptyRequest = errors.New("empty call request")
)

/**
session
*/
var (
	// 另一个身份的初始化仍在进行中时返回ErrInitializing。
	ErrInitializing = errors.New("smart account initialization in progress")

	// 会话已为其他身份ready时返回ErrIdentityConflict，需要先teardown。
	ErrIdentityConflict = errors.New("smart account ready for a different identity")

	// 初始化期间会话被teardown时返回ErrInitAborted。
	ErrInitAborted = errors.New("smart account initialization aborted")
)

/**
executor
*/
var (
	ErrNotConnected        = errors.New("no wallet connected")
	ErrExecutionInProgress = errors.New("execution already in progress")
)

// 身份无法产生时返回DerivationError：社交会话无效、过期，或提供者拒绝密钥请求。
type DerivationError struct {
	Reason string // 派生失败的来源
	Err    error  // 底层原因
}

// NewDerivationError创建一个新的派生错误。
func NewDerivationError(reason string, err error) error {
	return &DerivationError{
		Reason: reason,
		Err:    err,
	}
}

// Error实现标准错误接口。
func (err *DerivationError) Error() string {
	if err.Err == nil {
		return fmt.Sprintf("identity derivation failed: %s", err.Reason)
	}
	return fmt.Sprintf("identity derivation failed: %s: %v", err.Reason, err.Err)
}

func (err *DerivationError) Unwrap() error { return err.Err }

//SequentialStepError表示EOA顺序路径在第Index步（从0开始）失败。
//之前的Committed步骤已经上链，之后的步骤从未尝试。
type SequentialStepError struct {
	Index     int
	Total     int
	Committed []string // 已确认步骤的交易哈希
	Err       error
}

// Error实现标准错误接口，步骤号以1开始展示。
func (err *SequentialStepError) Error() string {
	return fmt.Sprintf("failed at step %d of %d: %v", err.Index+1, err.Total, err.Err)
}

func (err *SequentialStepError) Unwrap() error { return err.Err }

// IsDerivationError报告err链中是否包含DerivationError。
func IsDerivationError(err error) bool {
	var derr *DerivationError
	return errors.As(err, &derr)
}
