package smartaccount

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/radiation-octopus/octopus-trade/aa"
	"github.com/radiation-octopus/octopus-trade/contract"
	"github.com/radiation-octopus/octopus-trade/identity"
	"github.com/radiation-octopus/octopus-trade/terr"
)

// ErrOperationReverted操作已被打包但执行失败时由WaitOperation返回
var ErrOperationReverted = errors.New("user operation reverted")

// EnqueueAndSubmit用calls替换待处理队列，并按顺序作为一个赞助的用户操作提交。
//bundler接受后立即返回操作id，等待打包使用WaitOperation。
//无论结果如何，返回时队列都已清空。
func (s *Session) EnqueueAndSubmit(ctx context.Context, calls []contract.Call) (common.Hash, error) {
	if len(calls) == 0 {
		return common.Hash{}, terr.ErrEmptyRequest
	}
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	s.mu.Lock()
	if s.state != Ready {
		s.mu.Unlock()
		return common.Hash{}, terr.ErrNotInitialized
	}
	s.pending = append(s.pending[:0], calls...)
	batch := append([]contract.Call(nil), s.pending...)
	owner, ownerAddr, sender := s.owner, s.ownerAddr, s.address
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pending = s.pending[:0]
		s.mu.Unlock()
	}()

	op, err := s.buildOperation(ctx, ownerAddr, sender, batch)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", terr.ErrEstimationFailed, err)
	}
	sponsorship, err := s.bundler.SponsorUserOperation(ctx, op, s.config.EntryPoint, s.config.SponsorshipContext)
	if err != nil {
		log.Debug("Sponsorship request failed", "sender", sender, "err", err)
		return common.Hash{}, fmt.Errorf("%w: %w", terr.ErrEstimationFailed, err)
	}
	sponsorship.Apply(op)

	if err := s.sign(ctx, owner, op); err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", terr.ErrSubmissionFailed, err)
	}
	id, err := s.bundler.SendUserOperation(ctx, op, s.config.EntryPoint)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", terr.ErrSubmissionFailed, err)
	}
	log.Info("Submitted user operation", "sender", sender, "calls", len(batch), "nonce", op.Nonce, "deploy", len(op.InitCode) > 0, "id", id)
	return id, nil
}

// buildOperation编码批次并填入nonce、initCode和默认费用，gas限制与paymaster数据由赞助方填写
func (s *Session) buildOperation(ctx context.Context, ownerAddr, sender common.Address, calls []contract.Call) (*aa.UserOperation, error) {
	msgs, err := contract.EncodeAll(calls)
	if err != nil {
		return nil, err
	}
	callData, err := aa.EncodeExecute(sender, msgs)
	if err != nil {
		return nil, err
	}
	nonce, err := s.nonce(ctx, sender)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	code, err := s.chain.CodeAt(ctx, sender, nil)
	if err != nil {
		return nil, fmt.Errorf("code: %w", err)
	}
	var initCode []byte
	if len(code) == 0 {
		salt, err := aa.Salt(ownerAddr, s.config.ChainID, 0)
		if err != nil {
			return nil, err
		}
		if initCode, err = aa.InitCode(s.config.Factory, ownerAddr, salt); err != nil {
			return nil, err
		}
	}
	tip, feeCap, err := s.suggestFees(ctx)
	if err != nil {
		return nil, fmt.Errorf("fees: %w", err)
	}
	log.Debug("Built user operation", "sender", sender, "nonce", nonce, "calls", len(calls), "tip", tip, "feecap", feeCap)
	return &aa.UserOperation{
		Sender:               sender,
		Nonce:                nonce,
		InitCode:             initCode,
		CallData:             callData,
		MaxFeePerGas:         feeCap,
		MaxPriorityFeePerGas: tip,
		Signature:            aa.DummySignature,
	}, nil
}

func (s *Session) nonce(ctx context.Context, sender common.Address) (*big.Int, error) {
	data, err := aa.GetNonceData(s.config.EntryPoint, sender)
	if err != nil {
		return nil, err
	}
	ep := s.config.EntryPoint
	out, err := s.chain.CallContract(ctx, ethereum.CallMsg{To: &ep, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return aa.UnpackNonce(out)
}

// suggestFees在伦敦升级后的链上返回1559费用(tip + 2*baseFee)，否则两者都用传统gas价格
func (s *Session) suggestFees(ctx context.Context) (tip, feeCap *big.Int, err error) {
	head, err := s.chain.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	if head.BaseFee == nil {
		price, err := s.chain.SuggestGasPrice(ctx)
		if err != nil {
			return nil, nil, err
		}
		return price, new(big.Int).Set(price), nil
	}
	tip, err = s.chain.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, err
	}
	feeCap = new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	return tip, feeCap, nil
}

func (s *Session) sign(ctx context.Context, owner identity.Owner, op *aa.UserOperation) error {
	hash, err := op.Hash(s.config.EntryPoint, s.config.ChainID)
	if err != nil {
		return err
	}
	sig, err := owner.SignMessage(ctx, hash.Bytes())
	if err != nil {
		return err
	}
	op.Signature = sig
	return nil
}

// WaitOperation轮询bundler，直到操作被打包或ctx结束
func (s *Session) WaitOperation(ctx context.Context, id common.Hash) (*aa.Receipt, error) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		r, err := s.bundler.GetUserOperationReceipt(ctx, id)
		switch {
		case err == nil && !r.Success:
			return r, fmt.Errorf("%w: %s", ErrOperationReverted, r.Reason)
		case err == nil:
			log.Debug("User operation included", "id", id, "tx", r.Receipt.TransactionHash)
			return r, nil
		case !errors.Is(err, ethereum.NotFound):
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
