package supervisor

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type fakePauser struct {
	pauseErr, unpauseErr, awaitErr error
	pauseCalls, unpauseCalls       int
}

func (f *fakePauser) SendPause(ctx context.Context) (*types.Transaction, error) {
	f.pauseCalls++
	if f.pauseErr != nil {
		return nil, f.pauseErr
	}
	return types.NewTransaction(0, common.Address{}, nil, 0, nil, nil), nil
}

func (f *fakePauser) SendUnpause(ctx context.Context) (*types.Transaction, error) {
	f.unpauseCalls++
	if f.unpauseErr != nil {
		return nil, f.unpauseErr
	}
	return types.NewTransaction(0, common.Address{}, nil, 0, nil, nil), nil
}

func (f *fakePauser) Await(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if f.awaitErr != nil {
		return nil, f.awaitErr
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func TestPause_SetsFlagImmediately(t *testing.T) {
	a := &fakePauser{}
	s := New(map[string]Pauser{"A": a})

	if s.Paused() {
		t.Fatal("expected not paused before Pause is called")
	}
	s.Pause(context.Background())
	if !s.Paused() {
		t.Fatal("expected paused after Pause")
	}
	if a.pauseCalls != 1 {
		t.Errorf("expected 1 pause call, got %d", a.pauseCalls)
	}
}

func TestUnpause_ClearsFlagAfterAttemptingEveryChain(t *testing.T) {
	a := &fakePauser{}
	b := &fakePauser{pauseErr: errors.New("rpc error")}
	s := New(map[string]Pauser{"A": a, "B": b})
	s.Pause(context.Background())

	s.Unpause(context.Background())

	if s.Paused() {
		t.Fatal("expected not paused after Unpause")
	}
	if a.unpauseCalls != 1 || b.unpauseCalls != 1 {
		t.Errorf("expected both chains to receive unpause, got a=%d b=%d", a.unpauseCalls, b.unpauseCalls)
	}
}

func TestPause_StaysSetEvenIfChainCallFails(t *testing.T) {
	a := &fakePauser{pauseErr: errors.New("down")}
	s := New(map[string]Pauser{"A": a})

	s.Pause(context.Background())

	if !s.Paused() {
		t.Fatal("expected local pause flag to remain set despite on-chain failure")
	}
}
