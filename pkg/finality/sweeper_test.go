package finality

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeHead struct {
	block uint64
	err   error
}

func (f *fakeHead) HeadBlock(ctx context.Context) (uint64, error) {
	return f.block, f.err
}

type fakeStore struct {
	calls     []uint64
	confirmed int64
	err       error
}

func (f *fakeStore) BulkConfirmFinality(ctx context.Context, chainID string, horizon uint64) (int64, error) {
	f.calls = append(f.calls, horizon)
	return f.confirmed, f.err
}

func TestSweepChain_ComputesHorizon(t *testing.T) {
	head := &fakeHead{block: 112}
	st := &fakeStore{confirmed: 2}
	sw := New([]Chain{{ChainID: "A", Head: head}}, 12, time.Second, st)

	if err := sw.sweepChain(context.Background(), Chain{ChainID: "A", Head: head}); err != nil {
		t.Fatalf("sweepChain: %v", err)
	}
	if len(st.calls) != 1 || st.calls[0] != 100 {
		t.Errorf("expected horizon 100, got %v", st.calls)
	}
}

func TestSweepChain_BelowDepthSkipsConfirm(t *testing.T) {
	head := &fakeHead{block: 5}
	st := &fakeStore{}
	sw := New([]Chain{{ChainID: "A", Head: head}}, 12, time.Second, st)

	if err := sw.sweepChain(context.Background(), Chain{ChainID: "A", Head: head}); err != nil {
		t.Fatalf("sweepChain: %v", err)
	}
	if len(st.calls) != 0 {
		t.Errorf("expected no confirm call below depth, got %v", st.calls)
	}
}

func TestSweepChain_HeadErrorPropagates(t *testing.T) {
	head := &fakeHead{err: errors.New("rpc down")}
	st := &fakeStore{}
	sw := New([]Chain{{ChainID: "A", Head: head}}, 12, time.Second, st)

	if err := sw.sweepChain(context.Background(), Chain{ChainID: "A", Head: head}); err == nil {
		t.Fatal("expected error from failing head reader")
	}
}

func TestSweepAll_ContinuesOnPerChainError(t *testing.T) {
	good := &fakeHead{block: 50}
	bad := &fakeHead{err: errors.New("down")}
	st := &fakeStore{confirmed: 1}
	sw := New([]Chain{{ChainID: "A", Head: bad}, {ChainID: "B", Head: good}}, 12, time.Second, st)

	sw.sweepAll(context.Background())

	if len(st.calls) != 1 {
		t.Fatalf("expected the healthy chain to still be swept, got %d calls", len(st.calls))
	}
}
