package submitter

import (
	"context"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dchisholm125/kestrel-hq-sub001/config/params"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/bundle"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/db/iface"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/db/kv"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/intent"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/relay"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/transition"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/tuning"
	"github.com/dchisholm125/kestrel-hq-sub001/testing/assert"
	"github.com/dchisholm125/kestrel-hq-sub001/testing/require"
	"github.com/dchisholm125/kestrel-hq-sub001/testing/util"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

type staticTuner struct {
	snap *tuning.Snapshot
}

func (s *staticTuner) Get() *tuning.Snapshot {
	return s.snap
}

type stubLane struct {
	id   string
	hash string
	err  error
}

func (l *stubLane) ID() string { return l.id }

func (l *stubLane) SubmitBundle(_ context.Context, _ *bundle.Plan) (string, error) {
	if l.err != nil {
		return "", l.err
	}
	return l.hash, nil
}

func signedTx(t *testing.T, nonce uint64) hexutil.Bytes {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(1),
		Nonce:     nonce,
		GasTipCap: big.NewInt(2e9),
		GasFeeCap: big.NewInt(100e9),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1),
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(1)), key)
	require.NoError(t, err)
	raw, err := signed.MarshalBinary()
	require.NoError(t, err)
	return raw
}

// queuedIntent walks a fresh intent through the ladder to QUEUED.
func queuedIntent(t *testing.T, store *kv.Store, exec *transition.Executor, id string) *intent.Intent {
	ctx := context.Background()
	payload := intent.Payload{
		TargetChain: "eth-mainnet",
		Txs:         []hexutil.Bytes{signedTx(t, 1)},
	}
	_, err := store.CreateIntent(ctx, id, payload, "hash-"+id, "corr-"+id)
	require.NoError(t, err)
	for _, st := range []intent.State{intent.Screened, intent.Validated, intent.Enriched, intent.Queued} {
		_, err = exec.Advance(ctx, id, st, "corr-"+id, nil)
		require.NoError(t, err)
	}
	row, err := store.Intent(ctx, id)
	require.NoError(t, err)
	return row
}

func setupService(t *testing.T, lanes []relay.Lane) (*Service, *kv.Store, *transition.Executor) {
	params.SetupTestConfigCleanup(t)
	params.OverrideKestrelConfig(params.TestConfig())

	store, err := kv.NewKVStore(t.TempDir(), &kv.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	exec := transition.NewExecutor(store)

	tracker := relay.NewHealthTracker(nil)
	for _, lane := range lanes {
		tracker.Update(relay.LaneHealth{ID: lane.ID(), Healthy: true})
	}

	snap := tuning.DefaultSnapshot()
	snap.AntiMEV.JitterMaxMs = 0

	svc, err := New(context.Background(), &Config{
		DB:       store,
		Executor: exec,
		Tracker:  tracker,
		Lanes:    lanes,
		Tuning:   &staticTuner{snap: snap},
	})
	require.NoError(t, err)
	return svc, store, exec
}

func TestProcess_AdvancesToSubmitted(t *testing.T) {
	svc, store, exec := setupService(t, []relay.Lane{&stubLane{id: "lane-a", hash: "0xabc"}})
	row := queuedIntent(t, store, exec, "i-1")

	svc.process(row.ID)

	fresh, err := store.Intent(context.Background(), row.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.Submitted, fresh.State)

	rec, err := store.SubmissionRecord(context.Background(), row.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, 1, len(rec.Submissions))
	assert.Equal(t, "lane-a", rec.Submissions[0].Lane)
	assert.Equal(t, "0xabc", rec.Submissions[0].BundleHash)
}

func TestProcess_DropsWhenAllLanesFail(t *testing.T) {
	svc, store, exec := setupService(t, []relay.Lane{&stubLane{id: "lane-a", err: errors.New("refused")}})
	row := queuedIntent(t, store, exec, "i-2")

	svc.process(row.ID)

	fresh, err := store.Intent(context.Background(), row.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.Dropped, fresh.State)
	require.NotNil(t, fresh.LastReason)
	assert.Equal(t, intent.CodeNetworkSubmissionAllFailed, fresh.LastReason.Code)
}

func TestProcess_SkipsNonQueuedIntent(t *testing.T) {
	svc, store, _ := setupService(t, []relay.Lane{&stubLane{id: "lane-a", hash: "0xabc"}})
	ctx := context.Background()
	_, err := store.CreateIntent(ctx, "i-3", intent.Payload{TargetChain: "eth-mainnet"}, "hash-3", "corr-3")
	require.NoError(t, err)

	svc.process("i-3")

	fresh, err := store.Intent(ctx, "i-3")
	require.NoError(t, err)
	assert.Equal(t, intent.Received, fresh.State)
}

func TestProcess_SecondDeliveryIsNoOp(t *testing.T) {
	svc, store, exec := setupService(t, []relay.Lane{&stubLane{id: "lane-a", hash: "0xabc"}})
	row := queuedIntent(t, store, exec, "i-4")

	svc.process(row.ID)
	svc.process(row.ID)

	events, err := store.IntentEvents(context.Background(), row.ID)
	require.NoError(t, err)
	// RECEIVED insert + four ladder advances + one SUBMITTED advance.
	assert.Equal(t, 6, len(events))
}

// flakyStore fails a fixed number of intent reads before delegating.
type flakyStore struct {
	iface.Database
	failures int32
}

func (f *flakyStore) Intent(ctx context.Context, id string) (*intent.Intent, error) {
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return nil, errors.New("transient read failure")
	}
	return f.Database.Intent(ctx, id)
}

func TestProcess_TransientReadFailureStaysRetryable(t *testing.T) {
	svc, store, exec := setupService(t, []relay.Lane{&stubLane{id: "lane-a", hash: "0xabc"}})
	row := queuedIntent(t, store, exec, "i-7")
	svc.cfg.DB = &flakyStore{Database: store, failures: 1}

	// First delivery hits the read failure and must leave the intent QUEUED
	// and eligible for the sweep.
	svc.process(row.ID)
	fresh, err := store.Intent(context.Background(), row.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.Queued, fresh.State)

	// The sweep's redelivery completes the submission.
	svc.process(row.ID)
	fresh, err = store.Intent(context.Background(), row.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.Submitted, fresh.State)
}

func TestStartStop_DrainsWorkerPool(t *testing.T) {
	svc, store, exec := setupService(t, []relay.Lane{&stubLane{id: "lane-a", hash: "0xabc"}})
	queuedIntent(t, store, exec, "i-6")

	svc.Start()
	require.NoError(t, svc.Stop())
	if util.WaitTimeout(&svc.wg, time.Second) {
		t.Fatal("Worker pool did not drain after Stop")
	}
}

func TestProcess_DropsOnUnassemblablePayload(t *testing.T) {
	svc, store, exec := setupService(t, []relay.Lane{&stubLane{id: "lane-a", hash: "0xabc"}})
	ctx := context.Background()
	payload := intent.Payload{
		TargetChain: "eth-mainnet",
		Txs:         []hexutil.Bytes{{0x01, 0x02}},
	}
	_, err := store.CreateIntent(ctx, "i-5", payload, "hash-5", "corr-5")
	require.NoError(t, err)
	for _, st := range []intent.State{intent.Screened, intent.Validated, intent.Enriched, intent.Queued} {
		_, err = exec.Advance(ctx, "i-5", st, "corr-5", nil)
		require.NoError(t, err)
	}

	svc.process("i-5")

	fresh, err := store.Intent(ctx, "i-5")
	require.NoError(t, err)
	assert.Equal(t, intent.Dropped, fresh.State)
	require.NotNil(t, fresh.LastReason)
	assert.Equal(t, intent.CodeInternalError, fresh.LastReason.Code)
}
