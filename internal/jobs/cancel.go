package jobs

import "context"

// CancelStore はキャンセルフラグの読み書きに必要なストア操作です。
type CancelStore interface {
	Get(ctx context.Context, jobID string) (*Record, error)
	SetCancelRequested(ctx context.Context, jobID string) (bool, error)
}

// CancellationGate はジョブのキャンセル要求を共有ストア経由で判定します。
// プロセス間で見える必要があるため、ローカルには一切キャッシュしません。
type CancellationGate struct {
	store CancelStore
}

// NewCancellationGate は CancellationGate を作成します。
func NewCancellationGate(store CancelStore) *CancellationGate {
	return &CancellationGate{store: store}
}

// IsCancelled は現在の cancel_requested を返します。レコードが無い場合は false です。
func (g *CancellationGate) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	record, err := g.store.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}
	return record.CancelRequested, nil
}

// RequestCancel はキャンセル要求を記録します。未知のジョブに対しても成功します。
func (g *CancellationGate) RequestCancel(ctx context.Context, jobID string) error {
	_, err := g.store.SetCancelRequested(ctx, jobID)
	return err
}
