package ingest

import "github.com/hitoshi/lazyledger/internal/model"

// スキップ理由。メトリクスのラベルとしても使用する。
const (
	SkipReasonInvalid       = "invalid"
	SkipReasonPersistFailed = "persist_failed"
)

// ItemFailure は取引候補1件のスキップ内容を表す。
type ItemFailure struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Result は取り込みパイプラインの集約結果。
// 部分成功ポリシーのもと、成功した取引のリストと
// スキップされた候補の件数・理由を保持する。
// 呼び出し元は期待件数と永続化件数の差分から部分的な欠落を検出できる。
type Result struct {
	RawEntry       model.RawEntry      `json:"raw_entry"`
	Transactions   []model.Transaction `json:"transactions"`
	SkippedInvalid int                 `json:"skipped_invalid"`
	FailedPersist  int                 `json:"failed_persist"`
	Failures       []ItemFailure       `json:"failures,omitempty"`
}

// recordInvalid は検証に失敗した候補を記録する。
func (r *Result) recordInvalid(index int, reason string) {
	r.SkippedInvalid++
	r.Failures = append(r.Failures, ItemFailure{Index: index, Reason: reason})
}

// recordPersistFailure は永続化に失敗した候補を記録する。
func (r *Result) recordPersistFailure(index int, reason string) {
	r.FailedPersist++
	r.Failures = append(r.Failures, ItemFailure{Index: index, Reason: reason})
}
