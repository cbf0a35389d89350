package model

import "time"

// EmailEvent はemailEventsコレクションに格納されるメール追跡イベントを表す。
// 応募先からの返信検出などメールパイプライン側が書き込み、
// 本システムはエクスポートとライフサイクルカスケードの対象としてのみ扱う。
type EmailEvent struct {
	ID         string    `bson:"_id" json:"id"`
	UserID     string    `bson:"userId" json:"userId"`
	Type       string    `bson:"type" json:"type"`
	Subject    string    `bson:"subject,omitempty" json:"subject,omitempty"`
	OccurredAt time.Time `bson:"occurredAt" json:"occurredAt"`

	// ライフサイクルフィールド。カスケード時に親アカウントと同じ値が設定される。
	MarkedForDeletionAt *time.Time `bson:"markedForDeletionAt,omitempty" json:"markedForDeletionAt,omitempty"`
	TTL                 *time.Time `bson:"ttl,omitempty" json:"ttl,omitempty"`
}
