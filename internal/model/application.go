package model

import "time"

// ApplicationStatus は求人応募の進行状態を表す。
type ApplicationStatus string

const (
	StatusApplied      ApplicationStatus = "applied"
	StatusInterviewing ApplicationStatus = "interviewing"
	StatusOffered      ApplicationStatus = "offered"
	StatusRejected     ApplicationStatus = "rejected"
	StatusAccepted     ApplicationStatus = "accepted"
)

// IsValidApplicationStatus はサポートされる応募ステータスかどうかを返す。
func IsValidApplicationStatus(s ApplicationStatus) bool {
	switch s {
	case StatusApplied, StatusInterviewing, StatusOffered, StatusRejected, StatusAccepted:
		return true
	}
	return false
}

// Application はapplicationsコレクションに格納される求人応募レコードを表す。
// UserIDはAccount.IDへの外部キー。参照整合性はストアでは強制されず、
// ライフサイクルの伝播はAccount Lifecycle Serviceが担う。
type Application struct {
	ID        string            `bson:"_id" json:"id"`
	UserID    string            `bson:"userId" json:"userId"`
	Company   string            `bson:"company" json:"company"`
	Position  string            `bson:"position" json:"position"`
	Status    ApplicationStatus `bson:"status" json:"status"`
	URL       string            `bson:"url,omitempty" json:"url,omitempty"`
	Notes     string            `bson:"notes,omitempty" json:"notes,omitempty"`
	AppliedAt time.Time         `bson:"appliedAt,omitempty" json:"appliedAt,omitempty"`
	CreatedAt time.Time         `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time         `bson:"updatedAt" json:"updatedAt"`

	// ライフサイクルフィールド。カスケード時に親アカウントと同じ値が設定される。
	MarkedForDeletionAt *time.Time `bson:"markedForDeletionAt,omitempty" json:"markedForDeletionAt,omitempty"`
	TTL                 *time.Time `bson:"ttl,omitempty" json:"ttl,omitempty"`
}
