// Package audit keeps a MongoDB trail of analysis requests.
package audit

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Record is one pipeline run. It holds the executed code, unlike the
// events published to Redis.
type Record struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id" yaml:"id"`
	RequestID    string             `bson:"request_id" json:"request_id" yaml:"request_id"`
	Principal    string             `bson:"principal,omitempty" json:"principal,omitempty" yaml:"principal,omitempty"`
	Query        string             `bson:"query,omitempty" json:"query,omitempty" yaml:"query,omitempty"`
	Tables       []string           `bson:"tables" json:"tables" yaml:"tables"`
	Outcome      string             `bson:"outcome" json:"outcome" yaml:"outcome"`
	Reason       string             `bson:"reason,omitempty" json:"reason,omitempty" yaml:"reason,omitempty"`
	FaultKind    string             `bson:"fault_kind,omitempty" json:"fault_kind,omitempty" yaml:"fault_kind,omitempty"`
	ResultKind   string             `bson:"result_kind,omitempty" json:"result_kind,omitempty" yaml:"result_kind,omitempty"`
	Mode         string             `bson:"mode,omitempty" json:"mode,omitempty" yaml:"mode,omitempty"`
	Code         string             `bson:"code,omitempty" json:"code,omitempty" yaml:"code,omitempty"`
	CodeHash     string             `bson:"code_hash,omitempty" json:"code_hash,omitempty" yaml:"code_hash,omitempty"`
	DroppedLines int                `bson:"dropped_lines" json:"dropped_lines" yaml:"dropped_lines"`
	PlotPath     string             `bson:"plot_path,omitempty" json:"plot_path,omitempty" yaml:"plot_path,omitempty"`
	Message      string             `bson:"message,omitempty" json:"message,omitempty" yaml:"message,omitempty"`
	GenerateMS   int64              `bson:"generate_ms" json:"generate_ms" yaml:"generate_ms"`
	ExecuteMS    int64              `bson:"execute_ms" json:"execute_ms" yaml:"execute_ms"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at" yaml:"created_at"`
}

// Filter selects records for listing.
type Filter struct {
	Outcome   string
	Principal string
	Since     time.Time
	Limit     int
	Offset    int
}

// OutcomeCount is one row of an outcome summary.
type OutcomeCount struct {
	Outcome string `bson:"_id" json:"outcome" yaml:"outcome"`
	Count   int64  `bson:"count" json:"count" yaml:"count"`
}
