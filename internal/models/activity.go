package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ActivityKind string

const (
	ActivityCheckout      ActivityKind = "checkout"
	ActivityBatchSubmit   ActivityKind = "batch_submit"
	ActivitySingleRequest ActivityKind = "single_request"
)

// Activity is one journal entry of what a worker did through the gateway.
type Activity struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID     string             `bson:"userID" json:"userID"`
	Kind       ActivityKind       `bson:"kind" json:"kind"`
	Succeeded  bool               `bson:"succeeded" json:"succeeded"`
	ItemCount  int                `bson:"itemCount" json:"itemCount"`
	Amount     string             `bson:"amount,omitempty" json:"amount,omitempty"`
	ArchiveURL string             `bson:"archiveURL,omitempty" json:"archiveURL,omitempty"`
	Error      string             `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
}
