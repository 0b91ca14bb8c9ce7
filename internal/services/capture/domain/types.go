// Package domain holds the capture types shared by the pipeline, stream,
// outcome, filing, and reconciliation layers
package domain

import (
	"time"
)

// Bucket is one of the four fixed destination categories
type Bucket string

const (
	// BucketPeople holds notes about people
	BucketPeople Bucket = "People"

	// BucketProjects holds notes about ongoing projects
	BucketProjects Bucket = "Projects"

	// BucketIdeas holds free-floating ideas
	BucketIdeas Bucket = "Ideas"

	// BucketAdmin holds chores, errands, and admin items
	BucketAdmin Bucket = "Admin"
)

// Buckets lists every valid bucket
func Buckets() []Bucket {
	return []Bucket{BucketPeople, BucketProjects, BucketIdeas, BucketAdmin}
}

// ParseBucket validates a bucket name against the fixed enum
func ParseBucket(s string) (Bucket, bool) {
	switch Bucket(s) {
	case BucketPeople, BucketProjects, BucketIdeas, BucketAdmin:
		return Bucket(s), true
	}
	return "", false
}

// Container returns the document container a bucket's records live in
func (b Bucket) Container() string {
	switch b {
	case BucketPeople:
		return "people"
	case BucketProjects:
		return "projects"
	case BucketIdeas:
		return "ideas"
	case BucketAdmin:
		return "admin"
	}
	return ""
}

// CaptureStatus is the lifecycle state of one logical submission
type CaptureStatus string

const (
	// StatusClassified means a bucket was chosen at or above the confidence threshold
	StatusClassified CaptureStatus = "classified"

	// StatusPending means a bucket was chosen below the threshold; still filed, flagged for review
	StatusPending CaptureStatus = "pending"

	// StatusMisunderstood means the classifier asked the user a question; awaiting follow-up
	StatusMisunderstood CaptureStatus = "misunderstood"

	// StatusUnresolved is terminal: follow-up rounds are exhausted or the pipeline gave up
	StatusUnresolved CaptureStatus = "unresolved"

	// StatusUnclassified marks junk input kept for the record but never filed to a bucket
	StatusUnclassified CaptureStatus = "unclassified"
)

// ClassificationMeta is the decision produced by one pipeline run
type ClassificationMeta struct {
	Bucket        Bucket             `json:"bucket"`
	Confidence    float64            `json:"confidence"`
	AllScores     map[string]float64 `json:"allScores,omitempty"`
	DecidedBy     string             `json:"decidedBy"`
	DecisionChain []string           `json:"decisionChain,omitempty"`
	DecidedAt     time.Time          `json:"decidedAt"`
}

// Capture is one logical user submission and its classification state
// Round is 0 for the initial attempt and increments once per follow-up
type Capture struct {
	ID                 string              `json:"id"`
	RawText            string              `json:"rawText"`
	Title              string              `json:"title,omitempty"`
	Source             string              `json:"source,omitempty"`
	Status             CaptureStatus       `json:"status"`
	ClassificationMeta *ClassificationMeta `json:"classificationMeta,omitempty"`
	FiledRecordID      string              `json:"filedRecordId,omitempty"`
	ConversationHandle string              `json:"conversationHandle,omitempty"`
	ClarificationText  string              `json:"clarificationText,omitempty"`
	Round              int                 `json:"round"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

// BucketRecord is the per-bucket document created for classified/pending captures
// People records carry Name; the other three carry Title
type BucketRecord struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name,omitempty"`
	Title              string              `json:"title,omitempty"`
	RawText            string              `json:"rawText"`
	InboxRecordID      string              `json:"inboxRecordId"`
	ClassificationMeta *ClassificationMeta `json:"classificationMeta,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
}
