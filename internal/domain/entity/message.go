package entity

import "time"

// Message belongs to a conversation and is never modified after it is written.
// A zero Timestamp is filled in by the store on write.
type Message struct {
	ID        string    `json:"id" firestore:"id"`
	Content   string    `json:"content" firestore:"content"`
	From      string    `json:"from" firestore:"from"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp,serverTimestamp"`
}
