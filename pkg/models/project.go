package models

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// OwnerID references a user id but is not enforced.
	OwnerID   string `json:"ownerId"`
	CreatedAt int64  `json:"createdAt"`
	// Content is the shared whiteboard body; concurrent writes resolve last-writer-wins.
	Content          string  `json:"content"`
	CompletionStatus float64 `json:"completionStatus"`
}

type Message struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	SenderID  string `json:"senderId"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
}

type Activity struct {
	ID           string `json:"id"`
	ProjectID    string `json:"projectId"`
	UserID       string `json:"userId"`
	ActivityType string `json:"activityType"`
	Text         string `json:"text"`
	Timestamp    int64  `json:"timestamp"`
}

// Activity types written by the server itself.
const (
	ActivityProjectCreated = "project_created"
	ActivityContentUpdated = "content_updated"
	ActivityStatusUpdated  = "status_updated"
	ActivityMessageSent    = "message_sent"
)
