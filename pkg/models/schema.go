package models

import (
	"encoding/json"

	"github.com/SHAIKYASIR/skillsync/pkg/store"
)

// Table names.
const (
	Users      = "users"
	Projects   = "projects"
	Messages   = "messages"
	Activities = "activities"
)

// Index names.
const (
	ByToken          = "by_token"
	BySubscriptionID = "by_subscription_id"
	ByOwner          = "by_owner"
	ByProject        = "by_project"
)

// Query caps.
const (
	MessageListLimit  = 100
	ActivityListLimit = 50
)

// Tables returns the store schema for every entity.
func Tables() []*store.Table {
	return []*store.Table{
		{
			Name: Users,
			Fields: []store.Field{
				{Name: "tokenIdentifier", Kind: store.KindString, Required: true},
				{Name: "email", Kind: store.KindString, Required: true},
				{Name: "subscriptionEndsOn", Kind: store.KindNumber},
				{Name: "subscriptionId", Kind: store.KindString},
			},
			Indexes: []store.Index{
				{Name: ByToken, Field: "tokenIdentifier", Unique: true},
				{Name: BySubscriptionID, Field: "subscriptionId"},
			},
		},
		{
			Name: Projects,
			Fields: []store.Field{
				{Name: "name", Kind: store.KindString, Required: true},
				{Name: "description", Kind: store.KindString},
				{Name: "ownerId", Kind: store.KindString, Required: true},
				{Name: "createdAt", Kind: store.KindNumber},
				{Name: "content", Kind: store.KindString, Required: true},
				{Name: "completionStatus", Kind: store.KindNumber, Required: true},
			},
			Indexes:      []store.Index{{Name: ByOwner, Field: "ownerId"}},
			CreatedField: "createdAt",
		},
		{
			Name: Messages,
			Fields: []store.Field{
				{Name: "projectId", Kind: store.KindString, Required: true, Immutable: true},
				{Name: "senderId", Kind: store.KindString, Required: true, Immutable: true},
				{Name: "content", Kind: store.KindString, Required: true, Immutable: true},
				{Name: "createdAt", Kind: store.KindNumber},
			},
			Indexes:      []store.Index{{Name: ByProject, Field: "projectId"}},
			CreatedField: "createdAt",
		},
		{
			Name: Activities,
			Fields: []store.Field{
				{Name: "projectId", Kind: store.KindString, Required: true, Immutable: true},
				{Name: "userId", Kind: store.KindString, Required: true, Immutable: true},
				{Name: "activityType", Kind: store.KindString, Required: true, Immutable: true},
				{Name: "text", Kind: store.KindString, Required: true, Immutable: true},
				{Name: "timestamp", Kind: store.KindNumber},
			},
			Indexes:      []store.Index{{Name: ByProject, Field: "projectId"}},
			CreatedField: "timestamp",
		},
	}
}

// FromRow decodes a stored row into T.
func FromRow[T any](row store.Row) (T, error) {
	var out T
	b, err := json.Marshal(row)
	if err != nil {
		return out, store.Storage(err, "encode row")
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, store.Storage(err, "decode row")
	}
	return out, nil
}

// FromRows decodes rows in order.
func FromRows[T any](rows []store.Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		v, err := FromRow[T](r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
