package model

import (
	"encoding/json"
	"time"
)

// ShareGrant is what a share token unlocks: one file of one owner until ExpiresAt.
type ShareGrant struct {
	OwnerID   string
	FileID    FileID
	ExpiresAt time.Time
}

// ActiveAt reports whether the grant may still be used at now. The expiry
// instant itself is inclusive.
func (g ShareGrant) ActiveAt(now time.Time) bool {
	return !now.After(g.ExpiresAt)
}

// Matches reports whether the grant points at file of owner.
func (g ShareGrant) Matches(ownerID string, file FileID) bool {
	return g.OwnerID == ownerID && g.FileID == file
}

// shareGrantDoc is the persisted shape; expiresAt is Unix milliseconds.
type shareGrantDoc struct {
	UID       string `json:"uid"`
	Filename  FileID `json:"filename"`
	ExpiresAt int64  `json:"expiresAt"`
}

func (g ShareGrant) MarshalJSON() ([]byte, error) {
	return json.Marshal(shareGrantDoc{
		UID:       g.OwnerID,
		Filename:  g.FileID,
		ExpiresAt: g.ExpiresAt.UnixMilli(),
	})
}

func (g *ShareGrant) UnmarshalJSON(data []byte) error {
	var doc shareGrantDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	g.OwnerID = doc.UID
	g.FileID = doc.Filename
	g.ExpiresAt = time.UnixMilli(doc.ExpiresAt)
	return nil
}
