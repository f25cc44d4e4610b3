package model

import (
	"fmt"
	"sort"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// RootFolderID is the sentinel parent id for top-level items.
const RootFolderID = "root"

// Kind distinguishes files from folders.
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// Entity is a named entity extracted by the content-analysis pipeline.
type Entity struct {
	Text  string  `json:"text" dynamodbav:"text"`
	Type  string  `json:"type" dynamodbav:"type"`
	Score float64 `json:"score" dynamodbav:"score"`
}

// AIMetadata is the opaque annotation written by the content-analysis
// collaborator. The service stores and returns it; it never interprets
// the contents beyond search matching on labels and keywords.
type AIMetadata struct {
	Labels        []string `json:"labels,omitempty" dynamodbav:"labels,omitempty"`
	Keywords      []string `json:"keywords,omitempty" dynamodbav:"keywords,omitempty"`
	ExtractedText string   `json:"extractedText,omitempty" dynamodbav:"extracted_text,omitempty"`
	Confidence    float64  `json:"confidence,omitempty" dynamodbav:"confidence,omitempty"`
	Entities      []Entity `json:"entities,omitempty" dynamodbav:"entities,omitempty"`
}

// Item is a node in the per-owner tree, either a file or a folder.
//
// The table uses a single-table layout: the primary key is
// (PK=USER#{ownerId}, SK=ITEM#{itemId}) and GSI1 is the child index keyed by
// (GSI1PK=USER#{ownerId}#PARENT#{parentId}, GSI1SK=TYPE#{kind}#NAME#{name}).
// The GSI attributes are a projection of OwnerID/ParentID/Kind/Name and must
// be rewritten in the same write whenever one of those fields changes.
type Item struct {
	PK     string `json:"-" dynamodbav:"pk"`
	SK     string `json:"-" dynamodbav:"sk"`
	GSI1PK string `json:"-" dynamodbav:"gsi1pk"`
	GSI1SK string `json:"-" dynamodbav:"gsi1sk"`

	ItemID    string     `json:"itemId" dynamodbav:"item_id"`
	OwnerID   string     `json:"ownerId" dynamodbav:"owner_id"`
	Name      string     `json:"name" dynamodbav:"name"`
	Kind      Kind       `json:"kind" dynamodbav:"kind"`
	ParentID  string     `json:"parentId" dynamodbav:"parent_id"`
	CreatedAt time.Time  `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" dynamodbav:"updated_at"`
	Starred   bool       `json:"starred" dynamodbav:"starred"`
	Deleted   bool       `json:"deleted" dynamodbav:"deleted"`
	DeletedAt *time.Time `json:"deletedAt,omitempty" dynamodbav:"deleted_at,omitempty"`
	IsSecret  bool       `json:"isSecret" dynamodbav:"is_secret"`

	// File-only fields; empty for folders.
	MIMEType  string `json:"mimeType,omitempty" dynamodbav:"mime_type,omitempty"`
	SizeBytes int64  `json:"sizeBytes,omitempty" dynamodbav:"size_bytes,omitempty"`
	ObjectKey string `json:"objectKey,omitempty" dynamodbav:"object_key,omitempty"`

	AIMetadata *AIMetadata `json:"aiMetadata,omitempty" dynamodbav:"ai_metadata,omitempty"`
}

// ItemPK builds the partition key for an owner.
func ItemPK(ownerID string) string {
	return "USER#" + ownerID
}

// ItemSK builds the sort key for an item.
func ItemSK(itemID string) string {
	return "ITEM#" + itemID
}

// ChildIndexPK builds the GSI1 partition key for child enumeration.
func ChildIndexPK(ownerID, parentID string) string {
	return fmt.Sprintf("USER#%s#PARENT#%s", ownerID, parentID)
}

// ChildIndexSK builds the GSI1 sort key, grouping children by kind and
// then by name. Presentation order comes from SortSiblings, not the index.
func ChildIndexSK(kind Kind, name string) string {
	return fmt.Sprintf("TYPE#%s#NAME#%s", kind, name)
}

// SetKeys recomputes the primary and index key attributes from the item's
// fields. Must be called before any write.
func (it *Item) SetKeys() {
	it.PK = ItemPK(it.OwnerID)
	it.SK = ItemSK(it.ItemID)
	it.GSI1PK = ChildIndexPK(it.OwnerID, it.ParentID)
	it.GSI1SK = ChildIndexSK(it.Kind, it.Name)
}

// IsFolder reports whether the item is a folder.
func (it *Item) IsFolder() bool {
	return it.Kind == KindFolder
}

// Validate checks the field combinations required before persisting an item.
func (it *Item) Validate() error {
	if it.ItemID == "" {
		return fmt.Errorf("itemId is required")
	}
	if it.OwnerID == "" {
		return fmt.Errorf("ownerId is required")
	}
	if it.Name == "" {
		return fmt.Errorf("name is required")
	}
	if it.ParentID == "" {
		return fmt.Errorf("parentId is required")
	}
	if it.Deleted != (it.DeletedAt != nil) {
		return fmt.Errorf("deletedAt must be set exactly when deleted is true")
	}
	switch it.Kind {
	case KindFolder:
		if it.MIMEType != "" || it.SizeBytes != 0 || it.ObjectKey != "" {
			return fmt.Errorf("folders cannot carry file fields")
		}
	case KindFile:
		if it.MIMEType == "" {
			return fmt.Errorf("mimeType is required for files")
		}
		if it.ObjectKey == "" {
			return fmt.Errorf("objectKey is required for files")
		}
		if it.SizeBytes < 0 {
			return fmt.Errorf("sizeBytes cannot be negative")
		}
	default:
		return fmt.Errorf("unknown kind %q", it.Kind)
	}
	return nil
}

// SortSiblings orders items the way listings present them: folders before
// files, then by locale-aware name comparison, ties broken by item id.
func SortSiblings(items []Item) {
	c := collate.New(language.Und)
	sort.SliceStable(items, func(i, j int) bool {
		a, b := &items[i], &items[j]
		if a.Kind != b.Kind {
			return a.Kind == KindFolder
		}
		if cmp := c.CompareString(a.Name, b.Name); cmp != 0 {
			return cmp < 0
		}
		return a.ItemID < b.ItemID
	})
}
