package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog"

	"github.com/skyvault/backend/internal/model"
	"github.com/skyvault/backend/internal/objectstore"
	"github.com/skyvault/backend/internal/store"
	"github.com/skyvault/backend/internal/tree"
	"github.com/skyvault/backend/internal/view"
)

const maxNameLength = 255

// ItemHandler serves the tree operations and listings.
type ItemHandler struct {
	engine       *tree.Engine
	objects      objectstore.ObjectStore
	jwtSecret    string
	defaultOwner string
	presignTTL   time.Duration
	opTimeout    time.Duration
	recentLimit  int
	log          zerolog.Logger
}

// NewItemHandler creates an ItemHandler.
func NewItemHandler(engine *tree.Engine, objects objectstore.ObjectStore, jwtSecret, defaultOwner string,
	presignTTL, opTimeout time.Duration, recentLimit int, log zerolog.Logger) *ItemHandler {
	return &ItemHandler{
		engine:       engine,
		objects:      objects,
		jwtSecret:    jwtSecret,
		defaultOwner: defaultOwner,
		presignTTL:   presignTTL,
		opTimeout:    opTimeout,
		recentLimit:  recentLimit,
		log:          log,
	}
}

// opCtx bounds a store-facing operation by the configured timeout.
func (h *ItemHandler) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, h.opTimeout)
}

func (h *ItemHandler) owner(req events.APIGatewayProxyRequest) (string, error) {
	return OwnerID(req, h.jwtSecret, h.defaultOwner)
}

// CreateFolder handles POST /folders.
func (h *ItemHandler) CreateFolder(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ownerID, err := h.owner(req)
	if err != nil {
		return failure(err), nil
	}

	var payload struct {
		Name     string `json:"name"`
		ParentID string `json:"parentId"`
	}
	if err := json.Unmarshal([]byte(req.Body), &payload); err != nil {
		return errorResponse(http.StatusBadRequest, "invalid request body"), nil
	}
	if err := validation.ValidateStruct(&payload,
		validation.Field(&payload.Name, validation.Required, validation.Length(1, maxNameLength)),
	); err != nil {
		return errorResponse(http.StatusBadRequest, err.Error()), nil
	}

	ctx, cancel := h.opCtx(ctx)
	defer cancel()

	item, err := h.engine.CreateFolder(ctx, ownerID, payload.Name, payload.ParentID)
	if err != nil {
		h.log.Error().Err(err).Str("owner", ownerID).Msg("create folder failed")
		return failure(err), nil
	}
	return jsonResponse(http.StatusCreated, map[string]any{"item": item, "message": "Folder created successfully"}), nil
}

// CreateFile handles POST /files: it records file metadata and returns a
// presigned upload URL for the backing object.
func (h *ItemHandler) CreateFile(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ownerID, err := h.owner(req)
	if err != nil {
		return failure(err), nil
	}

	var payload struct {
		FileName string `json:"fileName"`
		FileSize int64  `json:"fileSize"`
		MIMEType string `json:"mimeType"`
		ParentID string `json:"parentId"`
	}
	if err := json.Unmarshal([]byte(req.Body), &payload); err != nil {
		return errorResponse(http.StatusBadRequest, "invalid request body"), nil
	}
	if err := validation.ValidateStruct(&payload,
		validation.Field(&payload.FileName, validation.Required, validation.Length(1, maxNameLength)),
		validation.Field(&payload.MIMEType, validation.Required),
		validation.Field(&payload.FileSize, validation.Min(0)),
	); err != nil {
		return errorResponse(http.StatusBadRequest, err.Error()), nil
	}

	ctx, cancel := h.opCtx(ctx)
	defer cancel()

	item, err := h.engine.CreateFileRecord(ctx, ownerID, payload.FileName, payload.ParentID, payload.MIMEType, payload.FileSize)
	if err != nil {
		h.log.Error().Err(err).Str("owner", ownerID).Msg("create file record failed")
		return failure(err), nil
	}

	uploadURL, err := h.objects.PresignUpload(ctx, item.ObjectKey, item.MIMEType, h.presignTTL)
	if err != nil {
		h.log.Error().Err(err).Str("item", item.ItemID).Msg("presign upload failed")
		return errorResponse(http.StatusInternalServerError, "failed to generate upload URL"), nil
	}

	return jsonResponse(http.StatusCreated, map[string]any{
		"item":      item,
		"uploadUrl": uploadURL,
		"message":   "Upload URL generated successfully",
	}), nil
}

// ListItems handles GET /items with optional parentId, view, category, and
// q parameters.
func (h *ItemHandler) ListItems(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ownerID, err := h.owner(req)
	if err != nil {
		return failure(err), nil
	}

	q := view.Query{
		View:        view.Kind(req.QueryStringParameters["view"]),
		ParentID:    req.QueryStringParameters["parentId"],
		Category:    view.Category(req.QueryStringParameters["category"]),
		Search:      req.QueryStringParameters["q"],
		RecentLimit: h.recentLimit,
	}
	if q.View == "" {
		q.View = view.Drive
	}

	ctx, cancel := h.opCtx(ctx)
	defer cancel()

	// Plain folder listings fetch from the child index; everything else
	// needs the owner's full item set. Either way the projection applies
	// the view's filters (trashed and secret items never surface in drive).
	var source []model.Item
	if q.View == view.Drive && q.Category == "" && q.Search == "" {
		source, err = h.engine.ListChildren(ctx, ownerID, q.ParentID)
	} else {
		source, err = h.engine.Items(ctx, ownerID)
	}
	if err != nil {
		h.log.Error().Err(err).Str("owner", ownerID).Str("view", string(q.View)).Msg("list items failed")
		return failure(err), nil
	}
	items := view.Project(source, q)

	if items == nil {
		items = []model.Item{}
	}
	parentID := q.ParentID
	if parentID == "" {
		parentID = model.RootFolderID
	}
	return jsonResponse(http.StatusOK, map[string]any{
		"items":    items,
		"count":    len(items),
		"parentId": parentID,
		"view":     q.View,
	}), nil
}

// UpdateItem handles PATCH /items/{id}: rename, move, star, trash/restore,
// and secret toggles in one partial update.
func (h *ItemHandler) UpdateItem(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ownerID, err := h.owner(req)
	if err != nil {
		return failure(err), nil
	}
	itemID := req.PathParameters["id"]
	if itemID == "" {
		return errorResponse(http.StatusBadRequest, "missing item id"), nil
	}

	var payload struct {
		Name     *string `json:"name"`
		ParentID *string `json:"parentId"`
		Starred  *bool   `json:"starred"`
		Deleted  *bool   `json:"deleted"`
		IsSecret *bool   `json:"isSecret"`
	}
	if err := json.Unmarshal([]byte(req.Body), &payload); err != nil {
		return errorResponse(http.StatusBadRequest, "invalid request body"), nil
	}
	if err := validation.ValidateStruct(&payload,
		validation.Field(&payload.Name, validation.NilOrNotEmpty, validation.Length(1, maxNameLength)),
		validation.Field(&payload.ParentID, validation.NilOrNotEmpty),
	); err != nil {
		return errorResponse(http.StatusBadRequest, err.Error()), nil
	}

	p := store.Patch{
		Name:     payload.Name,
		ParentID: payload.ParentID,
		Starred:  payload.Starred,
		Deleted:  payload.Deleted,
		IsSecret: payload.IsSecret,
	}
	if p.Empty() {
		return errorResponse(http.StatusBadRequest, "must provide name, parentId, starred, deleted, or isSecret"), nil
	}

	ctx, cancel := h.opCtx(ctx)
	defer cancel()

	item, err := h.engine.Apply(ctx, ownerID, itemID, p)
	if err != nil {
		h.log.Error().Err(err).Str("owner", ownerID).Str("item", itemID).Msg("update item failed")
		return failure(err), nil
	}
	return jsonResponse(http.StatusOK, map[string]any{"item": item, "message": "Item updated successfully"}), nil
}

// DeleteItem handles DELETE /items/{id}: permanent, recursive removal.
func (h *ItemHandler) DeleteItem(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ownerID, err := h.owner(req)
	if err != nil {
		return failure(err), nil
	}
	itemID := req.PathParameters["id"]
	if itemID == "" {
		return errorResponse(http.StatusBadRequest, "missing item id"), nil
	}

	ctx, cancel := h.opCtx(ctx)
	defer cancel()

	deleted, err := h.engine.HardDelete(ctx, ownerID, itemID)
	if err != nil {
		var partial *tree.PartialDeleteError
		if errors.As(err, &partial) {
			h.log.Error().Err(err).Str("owner", ownerID).Str("item", itemID).
				Int("deleted", len(partial.Deleted)).Msg("recursive delete incomplete")
			return jsonResponse(http.StatusInternalServerError, map[string]any{
				"error":          "recursive delete incomplete; retry to converge",
				"deletedItemIds": partial.Deleted,
			}), nil
		}
		return failure(err), nil
	}

	return jsonResponse(http.StatusOK, map[string]any{
		"message":      "Item deleted successfully",
		"itemId":       itemID,
		"deletedCount": len(deleted),
	}), nil
}

// Download handles GET /items/{id}/download with a presigned object URL.
func (h *ItemHandler) Download(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.presignedGet(ctx, req, false)
}

// Thumbnail handles GET /items/{id}/thumbnail. Only media files have one;
// the browser renders the object itself.
func (h *ItemHandler) Thumbnail(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.presignedGet(ctx, req, true)
}

func (h *ItemHandler) presignedGet(ctx context.Context, req events.APIGatewayProxyRequest, thumbnail bool) (events.APIGatewayProxyResponse, error) {
	ownerID, err := h.owner(req)
	if err != nil {
		return failure(err), nil
	}
	itemID := req.PathParameters["id"]
	if itemID == "" {
		return errorResponse(http.StatusBadRequest, "missing item id"), nil
	}

	ctx, cancel := h.opCtx(ctx)
	defer cancel()

	item, err := h.engine.Get(ctx, ownerID, itemID)
	if err != nil {
		return failure(err), nil
	}
	if item.IsFolder() {
		return errorResponse(http.StatusBadRequest, "cannot download a folder"), nil
	}
	if thumbnail {
		cat := view.CategoryOf(item.MIMEType)
		if cat != view.CategoryImages && cat != view.CategoryVideos {
			return errorResponse(http.StatusNotFound, "thumbnail not available for this file type"), nil
		}
	}

	filename := item.Name
	if thumbnail {
		filename = "" // inline display, no attachment disposition
	}
	url, err := h.objects.PresignDownload(ctx, item.ObjectKey, filename, h.presignTTL)
	if err != nil {
		h.log.Error().Err(err).Str("item", itemID).Msg("presign download failed")
		return errorResponse(http.StatusInternalServerError, "failed to generate download URL"), nil
	}

	return jsonResponse(http.StatusOK, map[string]any{
		"downloadUrl": url,
		"fileName":    item.Name,
		"mimeType":    item.MIMEType,
		"size":        item.SizeBytes,
	}), nil
}

// AttachMetadata handles PUT /items/{id}/metadata, the write path of the
// content-analysis collaborator. Missing items are a silent no-op.
func (h *ItemHandler) AttachMetadata(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ownerID, err := h.owner(req)
	if err != nil {
		return failure(err), nil
	}
	itemID := req.PathParameters["id"]
	if itemID == "" {
		return errorResponse(http.StatusBadRequest, "missing item id"), nil
	}

	var meta model.AIMetadata
	if err := json.Unmarshal([]byte(req.Body), &meta); err != nil {
		return errorResponse(http.StatusBadRequest, "invalid metadata body"), nil
	}

	ctx, cancel := h.opCtx(ctx)
	defer cancel()

	if err := h.engine.AttachAIMetadata(ctx, ownerID, itemID, &meta); err != nil {
		h.log.Error().Err(err).Str("owner", ownerID).Str("item", itemID).Msg("attach metadata failed")
		return failure(err), nil
	}
	return jsonResponse(http.StatusOK, map[string]any{"message": "Metadata stored", "itemId": itemID}), nil
}
