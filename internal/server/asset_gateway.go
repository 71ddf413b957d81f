package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"capsd/internal/blobstore"
	"capsd/internal/models"
	"capsd/internal/store"
	"capsd/internal/token"
)

const defaultServedContentType = "application/octet-stream"

// AssetGateway resolves a (memory, variant) pair to a concrete asset,
// authorizes it against a presented capability token, and hands back a byte
// stream. Each request walks a short ladder: token validated, scope
// matched, variant resolved, asset located, served. The first unmet
// condition terminates the request.
type AssetGateway struct {
	store  *store.Store
	blobs  blobstore.BlobStore
	tokens *token.Service
}

// ResolvedAsset is a located, authorized asset ready to serve.
type ResolvedAsset struct {
	Asset       *models.Asset
	ContentType string
	Reader      io.ReadCloser
}

// NewAssetGateway wires the gateway.
func NewAssetGateway(st *store.Store, blobs blobstore.BlobStore, tokens *token.Service) *AssetGateway {
	return &AssetGateway{store: st, blobs: blobs, tokens: tokens}
}

// Resolve authorizes and locates the asset named by the request. The caller
// owns the returned reader.
func (g *AssetGateway) Resolve(ctx context.Context, rawToken, memoryID, variant, assetID string) (*ResolvedAsset, error) {
	scope, err := g.tokens.Validate(rawToken)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	if scope.MemoryID != memoryID {
		return nil, forbidden(fmt.Errorf("token not scoped to this memory"))
	}

	asset, err := g.locateAsset(ctx, scope, memoryID, variant, assetID)
	if err != nil {
		return nil, err
	}

	contentType := asset.ContentType
	if contentType == "" {
		contentType = defaultServedContentType
	}

	if asset.IsInline() {
		return &ResolvedAsset{
			Asset:       asset,
			ContentType: contentType,
			Reader:      io.NopCloser(bytes.NewReader(asset.Inline)),
		}, nil
	}

	reader, err := g.blobs.Open(ctx, asset.BlobKey)
	if err != nil {
		return nil, blobFailure(err)
	}
	return &ResolvedAsset{Asset: asset, ContentType: contentType, Reader: reader}, nil
}

// locateAsset implements variant resolution: an explicit asset id is used
// directly and checked against the token scope; otherwise the variant name
// is resolved to the single qualifying asset of the memory.
func (g *AssetGateway) locateAsset(ctx context.Context, scope *token.Scope, memoryID, variant, assetID string) (*models.Asset, error) {
	if assetID != "" {
		if !validateID(assetID) {
			return nil, badRequestCode(fmt.Errorf("invalid asset id"), ErrCodeInvalidID)
		}
		if !scope.AllowsAsset(assetID) {
			return nil, forbidden(fmt.Errorf("token not scoped to this asset"))
		}
		asset, err := g.store.GetAsset(ctx, memoryID, assetID)
		if err != nil {
			return nil, storeFailure(err)
		}
		if asset == nil {
			return nil, notFoundCode(fmt.Errorf("asset not found"), ErrCodeAssetNotFound)
		}
		if !scope.AllowsVariant(asset.Variant) {
			return nil, forbidden(fmt.Errorf("token not scoped to variant %q", asset.Variant))
		}
		return asset, nil
	}

	parsed, err := parseVariantParam(variant)
	if err != nil {
		return nil, err
	}
	if !scope.AllowsVariant(string(parsed)) {
		return nil, forbidden(fmt.Errorf("token not scoped to variant %q", parsed))
	}

	candidates, err := g.store.ListAssetsByVariant(ctx, memoryID, string(parsed))
	if err != nil {
		return nil, storeFailure(err)
	}

	// Narrow to assets the token explicitly lists, if it lists any.
	matched := candidates[:0]
	for i := range candidates {
		if scope.AllowsAsset(candidates[i].ID) {
			matched = append(matched, candidates[i])
		}
	}
	if len(matched) == 0 {
		return nil, notFoundCode(fmt.Errorf("no asset for variant %q", parsed), ErrCodeAssetNotFound)
	}
	// More than one qualifying asset: serve the newest, which is how
	// replacement uploads shadow their predecessors.
	return &matched[0], nil
}

func classifyTokenError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, token.ErrExpired):
		return unauthorizedCode(fmt.Errorf("token expired"), ErrCodeTokenExpired)
	default:
		return unauthorizedCode(fmt.Errorf("token invalid"), ErrCodeTokenInvalid)
	}
}
