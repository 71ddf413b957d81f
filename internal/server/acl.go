package server

import (
	"context"

	"capsd/internal/models"
	"capsd/internal/store"
)

// ACLEvaluator answers whether a subject may read (and therefore mint
// tokens for) a memory. The answer is evaluated once at mint or access
// time; a token already minted stays valid for its TTL even if the
// underlying grant is revoked afterwards.
type ACLEvaluator struct {
	store *store.Store
}

// NewACLEvaluator creates an evaluator over the given store.
func NewACLEvaluator(st *store.Store) *ACLEvaluator {
	return &ACLEvaluator{store: st}
}

// CanReadMemory reports whether subject may read the memory and returns the
// memory when it may. A missing memory yields (nil, false, nil): callers
// must not be able to distinguish "absent" from "not yours".
func (a *ACLEvaluator) CanReadMemory(ctx context.Context, subject, memoryID string) (*models.Memory, bool, error) {
	memory, err := a.store.GetMemory(ctx, memoryID)
	if err != nil {
		return nil, false, err
	}
	if memory == nil {
		return nil, false, nil
	}

	ok, err := a.canReadCapsule(ctx, subject, memory.CapsuleID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return memory, true, nil
}

// CanMint is read permission: whoever can read a memory may delegate that
// read by minting a token for it.
func (a *ACLEvaluator) CanMint(ctx context.Context, subject, memoryID string) (*models.Memory, bool, error) {
	return a.CanReadMemory(ctx, subject, memoryID)
}

// CanWriteMemory reports whether subject owns the capsule holding the
// memory. Writes are never delegated through grants.
func (a *ACLEvaluator) CanWriteMemory(ctx context.Context, subject, memoryID string) (*models.Memory, bool, error) {
	memory, err := a.store.GetMemory(ctx, memoryID)
	if err != nil {
		return nil, false, err
	}
	if memory == nil {
		return nil, false, nil
	}
	capsule, err := a.store.GetCapsule(ctx, memory.CapsuleID)
	if err != nil {
		return nil, false, err
	}
	if capsule == nil || capsule.OwnerSubject != subject {
		return nil, false, nil
	}
	return memory, true, nil
}

func (a *ACLEvaluator) canReadCapsule(ctx context.Context, subject, capsuleID string) (bool, error) {
	capsule, err := a.store.GetCapsule(ctx, capsuleID)
	if err != nil {
		return false, err
	}
	if capsule == nil {
		return false, nil
	}
	if capsule.OwnerSubject == subject {
		return true, nil
	}
	return a.store.HasGrant(ctx, capsuleID, subject)
}
