package models

import (
	"time"
)

const (
	LinkStatusUnlinked       = "unlinked"
	LinkStatusLinking        = "linking"
	LinkStatusLinked         = "linked"
	LinkStatusRelinkRequired = "relink_required"
)

const (
	LeasePurposeSync   = "sync"
	LeasePurposeLink   = "link"
	LeasePurposeUnlink = "unlink"
)

// AccountLink is the per-user bank connection record (doc ID = uid). The
// cursor and lease are only written through versioned transactions.
type AccountLink struct {
	UID              string     `firestore:"uid" json:"uid"`
	Linked           bool       `firestore:"linked" json:"linked"`
	Status           string     `firestore:"status" json:"status"`
	ItemID           string     `firestore:"itemId" json:"itemId,omitempty"`
	Institution      string     `firestore:"institution" json:"institution,omitempty"`
	AccessCredential string     `firestore:"accessCredential" json:"-"` // KMS ciphertext at rest
	SyncCursor       string     `firestore:"syncCursor" json:"-"`       // empty = full resync
	Lease            *SyncLease `firestore:"lease" json:"lease,omitempty"`
	Version          int64      `firestore:"version" json:"version"`
	LastSyncedAt     time.Time  `firestore:"lastSyncedAt" json:"lastSyncedAt,omitempty"`
	FlaggedAt        time.Time  `firestore:"flaggedAt" json:"-"`
	CreatedAt        time.Time  `firestore:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time  `firestore:"updatedAt" json:"updatedAt"`
}

// SyncLease is a time-bounded exclusive hold on a user's sync eligibility.
type SyncLease struct {
	Holder     string    `firestore:"holder" json:"-"`
	Purpose    string    `firestore:"purpose" json:"purpose"`
	AcquiredAt time.Time `firestore:"acquiredAt" json:"acquiredAt"`
	ExpiresAt  time.Time `firestore:"expiresAt" json:"expiresAt"`
}

// Active reports whether the lease still excludes other holders at now.
func (l *SyncLease) Active(now time.Time) bool {
	return l != nil && now.Before(l.ExpiresAt)
}

// HeldBy reports whether holder owns an unexpired lease.
func (l *SyncLease) HeldBy(holder string, now time.Time) bool {
	return l.Active(now) && l.Holder == holder
}

// FlaggedDuringLease reports whether the relink flag was raised after the
// current lease was taken. A commit by that lease must not clear it.
func (a *AccountLink) FlaggedDuringLease() bool {
	return a.Status == LinkStatusRelinkRequired && a.Lease != nil && a.FlaggedAt.After(a.Lease.AcquiredAt)
}

// EffectiveStatus folds an in-flight link lease into the reported status.
func (a *AccountLink) EffectiveStatus(now time.Time) string {
	if !a.Linked && a.Lease.Active(now) && a.Lease.Purpose == LeasePurposeLink {
		return LinkStatusLinking
	}
	if a.Status == "" {
		return LinkStatusUnlinked
	}
	return a.Status
}
