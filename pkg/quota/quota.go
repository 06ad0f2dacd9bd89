// Package quota decides whether an upload fits under a user's storage ceiling.
//
// The check reads the current usage and the ceiling without reserving
// anything: two uploads admitted concurrently can jointly exceed the quota.
package quota

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"coffrefort/pkg/models"
)

// Scope selects the usage an upload is compared against.
type Scope string

const (
	// ScopeGlobal compares the sum of every user's files to the uploader's quota.
	ScopeGlobal Scope = "global"
	// ScopeUser compares only the uploader's own files.
	ScopeUser Scope = "user"
)

// ParseScope accepts "global" and "user" in any case. Empty means global.
func ParseScope(value string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(value))) {
	case "", ScopeGlobal:
		return ScopeGlobal, nil
	case ScopeUser:
		return ScopeUser, nil
	default:
		return "", fmt.Errorf("unknown quota scope %q", value)
	}
}

// Source reads sizes and ceilings from the catalog.
type Source interface {
	TotalSize(ctx context.Context) (int64, error)
	TotalSizeByUser(ctx context.Context, userID int64) (int64, error)
	UserQuotaTotal(ctx context.Context, userID int64) (int64, error)
}

// ExceededError reports a rejected admission.
type ExceededError struct {
	UserID    int64
	Used      int64
	Requested int64
	Total     int64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s used + %s requested > %s",
		humanize.IBytes(uint64(max(e.Used, 0))),
		humanize.IBytes(uint64(max(e.Requested, 0))),
		humanize.IBytes(uint64(max(e.Total, 0))))
}

// Ledger answers quota questions for the upload pipeline and the API.
type Ledger struct {
	source Source
	scope  Scope
}

func NewLedger(source Source, scope Scope) *Ledger {
	if scope == "" {
		scope = ScopeGlobal
	}
	return &Ledger{source: source, scope: scope}
}

func (l *Ledger) Scope() Scope {
	return l.scope
}

// CurrentTotal is the usage an upload by userID is compared against.
func (l *Ledger) CurrentTotal(ctx context.Context, userID int64) (int64, error) {
	if l.scope == ScopeUser {
		return l.source.TotalSizeByUser(ctx, userID)
	}
	return l.source.TotalSize(ctx)
}

// Admit returns *ExceededError when adding size bytes would pass the ceiling.
func (l *Ledger) Admit(ctx context.Context, userID, size int64) error {
	total, err := l.source.UserQuotaTotal(ctx, userID)
	if err != nil {
		return err
	}
	current, err := l.CurrentTotal(ctx, userID)
	if err != nil {
		return err
	}

	if !Allows(total, current, size) {
		return &ExceededError{UserID: userID, Used: current, Requested: size, Total: total}
	}
	return nil
}

// Usage describes userID's own consumption against its ceiling.
func (l *Ledger) Usage(ctx context.Context, userID int64) (*models.QuotaUsage, error) {
	used, err := l.source.TotalSizeByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	total, err := l.source.UserQuotaTotal(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &models.QuotaUsage{
		UserID:         userID,
		UsedBytes:      used,
		TotalBytes:     total,
		AvailableBytes: Available(total, used),
		PercentUsed:    Percent(used, total),
	}, nil
}

// Allows reports whether size more bytes fit. A zero total means unlimited.
func Allows(total, used, size int64) bool {
	return total <= 0 || used+size <= total
}

// Percent is used/total*100 rounded to two decimals, 0 when total <= 0.
func Percent(used, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(used)/float64(total)*100*100) / 100
}

// Available never goes below zero.
func Available(total, used int64) int64 {
	if total <= used {
		return 0
	}
	return total - used
}
