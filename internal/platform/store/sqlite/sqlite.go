// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/delivery"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/invites"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/outgoing"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/protocol"
	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/shares"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/store"
)

// FileName is the database file created inside the data directory.
const FileName = "ocmbridge.db"

func init() {
	store.Register("sqlite", NewDriver)
}

// Driver implements store.Driver, delivery.Queue, invites.TokenStore and
// outgoing.Store on SQLite via GORM.
type Driver struct {
	dataDir string
	db      *gorm.DB
}

var (
	_ store.Driver       = (*Driver)(nil)
	_ delivery.Queue     = (*Driver)(nil)
	_ invites.TokenStore = (*Driver)(nil)
	_ outgoing.Store     = (*Driver)(nil)
)

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}
	return &Driver{dataDir: cfg.DataDir}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init opens the database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	dbPath := filepath.Join(d.dataDir, FileName)

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	d.db = db

	if err := db.WithContext(ctx).AutoMigrate(&jobRecord{}, &tokenRecord{}, &outgoingRecord{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// jobRecord is a delivery job with the share flattened into columns.
type jobRecord struct {
	ID                string `gorm:"primaryKey"`
	ShareWith         string
	Name              string
	Description       string
	ProviderID        string
	Owner             string
	OwnerDisplayName  string
	Sender            string
	SenderDisplayName string
	ShareType         string
	ResourceType      string
	Expiration        *int64
	Protocol          string
	LastRun           int64 `gorm:"index"`
	TryCount          int
}

func (jobRecord) TableName() string { return "delivery_jobs" }

func toJobRecord(job delivery.Job) (*jobRecord, error) {
	proto, err := json.Marshal(job.Share.Protocol)
	if err != nil {
		return nil, fmt.Errorf("encode protocol: %w", err)
	}
	s := job.Share
	rec := &jobRecord{
		ID:                job.ID,
		ShareWith:         s.ShareWith,
		Name:              s.Name,
		Description:       s.Description,
		ProviderID:        s.ProviderID,
		Owner:             s.Owner,
		OwnerDisplayName:  s.OwnerDisplayName,
		Sender:            s.Sender,
		SenderDisplayName: s.SenderDisplayName,
		ShareType:         s.ShareType,
		ResourceType:      s.ResourceType,
		Protocol:          string(proto),
		LastRun:           job.LastRun.UnixNano(),
		TryCount:          job.Try,
	}
	if s.Expiration != nil {
		exp := s.Expiration.Unix()
		rec.Expiration = &exp
	}
	return rec, nil
}

func (r *jobRecord) toJob() (delivery.Job, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(r.Protocol), &raw); err != nil {
		return delivery.Job{}, fmt.Errorf("job %s: decode protocol: %w", r.ID, err)
	}
	env, err := protocol.Negotiate(raw)
	if err != nil {
		return delivery.Job{}, fmt.Errorf("job %s: %w", r.ID, err)
	}

	f := shares.Fields{
		ShareWith:         r.ShareWith,
		Name:              r.Name,
		Description:       r.Description,
		ProviderID:        r.ProviderID,
		Owner:             r.Owner,
		OwnerDisplayName:  r.OwnerDisplayName,
		Sender:            r.Sender,
		SenderDisplayName: r.SenderDisplayName,
		ShareType:         r.ShareType,
		ResourceType:      r.ResourceType,
	}
	if r.Expiration != nil {
		exp := time.Unix(*r.Expiration, 0).UTC()
		f.Expiration = &exp
	}

	return delivery.Job{
		ID:      r.ID,
		Share:   shares.Restore(f, env),
		LastRun: time.Unix(0, r.LastRun).UTC(),
		Try:     r.TryCount,
	}, nil
}

// Enqueue stores a new job.
func (d *Driver) Enqueue(ctx context.Context, job delivery.Job) error {
	rec, err := toJobRecord(job)
	if err != nil {
		return err
	}
	if err := d.db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("job %s: %w", job.ID, store.ErrAlreadyExists)
		}
		return err
	}
	return nil
}

// Get returns a job by id.
func (d *Driver) Get(ctx context.Context, id string) (delivery.Job, error) {
	var rec jobRecord
	result := d.db.WithContext(ctx).First(&rec, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return delivery.Job{}, store.ErrNotFound
		}
		return delivery.Job{}, result.Error
	}
	return rec.toJob()
}

// Due returns up to limit jobs last run before the given time, oldest first.
func (d *Driver) Due(ctx context.Context, before time.Time, limit int) ([]delivery.Job, error) {
	var recs []jobRecord
	q := d.db.WithContext(ctx).Where("last_run < ?", before.UnixNano()).Order("last_run, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}

	jobs := make([]delivery.Job, 0, len(recs))
	for i := range recs {
		job, err := recs[i].toJob()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Reschedule updates try count and last run in one conditional UPDATE.
func (d *Driver) Reschedule(ctx context.Context, id string, expectTry, try int, lastRun time.Time) error {
	result := d.db.WithContext(ctx).Model(&jobRecord{}).
		Where("id = ? AND try_count = ?", id, expectTry).
		Updates(map[string]any{"try_count": try, "last_run": lastRun.UnixNano()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return d.missingOrConflict(ctx, &jobRecord{}, id)
	}
	return nil
}

// Remove deletes a job.
func (d *Driver) Remove(ctx context.Context, id string) error {
	result := d.db.WithContext(ctx).Delete(&jobRecord{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// tokenRecord is an invitation token row.
type tokenRecord struct {
	ID                string `gorm:"primaryKey"`
	Token             string `gorm:"index"`
	Sender            string
	RecipientProvider string
	UserID            string
	Email             string
	Name              string
	Status            string
	CreatedUnix       int64
	ExpiresUnix       int64
}

func (tokenRecord) TableName() string { return "invite_tokens" }

func (r *tokenRecord) toToken() invites.Token {
	t := invites.Token{
		ID:                r.ID,
		Token:             r.Token,
		Sender:            r.Sender,
		RecipientProvider: r.RecipientProvider,
		UserID:            r.UserID,
		Email:             r.Email,
		Name:              r.Name,
		Status:            invites.Status(r.Status),
		CreatedAt:         time.Unix(0, r.CreatedUnix).UTC(),
	}
	if r.ExpiresUnix != 0 {
		t.ExpiresAt = time.Unix(0, r.ExpiresUnix).UTC()
	}
	return t
}

// CreateToken stores a new token.
func (d *Driver) CreateToken(ctx context.Context, t invites.Token) error {
	rec := &tokenRecord{
		ID:                t.ID,
		Token:             t.Token,
		Sender:            t.Sender,
		RecipientProvider: t.RecipientProvider,
		UserID:            t.UserID,
		Email:             t.Email,
		Name:              t.Name,
		Status:            string(t.Status),
		CreatedUnix:       t.CreatedAt.UnixNano(),
	}
	if !t.ExpiresAt.IsZero() {
		rec.ExpiresUnix = t.ExpiresAt.UnixNano()
	}
	if err := d.db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("token %s: %w", t.ID, store.ErrAlreadyExists)
		}
		return err
	}
	return nil
}

// FindTokens returns every token matching the triple.
func (d *Driver) FindTokens(ctx context.Context, token, userID, recipientProvider string) ([]invites.Token, error) {
	var recs []tokenRecord
	err := d.db.WithContext(ctx).
		Where("token = ? AND user_id = ? AND recipient_provider = ?", token, userID, recipientProvider).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]invites.Token, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toToken())
	}
	return out, nil
}

// UpdateTokenStatus moves a token from one status to another in one
// conditional UPDATE.
func (d *Driver) UpdateTokenStatus(ctx context.Context, id string, from, to invites.Status) error {
	result := d.db.WithContext(ctx).Model(&tokenRecord{}).
		Where("id = ? AND status = ?", id, string(from)).
		Update("status", string(to))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return d.missingOrConflict(ctx, &tokenRecord{}, id)
	}
	return nil
}

// outgoingRecord is a sent-share row keyed by providerId.
type outgoingRecord struct {
	ProviderID   string `gorm:"primaryKey"`
	ShareWith    string
	ReceiverHost string
	Name         string
	ResourceType string
	ShareType    string
	Owner        string
	Sender       string
	SharedSecret string
	Status       string
	CreatedUnix  int64 `gorm:"index"`
	UpdatedUnix  int64
}

func (outgoingRecord) TableName() string { return "outgoing_shares" }

func (r *outgoingRecord) toShare() outgoing.Share {
	return outgoing.Share{
		ProviderID:   r.ProviderID,
		ShareWith:    r.ShareWith,
		ReceiverHost: r.ReceiverHost,
		Name:         r.Name,
		ResourceType: r.ResourceType,
		ShareType:    r.ShareType,
		Owner:        r.Owner,
		Sender:       r.Sender,
		SharedSecret: r.SharedSecret,
		Status:       outgoing.Status(r.Status),
		CreatedAt:    time.Unix(0, r.CreatedUnix).UTC(),
		UpdatedAt:    time.Unix(0, r.UpdatedUnix).UTC(),
	}
}

// CreateOutgoingShare stores a new sent-share record.
func (d *Driver) CreateOutgoingShare(ctx context.Context, s outgoing.Share) error {
	rec := &outgoingRecord{
		ProviderID:   s.ProviderID,
		ShareWith:    s.ShareWith,
		ReceiverHost: s.ReceiverHost,
		Name:         s.Name,
		ResourceType: s.ResourceType,
		ShareType:    s.ShareType,
		Owner:        s.Owner,
		Sender:       s.Sender,
		SharedSecret: s.SharedSecret,
		Status:       string(s.Status),
		CreatedUnix:  s.CreatedAt.UnixNano(),
		UpdatedUnix:  s.UpdatedAt.UnixNano(),
	}
	if err := d.db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("outgoing share %s: %w", s.ProviderID, store.ErrAlreadyExists)
		}
		return err
	}
	return nil
}

// GetOutgoingShare returns a sent-share record by providerId.
func (d *Driver) GetOutgoingShare(ctx context.Context, providerID string) (outgoing.Share, error) {
	var rec outgoingRecord
	if err := d.db.WithContext(ctx).First(&rec, "provider_id = ?", providerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return outgoing.Share{}, store.ErrNotFound
		}
		return outgoing.Share{}, err
	}
	return rec.toShare(), nil
}

// ListOutgoingShares returns every sent-share record, oldest first.
func (d *Driver) ListOutgoingShares(ctx context.Context) ([]outgoing.Share, error) {
	var recs []outgoingRecord
	if err := d.db.WithContext(ctx).Order("created_unix, provider_id").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]outgoing.Share, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toShare())
	}
	return out, nil
}

// UpdateOutgoingShareStatus moves a record from one status to another in one
// conditional UPDATE.
func (d *Driver) UpdateOutgoingShareStatus(ctx context.Context, providerID string, from, to outgoing.Status, at time.Time) error {
	result := d.db.WithContext(ctx).Model(&outgoingRecord{}).
		Where("provider_id = ? AND status = ?", providerID, string(from)).
		Updates(map[string]any{"status": string(to), "updated_unix": at.UnixNano()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return d.missingOrConflictBy(ctx, &outgoingRecord{}, "provider_id", providerID)
	}
	return nil
}

func (d *Driver) missingOrConflict(ctx context.Context, model any, id string) error {
	return d.missingOrConflictBy(ctx, model, "id", id)
}

func (d *Driver) missingOrConflictBy(ctx context.Context, model any, column, id string) error {
	var n int64
	if err := d.db.WithContext(ctx).Model(model).Where(column+" = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return fmt.Errorf("%s: %w", id, store.ErrConflict)
}
