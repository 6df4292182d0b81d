package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/mattn/go-sqlite3"

	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/preview"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/security"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/submission"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidToken = errors.New("invalid token")
)

// User is an authenticated caller.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID          string `bun:",pk"`
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

type apiToken struct {
	bun.BaseModel `bun:"table:api_tokens"`

	ID        int64 `bun:",pk,autoincrement"`
	UserID    string
	LookupKey string
	TokenHash string
	CreatedAt time.Time
}

type teamMember struct {
	bun.BaseModel `bun:"table:team_members"`

	TeamID string
	UserID string
}

type submissionRow struct {
	bun.BaseModel `bun:"table:submissions"`

	ID            string `bun:",pk"`
	TeamID        string
	Date          string
	Brand         string
	StoreSite     string
	StoreLocation string
	Locations     string
	Conditions    string
	ShelfSpace    string
	FacesOnShelf  string
	Notes         string
	Price         sql.NullFloat64
	Tags          string
	PriorityLevel sql.NullInt64
	SubmittedBy   string
	Photo1        string
	Photo2        string
	Photo3        string
	Photo4        string
	Photo5        string
	Photo6        string
	CreatedAt     time.Time
}

type attachmentRow struct {
	bun.BaseModel `bun:"table:attachments"`

	ID        string `bun:",pk"`
	MessageID string
	TeamID    string
	Bucket    string
	Path      string
	Title     string
	CreatedAt time.Time
}

// Store is the relational collaborator: row lookups by id plus the
// team membership check. It owns its own concurrency guarantees.
type Store struct {
	db *bun.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	sqldb.SetConnMaxLifetime(15 * time.Minute)

	return &Store{db: bun.NewDB(sqldb, sqlitedialect.New())}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InitSchema creates tables on first boot.
func (s *Store) InitSchema(ctx context.Context) error {
	models := []any{
		(*User)(nil),
		(*apiToken)(nil),
		(*teamMember)(nil),
		(*submissionRow)(nil),
		(*attachmentRow)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return nil
}

// SubmissionByID loads one submission and parses it into the typed
// record at this boundary. The second return is the owning team.
func (s *Store) SubmissionByID(ctx context.Context, id string) (submission.Record, string, error) {
	var row submissionRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return submission.Record{}, "", ErrNotFound
	}
	if err != nil {
		return submission.Record{}, "", fmt.Errorf("submission %s: %w", id, err)
	}

	// Stored columns are historically loose (tags may be a JSON array
	// or a comma-joined string); FromPayload normalizes all of it.
	payload := map[string]any{
		"id":             row.ID,
		"date":           row.Date,
		"brand":          row.Brand,
		"store_site":     row.StoreSite,
		"store_location": row.StoreLocation,
		"locations":      row.Locations,
		"conditions":     row.Conditions,
		"shelf_space":    row.ShelfSpace,
		"faces_on_shelf": row.FacesOnShelf,
		"notes":          row.Notes,
		"submitted_by":   row.SubmittedBy,
		"tags":           row.Tags,
		"photo1":         row.Photo1,
		"photo2":         row.Photo2,
		"photo3":         row.Photo3,
		"photo4":         row.Photo4,
		"photo5":         row.Photo5,
		"photo6":         row.Photo6,
	}
	if row.Price.Valid {
		payload["price"] = row.Price.Float64
	}
	if row.PriorityLevel.Valid {
		payload["priority_level"] = row.PriorityLevel.Int64
	}

	rec, err := submission.FromPayload(payload)
	if err != nil {
		return submission.Record{}, "", fmt.Errorf("submission %s: %w", id, err)
	}
	return rec, row.TeamID, nil
}

// IsTeamMember answers the membership check used for authorization.
func (s *Store) IsTeamMember(ctx context.Context, teamID, userID string) (bool, error) {
	count, err := s.db.NewSelect().Model((*teamMember)(nil)).
		Where("team_id = ?", teamID).
		Where("user_id = ?", userID).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("membership %s/%s: %w", teamID, userID, err)
	}
	return count > 0, nil
}

func (s *Store) AttachmentByID(ctx context.Context, id string) (*preview.Attachment, error) {
	var row attachmentRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, preview.ErrAttachmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("attachment %s: %w", id, err)
	}
	return attachmentFromRow(row), nil
}

func (s *Store) AttachmentByMessageID(ctx context.Context, messageID string) (*preview.Attachment, error) {
	var row attachmentRow
	err := s.db.NewSelect().Model(&row).Where("message_id = ?", messageID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, preview.ErrAttachmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("attachment for message %s: %w", messageID, err)
	}
	return attachmentFromRow(row), nil
}

// UserByToken resolves a bearer token to its user. The token is located
// by an unsalted fingerprint, then verified against the salted hash.
func (s *Store) UserByToken(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	var tokens []apiToken
	err := s.db.NewSelect().Model(&tokens).
		Where("lookup_key = ?", security.TokenLookupKey(token)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("token lookup: %w", err)
	}

	for _, candidate := range tokens {
		if !security.VerifyToken(token, candidate.TokenHash) {
			continue
		}
		var user User
		if err := s.db.NewSelect().Model(&user).Where("id = ?", candidate.UserID).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrInvalidToken
			}
			return nil, fmt.Errorf("token user: %w", err)
		}
		return &user, nil
	}
	return nil, ErrInvalidToken
}

// IssueToken creates a user's bearer token and returns the plaintext
// exactly once.
func (s *Store) IssueToken(ctx context.Context, userID string) (string, error) {
	token, err := security.NewToken()
	if err != nil {
		return "", err
	}
	hash, err := security.HashToken(token)
	if err != nil {
		return "", err
	}
	row := apiToken{
		UserID:    userID,
		LookupKey: security.TokenLookupKey(token),
		TokenHash: hash,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return token, nil
}

// EnsureUser upserts a user row by email and returns its id.
func (s *Store) EnsureUser(ctx context.Context, email, displayName string) (string, error) {
	var existing User
	err := s.db.NewSelect().Model(&existing).Where("email = ?", email).Scan(ctx)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("user by email: %w", err)
	}

	user := User{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(&user).Exec(ctx); err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}
	return user.ID, nil
}

// AddTeamMember records membership; used by seeding and tests.
func (s *Store) AddTeamMember(ctx context.Context, teamID, userID string) error {
	_, err := s.db.NewInsert().Model(&teamMember{TeamID: teamID, UserID: userID}).Exec(ctx)
	return err
}

// PutSubmission inserts a submission row; used by seeding and tests.
func (s *Store) PutSubmission(ctx context.Context, row SubmissionSeed) error {
	model := submissionRow{
		ID:            row.ID,
		TeamID:        row.TeamID,
		Date:          row.Date,
		Brand:         row.Brand,
		StoreSite:     row.StoreSite,
		StoreLocation: row.StoreLocation,
		Locations:     row.Locations,
		Conditions:    row.Conditions,
		ShelfSpace:    row.ShelfSpace,
		FacesOnShelf:  row.FacesOnShelf,
		Notes:         row.Notes,
		Tags:          row.Tags,
		SubmittedBy:   row.SubmittedBy,
		CreatedAt:     time.Now().UTC(),
	}
	if row.Price != nil {
		model.Price = sql.NullFloat64{Float64: *row.Price, Valid: true}
	}
	if row.Priority != nil {
		model.PriorityLevel = sql.NullInt64{Int64: int64(*row.Priority), Valid: true}
	}
	photos := []*string{&model.Photo1, &model.Photo2, &model.Photo3, &model.Photo4, &model.Photo5, &model.Photo6}
	for i, ref := range row.Photos {
		if i >= len(photos) {
			break
		}
		*photos[i] = ref
	}
	_, err := s.db.NewInsert().Model(&model).Exec(ctx)
	return err
}

// PutAttachment inserts an attachment row; used by seeding and tests.
func (s *Store) PutAttachment(ctx context.Context, att preview.Attachment, messageID string) error {
	row := attachmentRow{
		ID:        att.ID,
		MessageID: messageID,
		TeamID:    att.TeamID,
		Bucket:    att.Bucket,
		Path:      att.Path,
		Title:     att.Title,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.NewInsert().Model(&row).Exec(ctx)
	return err
}

// SubmissionSeed is the write shape for seeding submissions.
type SubmissionSeed struct {
	ID            string
	TeamID        string
	Date          string
	Brand         string
	StoreSite     string
	StoreLocation string
	Locations     string
	Conditions    string
	ShelfSpace    string
	FacesOnShelf  string
	Notes         string
	Tags          string
	SubmittedBy   string
	Price         *float64
	Priority      *int
	Photos        []string
}

func attachmentFromRow(row attachmentRow) *preview.Attachment {
	return &preview.Attachment{
		ID:     row.ID,
		TeamID: row.TeamID,
		Bucket: row.Bucket,
		Path:   row.Path,
		Title:  row.Title,
	}
}
