package preview

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/imaging"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/objstore"
)

const officeViewerBase = "https://view.officeapps.live.com/op/view.aspx?src="

// Attachment is the resolved metadata for a stored document.
type Attachment struct {
	ID     string
	TeamID string
	Bucket string
	Path   string
	Title  string
}

// AttachmentStore is the relational collaborator surface the preview
// pipeline needs: row lookups plus the membership check.
type AttachmentStore interface {
	AttachmentByID(ctx context.Context, id string) (*Attachment, error)
	AttachmentByMessageID(ctx context.Context, messageID string) (*Attachment, error)
	IsTeamMember(ctx context.Context, teamID, userID string) (bool, error)
}

// ErrAttachmentNotFound is returned by stores when no row matches.
var ErrAttachmentNotFound = errors.New("attachment not found")

// Request describes one preview call after HTTP decoding.
type Request struct {
	// Kind "message" resolves by message id; "direct" takes an
	// explicit team/bucket/path triple.
	Kind    string
	ID      string
	TeamID  string
	Bucket  string
	Path    string
	UserID  string
	MaxRows int
	MaxCols int
}

// Result is the preview payload: either rendered HTML or a URL the
// client opens directly, always with a signed URL for download.
type Result struct {
	OK    bool   `json:"ok"`
	Mode  string `json:"mode"`
	HTML  string `json:"html,omitempty"`
	URL   string `json:"url"`
	Title string `json:"title"`
	Meta  Meta   `json:"meta"`
}

type Config struct {
	SignedURLTTL time.Duration
	Budget       ImageBudget
}

// Service coordinates attachment resolution, authorization, parsing,
// and rendering for document previews.
type Service struct {
	store   AttachmentStore
	storage objstore.Storage
	thumb   Thumbnailer
	signTTL time.Duration
	budget  ImageBudget
	logger  *zap.Logger
}

func NewService(store AttachmentStore, storage objstore.Storage, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.SignedURLTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	budget := cfg.Budget
	if budget.MaxImages <= 0 {
		budget = DefaultImageBudget()
	}
	return &Service{
		store:   store,
		storage: storage,
		thumb:   imaging.NewRaster(logger),
		signTTL: ttl,
		budget:  budget,
		logger:  logger,
	}
}

// Preview resolves, authorizes, and renders one attachment. All
// failures come back as a typed *Error; the membership check runs
// before any object bytes are downloaded.
func (s *Service) Preview(ctx context.Context, req Request) (*Result, *Error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, newError(KindUnauthorized, "caller identity required", nil)
	}

	att, perr := s.resolve(ctx, req)
	if perr != nil {
		return nil, perr
	}
	if perr := normalizeLocation(att); perr != nil {
		return nil, perr
	}

	member, err := s.store.IsTeamMember(ctx, att.TeamID, req.UserID)
	if err != nil {
		return nil, newError(KindParse, "membership lookup failed", err)
	}
	if !member {
		return nil, newError(KindForbidden, "caller is not a member of the attachment's team", nil)
	}

	signedURL, err := s.storage.CreateSignedURL(ctx, att.Bucket, att.Path, s.signTTL)
	if err != nil {
		return nil, newError(KindParse, "unable to sign attachment url", err)
	}

	title := att.Title
	if title == "" {
		title = path.Base(att.Path)
	}

	kind := ClassifyPath(att.Path)
	switch kind {
	case FileCSV, FileXLSX, FileXLS:
		return s.renderTabular(ctx, att, kind, title, signedURL, req)
	case FileOffice:
		return &Result{
			OK:    true,
			Mode:  "url",
			URL:   officeViewerBase + url.QueryEscape(signedURL),
			Title: title,
		}, nil
	default:
		// Images, PDFs, and anything unrecognized open directly.
		return &Result{OK: true, Mode: "url", URL: signedURL, Title: title}, nil
	}
}

func (s *Service) renderTabular(ctx context.Context, att *Attachment, kind FileKind, title, signedURL string, req Request) (*Result, *Error) {
	data, err := s.storage.Download(ctx, att.Bucket, att.Path)
	if err != nil {
		if errors.Is(err, objstore.ErrNotFound) {
			return nil, newError(KindMissingAttachment, "attachment object missing", err)
		}
		return nil, newError(KindParse, "unable to download attachment", err)
	}

	bounds := Bounds{MaxRows: req.MaxRows, MaxCols: req.MaxCols}.Clamp()

	var grid *Grid
	switch kind {
	case FileCSV:
		grid, err = ParseCSV(data, bounds)
	case FileXLSX:
		grid, err = ParseXLSX(data, bounds, s.budget, s.thumb)
	case FileXLS:
		grid, err = ParseXLS(data, bounds)
	}
	if err != nil {
		var pe *Error
		if errors.As(err, &pe) {
			return nil, pe
		}
		return nil, newError(KindParse, "unable to parse attachment", err)
	}

	s.logger.Debug("preview rendered",
		zap.String("attachment", att.ID),
		zap.Int("rows", grid.Meta.RowCount),
		zap.Int("images", grid.Meta.IncludedImages))

	return &Result{
		OK:    true,
		Mode:  "html",
		HTML:  RenderHTML(title, grid),
		URL:   signedURL,
		Title: title,
		Meta:  grid.Meta,
	}, nil
}

// normalizeLocation resolves URL-shaped attachment references into
// bucket/path coordinates before any authorization or download. A URL
// pointing at an unrecognized host is rejected, not guessed at.
func normalizeLocation(att *Attachment) *Error {
	if !strings.HasPrefix(att.Path, "http://") && !strings.HasPrefix(att.Path, "https://") {
		return nil
	}
	bucket, objPath, err := objstore.ParseObjectURL(att.Path)
	if err != nil {
		return newError(KindUnsupportedURL, "attachment reference is not a recognized storage url", err)
	}
	att.Bucket = bucket
	att.Path = objPath
	return nil
}

func (s *Service) resolve(ctx context.Context, req Request) (*Attachment, *Error) {
	switch req.Kind {
	case "message":
		att, err := s.store.AttachmentByMessageID(ctx, req.ID)
		if err != nil {
			if errors.Is(err, ErrAttachmentNotFound) {
				return nil, newError(KindMissingAttachment, "no attachment for message", err)
			}
			return nil, newError(KindParse, "attachment lookup failed", err)
		}
		return att, nil
	case "direct":
		if req.TeamID == "" || req.Bucket == "" || req.Path == "" {
			return nil, newError(KindMissingAttachment, "team_id, bucket, and path are required", nil)
		}
		return &Attachment{
			TeamID: req.TeamID,
			Bucket: req.Bucket,
			Path:   req.Path,
		}, nil
	default:
		att, err := s.store.AttachmentByID(ctx, req.ID)
		if err != nil {
			if errors.Is(err, ErrAttachmentNotFound) {
				return nil, newError(KindMissingAttachment, "attachment not found", err)
			}
			return nil, newError(KindParse, "attachment lookup failed", err)
		}
		return att, nil
	}
}
