// Package app is margin's service layer: every operation a client can
// perform, with permission checks, validation, and the wiring between
// the relational store, the permission resolver, search, text history,
// the crawler, the exporter, and mail.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"margin/api/internal/access"
	"margin/api/internal/auth"
	"margin/api/internal/config"
	"margin/api/internal/crawl"
	"margin/api/internal/export"
	"margin/api/internal/search"
	"margin/api/internal/session"
	"margin/api/internal/store"
	"margin/api/internal/textrepo"
	"margin/api/internal/users"
	"margin/api/internal/util"
)

// dataStore is the slice of the relational store the service layer
// uses. Both the Postgres and the SQLite backends satisfy it.
type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	GetUsersByIDs(context.Context, []string) ([]store.User, error)
	CountUsers(context.Context) (int, error)

	InsertDocument(context.Context, store.Document) error
	GetDocument(context.Context, string) (store.Document, error)
	ListDocumentsForUser(context.Context, string, bool) ([]store.Document, error)
	ListPendingCrawls(context.Context, int) ([]store.Document, error)
	UpdateDocumentTitle(context.Context, string, string) error
	UpdateDocumentContent(context.Context, string, string, string) error
	DeleteDocument(context.Context, string) error
	UpsertUserDocument(context.Context, store.UserDocument) error
	DeleteUserDocument(context.Context, string, string) error

	InsertAnnotation(context.Context, store.Annotation) error
	GetAnnotation(context.Context, string) (store.Annotation, error)
	ListDocumentAnnotations(context.Context, string) ([]store.Annotation, error)
	UpdateAnnotation(context.Context, string, string, string, string) error
	UpdateAnnotationAnchor(context.Context, string, int, int, string, string, string) error
	DeleteAnnotation(context.Context, string) error

	InsertComment(context.Context, store.Comment) error
	GetComment(context.Context, string) (store.Comment, error)
	ListAnnotationComments(context.Context, string) ([]store.Comment, error)
	UpdateComment(context.Context, string, string, string) error
	DeleteComment(context.Context, string) error

	InsertChat(context.Context, store.Chat) error
	GetChat(context.Context, string) (store.Chat, error)
	ListDocumentChats(context.Context, string) ([]store.Chat, error)
	AppendChatMessage(context.Context, string, store.ChatMessage) error
	UpdateChat(context.Context, string, string, string) error
	DeleteChat(context.Context, string) error

	InsertGroup(context.Context, store.Group) error
	GetGroup(context.Context, string) (store.Group, error)
	ListGroupsForUser(context.Context, string) ([]store.Group, error)
	RenameGroup(context.Context, string, string) error
	DeleteGroup(context.Context, string) error
	AddGroupMember(context.Context, string, string) error
	RemoveGroupMember(context.Context, string, string) error
	ListGroupMembers(context.Context, string) ([]store.User, error)
	AddGroupDocument(context.Context, string, string) error
	RemoveGroupDocument(context.Context, string, string) error
	ListGroupDocuments(context.Context, string) ([]store.Document, error)

	UpsertPermission(context.Context, store.Permission) error
	DeletePermission(context.Context, string, string, string, string) (bool, error)
	ListResourcePermissions(context.Context, string, string) ([]store.PermissionWithPrincipal, error)
	InsertAccessDenial(context.Context, store.AccessDenial) error
	ListAccessDenials(context.Context, int) ([]store.AccessDenial, error)
}

// searchIndex is the slice of the search facade the service uses.
// Index and delete calls are fire-and-forget inside the facade; only
// queries return data.
type searchIndex interface {
	Search(q search.Query) search.Response
	IndexDocument(doc search.DocumentRecord)
	IndexAnnotation(a search.AnnotationRecord)
	DeleteDocument(id string)
	DeleteAnnotation(id string)
}

// textStore keeps the per-document text revision history.
type textStore interface {
	Snapshot(documentID, text, author, message string) (textrepo.Version, error)
	History(documentID string, limit int) ([]textrepo.Version, error)
	GetVersion(documentID, hash string) (string, textrepo.Version, error)
}

// pageFetcher pulls a URL and returns its readable text.
type pageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (crawl.Page, error)
}

// documentExporter renders a document for download.
type documentExporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

// notifier sends the best-effort mails. An unconfigured mailer reports
// IsConfigured false and is never called.
type notifier interface {
	IsConfigured() bool
	SendShareNotification(to, userName, granterName, resourceType, title, level string) error
	SendGroupInviteNotification(to, userName, inviterName, groupName string) error
}

// Deps carries the collaborating services wired in at startup.
type Deps struct {
	Sessions session.Store
	Users    *users.Service
	Search   searchIndex
	Texts    textStore
	Crawler  pageFetcher
	Exporter documentExporter
	Email    notifier
}

type Service struct {
	cfg      config.Config
	store    dataStore
	resolver *access.Resolver
	guard    *access.Guard
	sessions session.Store
	users    *users.Service
	search   searchIndex
	texts    textStore
	crawler  pageFetcher
	exporter documentExporter
	email    notifier
}

// New builds the service. accessStore is the same backing store seen
// through the resolver's read surface; both concrete stores satisfy
// both interfaces.
func New(cfg config.Config, st dataStore, accessStore access.Store, deps Deps) *Service {
	resolver := access.NewResolver(accessStore)
	resolver.LegacyWorldReadable = cfg.LegacyWorldReadable
	return &Service{
		cfg:      cfg,
		store:    st,
		resolver: resolver,
		guard:    access.NewGuard(resolver),
		sessions: deps.Sessions,
		users:    deps.Users,
		search:   deps.Search,
		texts:    deps.Texts,
		crawler:  deps.Crawler,
		exporter: deps.Exporter,
		email:    deps.Email,
	}
}

// Bootstrap seeds the first account when MARGIN_BOOTSTRAP_EMAIL is set
// and the user table is empty. Subsequent starts are no-ops.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.cfg.BootstrapEmail == "" {
		return nil
	}
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}
	_, err = s.users.SignUp(ctx, users.SignUpRequest{
		Email:    s.cfg.BootstrapEmail,
		Password: s.cfg.BootstrapPassword,
		Name:     s.cfg.BootstrapName,
	})
	if err != nil {
		return fmt.Errorf("bootstrap account: %w", err)
	}
	log.Printf("app: bootstrapped account %s", s.cfg.BootstrapEmail)
	return nil
}

// Session is an issued token pair. Token authenticates requests until
// ExpiresAt; RefreshToken redeems exactly one rotation.
type Session struct {
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
	User         store.User
}

// SignUp registers an account and signs it in.
func (s *Service) SignUp(ctx context.Context, req users.SignUpRequest) (Session, error) {
	user, err := s.users.SignUp(ctx, req)
	var invalid *users.ValidationError
	if errors.As(err, &invalid) {
		return Session{}, domainError(http.StatusUnprocessableEntity, "validation_failed", invalid.Reason, nil)
	}
	if errors.Is(err, users.ErrEmailTaken) {
		return Session{}, domainError(http.StatusConflict, "conflict", "email already registered", nil)
	}
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// SignIn authenticates with email and password.
func (s *Service) SignIn(ctx context.Context, req users.SignInRequest) (Session, error) {
	user, err := s.users.SignIn(ctx, req)
	var invalid *users.ValidationError
	if errors.As(err, &invalid) {
		return Session{}, domainError(http.StatusUnprocessableEntity, "validation_failed", invalid.Reason, nil)
	}
	if errors.Is(err, users.ErrInvalidCredentials) {
		return Session{}, domainError(http.StatusUnauthorized, "unauthorized", "invalid email or password", nil)
	}
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the old token is revoked before the
// new pair is issued, so a replayed token fails.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, domainError(http.StatusUnauthorized, "unauthorized", "refresh token required", nil)
	}
	hash := auth.HashToken(refreshToken)
	partial, err := s.sessions.LookupSession(ctx, hash)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "unauthorized", "invalid or expired refresh token", nil)
	}
	// The Redis backend only round-trips the user ID; load the full row.
	user, err := s.store.GetUserByID(ctx, partial.ID)
	if err != nil {
		return Session{}, fetchErr("user", err)
	}
	if err := s.sessions.RevokeSession(ctx, hash); err != nil {
		return Session{}, fmt.Errorf("revoke refresh session: %w", err)
	}
	return s.issueSession(ctx, user)
}

// Logout revokes the refresh token. Unknown tokens revoke to nothing;
// logout is idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeSession(ctx, auth.HashToken(refreshToken))
}

// SessionFromToken validates an access token and returns the account
// it belongs to. Deleted accounts fail even while the token is valid.
func (s *Service) SessionFromToken(ctx context.Context, token string) (store.User, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return store.User{}, domainError(http.StatusUnauthorized, "unauthorized", "invalid or expired token", nil)
	}
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, domainError(http.StatusUnauthorized, "unauthorized", "account no longer exists", nil)
	}
	if err != nil {
		return store.User{}, fmt.Errorf("get user: %w", err)
	}
	user.PasswordHash = ""
	return user, nil
}

// issueSession mints the access token and stores the hashed refresh
// token. Only the hash is persisted; the raw refresh token lives in
// the returned Session and nowhere else.
func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	expiresAt := time.Now().Add(s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		Name:  user.Name,
		JTI:   util.NewID("jti"),
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}

	refresh := util.NewID("rft") + util.NewID("")
	if err := s.sessions.SaveSession(ctx, auth.HashToken(refresh), user.ID, time.Now().Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	user.PasswordHash = ""
	return Session{
		Token:        token,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		User:         user,
	}, nil
}

// require runs the permission guard and converts a denial into the
// domain error, recording the audit row on the way.
func (s *Service) require(ctx context.Context, userID string, typ access.ResourceType, id string, level access.Level) error {
	err := s.guard.Require(ctx, userID, typ, id, level)
	if err == nil {
		return nil
	}
	var denied *access.AuthorizationError
	if !errors.As(err, &denied) {
		return err
	}
	s.recordDenial(userID, denied)
	return domainError(http.StatusForbidden, "forbidden", "insufficient permission", map[string]any{
		"resourceType": string(denied.ResourceType),
		"resourceId":   denied.ResourceID,
		"required":     string(denied.Required),
		"actual":       string(denied.Actual),
	})
}

// recordDenial writes the audit row in the background. A slow or
// broken audit table never blocks the caller.
func (s *Service) recordDenial(userID string, denied *access.AuthorizationError) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.store.InsertAccessDenial(ctx, store.AccessDenial{
			UserID:        userID,
			ResourceType:  string(denied.ResourceType),
			ResourceID:    denied.ResourceID,
			RequiredLevel: string(denied.Required),
			ActualLevel:   string(denied.Actual),
		})
		if err != nil {
			log.Printf("app: record access denial: %v", err)
		}
	}()
}

// lookupAuthors resolves a set of user IDs to display rows, password
// hashes stripped, ordered by name.
func (s *Service) lookupAuthors(ctx context.Context, ids map[string]struct{}) ([]store.User, error) {
	if len(ids) == 0 {
		return []store.User{}, nil
	}
	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	authors, err := s.store.GetUsersByIDs(ctx, list)
	if err != nil {
		return nil, fmt.Errorf("get authors: %w", err)
	}
	for i := range authors {
		authors[i].PasswordHash = ""
	}
	return authors, nil
}
