package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-tenantquery/core"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var ErrInvalidConfig = errors.New("auth: invalid verifier config")

type Config struct {
	Issuer     string
	Audience   string
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

func ConfigFromCore(cfg core.TokenConfig) Config {
	return Config{
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		Secret:     cfg.Secret,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		Leeway:     cfg.Leeway,
	}
}

// Claims is the signed payload of both token types. Type keeps access and
// refresh tokens apart.
type Claims struct {
	jwt.RegisteredClaims
	TenantID    string    `json:"tenant_id,omitempty"`
	Role        string    `json:"role,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	SessionID   string    `json:"sid,omitempty"`
	Type        TokenType `json:"type"`
}

type AccessInput struct {
	SubjectID   string
	TenantID    string
	Role        string
	Permissions []string
	SessionID   string
	TTL         time.Duration
}

func AccessInputFrom(auth core.AuthContext) AccessInput {
	return AccessInput{
		SubjectID:   auth.SubjectID,
		TenantID:    auth.TenantID,
		Role:        auth.Role,
		Permissions: append([]string(nil), auth.Permissions...),
		SessionID:   auth.SessionID,
	}
}

type RefreshIdentity struct {
	SubjectID string
	TenantID  string
	SessionID string
	TokenID   string
	ExpiresAt time.Time
}

type IssuedToken struct {
	Token     string
	TokenID   string
	Type      TokenType
	ExpiresAt time.Time
}

// SubjectResolver loads the current role and permissions of a subject when
// an access token is reissued from a refresh token.
type SubjectResolver interface {
	ResolveSubject(ctx context.Context, identity RefreshIdentity) (core.AuthContext, error)
}

type SubjectResolverFunc func(ctx context.Context, identity RefreshIdentity) (core.AuthContext, error)

func (f SubjectResolverFunc) ResolveSubject(ctx context.Context, identity RefreshIdentity) (core.AuthContext, error) {
	return f(ctx, identity)
}

type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type Option func(*Verifier)

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(v *Verifier) { v.logger = logger }
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(v *Verifier) { v.loggerProvider = provider }
}

func WithRevocationChecker(checker RevocationChecker) Option {
	return func(v *Verifier) { v.revocations = checker }
}

func WithSubjectResolver(resolver SubjectResolver) Option {
	return func(v *Verifier) { v.subjects = resolver }
}

func WithNormalizer(normalizer *core.ErrorNormalizer) Option {
	return func(v *Verifier) {
		if normalizer != nil {
			v.normalizer = normalizer
		}
	}
}

func WithTokenIDGenerator(next func() string) Option {
	return func(v *Verifier) {
		if next != nil {
			v.nextID = next
		}
	}
}

type Verifier struct {
	cfg            Config
	secret         []byte
	now            func() time.Time
	nextID         func() string
	revocations    RevocationChecker
	subjects       SubjectResolver
	normalizer     *core.ErrorNormalizer
	logger         core.Logger
	loggerProvider core.LoggerProvider
}

func NewVerifier(cfg Config, opts ...Option) (*Verifier, error) {
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("%w: secret is required", ErrInvalidConfig)
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("%w: issuer is required", ErrInvalidConfig)
	}
	if cfg.Audience == "" {
		return nil, fmt.Errorf("%w: audience is required", ErrInvalidConfig)
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.Leeway < 0 {
		cfg.Leeway = 0
	}

	v := &Verifier{
		cfg:    cfg,
		secret: []byte(cfg.Secret),
		now:    time.Now,
		nextID: uuid.NewString,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(v)
	}
	if v.normalizer == nil {
		v.normalizer = core.NewErrorNormalizer(core.WithFamily(core.FamilyCredential, CredentialErrorMapper))
	}
	v.logger = core.ResolveLogger("tenantquery.auth", v.loggerProvider, v.logger)
	return v, nil
}

func (v *Verifier) IssueAccess(input AccessInput) (IssuedToken, error) {
	subject := strings.TrimSpace(input.SubjectID)
	role := strings.TrimSpace(input.Role)
	if subject == "" || role == "" {
		appErr := core.NewError(core.KindValidation, core.CodeValidationFailed, "Access token claims are incomplete")
		if subject == "" {
			appErr.WithDetail("subject_id", "is required")
		}
		if role == "" {
			appErr.WithDetail("role", "is required")
		}
		return IssuedToken{}, appErr
	}
	ttl := input.TTL
	if ttl <= 0 {
		ttl = v.cfg.AccessTTL
	}
	claims := v.registered(subject, ttl)
	return v.sign(Claims{
		RegisteredClaims: claims,
		TenantID:         strings.TrimSpace(input.TenantID),
		Role:             role,
		Permissions:      append([]string(nil), input.Permissions...),
		SessionID:        strings.TrimSpace(input.SessionID),
		Type:             TokenTypeAccess,
	})
}

// IssueRefresh signs a refresh token with the minimal identity claims.
func (v *Verifier) IssueRefresh(subjectID string, tenantID string, sessionID string) (IssuedToken, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return IssuedToken{}, core.NewError(core.KindValidation, core.CodeValidationFailed, "Refresh token claims are incomplete").
			WithDetail("subject_id", "is required")
	}
	return v.sign(Claims{
		RegisteredClaims: v.registered(subjectID, v.cfg.RefreshTTL),
		TenantID:         strings.TrimSpace(tenantID),
		SessionID:        strings.TrimSpace(sessionID),
		Type:             TokenTypeRefresh,
	})
}

func (v *Verifier) VerifyAccess(token string) (core.AuthContext, error) {
	claims, err := v.verify(token, TokenTypeAccess)
	if err != nil {
		return core.AuthContext{}, err
	}
	return authFromClaims(claims), nil
}

func (v *Verifier) VerifyRefresh(token string) (RefreshIdentity, error) {
	claims, err := v.verify(token, TokenTypeRefresh)
	if err != nil {
		return RefreshIdentity{}, err
	}
	return refreshFromClaims(claims), nil
}

// Authenticate verifies the access token carried in an Authorization header
// and rejects revoked tokens.
func (v *Verifier) Authenticate(ctx context.Context, header string) (core.AuthContext, error) {
	token, err := ParseBearer(header)
	if err != nil {
		v.logFailure("bearer header rejected", err)
		return core.AuthContext{}, err
	}
	claims, err := v.verify(token, TokenTypeAccess)
	if err != nil {
		return core.AuthContext{}, err
	}
	if err := v.ensureNotRevoked(ctx, claims.ID); err != nil {
		return core.AuthContext{}, err
	}
	return authFromClaims(claims), nil
}

// RotateAccess issues a new access token from a valid refresh token. The
// refresh token itself stays valid until it expires or is revoked.
func (v *Verifier) RotateAccess(ctx context.Context, refreshToken string) (IssuedToken, core.AuthContext, error) {
	if v.subjects == nil {
		return IssuedToken{}, core.AuthContext{}, fmt.Errorf("%w: subject resolver is required for rotation", ErrInvalidConfig)
	}
	identity, err := v.VerifyRefresh(refreshToken)
	if err != nil {
		return IssuedToken{}, core.AuthContext{}, err
	}
	if err := v.ensureNotRevoked(ctx, identity.TokenID); err != nil {
		return IssuedToken{}, core.AuthContext{}, err
	}

	current, err := v.subjects.ResolveSubject(ctx, identity)
	if err != nil {
		appErr := v.normalizer.Classify(err)
		v.logFailure("subject resolution failed", appErr)
		return IssuedToken{}, core.AuthContext{}, appErr
	}
	if current.SubjectID != "" && current.SubjectID != identity.SubjectID {
		return IssuedToken{}, core.AuthContext{}, invalidClaimsError("Refresh token subject no longer matches")
	}
	if current.TenantID != identity.TenantID {
		return IssuedToken{}, core.AuthContext{}, core.NewError(core.KindForbidden, core.CodeTenantMismatch, "Subject tenant changed since refresh token was issued").
			WithContext(map[string]any{"subject_id": identity.SubjectID, "tenant_id": identity.TenantID})
	}

	current.SubjectID = identity.SubjectID
	current.TenantID = identity.TenantID
	current.SessionID = identity.SessionID
	issued, err := v.IssueAccess(AccessInputFrom(current))
	if err != nil {
		return IssuedToken{}, core.AuthContext{}, err
	}
	return issued, current.Clone(), nil
}

func (v *Verifier) verify(raw string, expected TokenType) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, core.NewError(core.KindUnauthorized, core.CodeEmptyToken, "Bearer token is empty")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, v.keyFunc, v.parserOptions()...)
	if err != nil {
		appErr := v.normalizer.Classify(err)
		v.logFailure("token verification failed", appErr)
		return nil, appErr
	}
	if !token.Valid {
		return nil, invalidClaimsError("Token is invalid")
	}
	if claims.Type != expected {
		appErr := wrongTypeError(expected, claims.Type)
		v.logFailure("token type rejected", appErr)
		return nil, appErr
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, invalidClaimsError("Token subject is missing")
	}
	if expected == TokenTypeAccess && strings.TrimSpace(claims.Role) == "" {
		return nil, invalidClaimsError("Token role is missing")
	}
	return claims, nil
}

// keyFunc pins HS256 on top of the parser's method allow list.
func (v *Verifier) keyFunc(token *jwt.Token) (any, error) {
	if token.Method != jwt.SigningMethodHS256 {
		return nil, fmt.Errorf("%w: unexpected signing method %v", jwt.ErrTokenUnverifiable, token.Header["alg"])
	}
	return v.secret, nil
}

func (v *Verifier) parserOptions() []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithTimeFunc(v.now),
	}
}

func (v *Verifier) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := v.now()
	return jwt.RegisteredClaims{
		Issuer:    v.cfg.Issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{v.cfg.Audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        v.nextID(),
	}
}

func (v *Verifier) sign(claims Claims) (IssuedToken, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return IssuedToken{}, core.NewError(core.KindInternal, core.CodeInternal, "").WithCause(err)
	}
	return IssuedToken{
		Token:     signed,
		TokenID:   claims.ID,
		Type:      claims.Type,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (v *Verifier) ensureNotRevoked(ctx context.Context, tokenID string) error {
	if v.revocations == nil || strings.TrimSpace(tokenID) == "" {
		return nil
	}
	revoked, err := v.revocations.IsRevoked(ctx, tokenID)
	if err != nil {
		appErr := v.normalizer.Classify(err)
		v.logFailure("revocation lookup failed", appErr)
		return appErr
	}
	if revoked {
		appErr := revokedError(tokenID)
		v.logFailure("revoked token presented", appErr)
		return appErr
	}
	return nil
}

func (v *Verifier) logFailure(message string, err error) {
	appErr, ok := core.AsApplicationError(err)
	if !ok {
		return
	}
	fields := map[string]any{"code": appErr.Code}
	for key, value := range appErr.Context {
		fields[key] = value
	}
	level := "debug"
	if appErr.Kind != core.KindUnauthorized {
		level = "warn"
	}
	core.LogFields(v.logger, level, message, fields)
}

func authFromClaims(claims *Claims) core.AuthContext {
	return core.AuthContext{
		SubjectID:   claims.Subject,
		TenantID:    claims.TenantID,
		Role:        claims.Role,
		Permissions: append([]string(nil), claims.Permissions...),
		SessionID:   claims.SessionID,
	}
}

func refreshFromClaims(claims *Claims) RefreshIdentity {
	identity := RefreshIdentity{
		SubjectID: claims.Subject,
		TenantID:  claims.TenantID,
		SessionID: claims.SessionID,
		TokenID:   claims.ID,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity
}
