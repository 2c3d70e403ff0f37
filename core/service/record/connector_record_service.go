// Package record serves stored record metadata and content for the
// per-record API routes that event envelopes announce downstream.
package record

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rish231294/pipeshub-ai/core/domain"
	"github.com/rish231294/pipeshub-ai/core/port/in"
	"github.com/rish231294/pipeshub-ai/core/port/out"
	"github.com/rish231294/pipeshub-ai/pkg/apperr"
	"github.com/rish231294/pipeshub-ai/pkg/logger"
)

// Connector path segments accepted in record routes.
const (
	segmentGmail = "gmail"
	segmentDrive = "drive"
)

// defaultTokenTTL bounds how long an issued content URL stays valid.
const defaultTokenTTL = time.Hour

// =============================================================================
// Record Service
// =============================================================================

// SignerConfig carries the signed-URL knobs.
type SignerConfig struct {
	Secret  string        // HS256 signing secret
	TTL     time.Duration // token lifetime, defaults to an hour
	BaseURL string        // absolute base for issued content URLs
}

// Service resolves records out of the graph and gates their cached content
// behind short-lived signed tokens.
type Service struct {
	store  out.GraphReader
	bodies out.MailBodyStore
	signer SignerConfig
	log    *logger.Logger
}

var _ in.RecordService = (*Service)(nil)

// NewService creates a new record service.
func NewService(store out.GraphReader, bodies out.MailBodyStore, signer SignerConfig, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	if signer.TTL <= 0 {
		signer.TTL = defaultTokenTTL
	}
	return &Service{
		store:  store,
		bodies: bodies,
		signer: signer,
		log:    log,
	}
}

// contentClaims bind a signed content token to one record of one connector.
type contentClaims struct {
	Connector string `json:"connector"`
	jwt.RegisteredClaims
}

// GetRecordMetadata returns the stored record fields for the given connector
// and record key.
func (s *Service) GetRecordMetadata(ctx context.Context, connector, recordID string) (*in.RecordMetadata, error) {
	rec, err := s.lookup(ctx, connector, recordID)
	if err != nil {
		return nil, err
	}
	return &in.RecordMetadata{
		RecordID:      rec.Key,
		RecordName:    rec.RecordName,
		RecordType:    string(rec.RecordType),
		Version:       rec.Version,
		ConnectorName: rec.ConnectorName,
		OrgID:         rec.OrgID,
		CreatedAt:     rec.CreatedAtTimestamp,
		UpdatedAt:     rec.UpdatedAtTimestamp,
	}, nil
}

// IssueSignedURL mints a short-lived content URL for a record. The token is
// bound to the record and connector it was issued for.
func (s *Service) IssueSignedURL(ctx context.Context, connector, recordID string) (string, error) {
	if _, err := s.lookup(ctx, connector, recordID); err != nil {
		return "", err
	}

	now := time.Now()
	claims := contentClaims{
		Connector: connector,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   recordID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.signer.TTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.signer.Secret))
	if err != nil {
		return "", apperr.InternalWithError(fmt.Errorf("sign content token: %w", err))
	}

	url := fmt.Sprintf("%s/api/v1/%s/record/%s/content?token=%s",
		strings.TrimRight(s.signer.BaseURL, "/"), connector, recordID, token)
	s.log.Debug("[RecordService.IssueSignedURL] issued content url for %s/%s", connector, recordID)
	return url, nil
}

// GetRecordContent validates a signed token and returns the cached body and
// its MIME type. Records whose content never reaches the cache, drive files
// included, report not found.
func (s *Service) GetRecordContent(ctx context.Context, connector, recordID, token string) ([]byte, string, error) {
	if err := s.validateToken(connector, recordID, token); err != nil {
		return nil, "", err
	}
	rec, err := s.lookup(ctx, connector, recordID)
	if err != nil {
		return nil, "", err
	}
	if s.bodies == nil {
		// No body cache configured; content is never served inline.
		return nil, "", apperr.NotFound("record content")
	}

	body, mimeType, err := s.bodies.GetBody(ctx, rec.Key)
	if err != nil {
		return nil, "", apperr.DatabaseError("get record content", err)
	}
	if body == "" {
		return nil, "", apperr.NotFound("record content")
	}
	if mimeType == "" {
		mimeType = domain.MimeTypeGmailContent
	}
	return []byte(body), mimeType, nil
}

// validateToken checks signature, lifetime and record binding.
func (s *Service) validateToken(connector, recordID, token string) error {
	if token == "" {
		return apperr.InvalidToken("missing token")
	}

	claims := &contentClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(s.signer.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return apperr.TokenExpired("")
		}
		return apperr.InvalidToken("invalid token")
	}
	if !parsed.Valid {
		return apperr.InvalidToken("invalid token")
	}
	if claims.Subject != recordID || claims.Connector != connector {
		return apperr.InvalidToken("token was issued for another record")
	}
	return nil
}

// lookup resolves a record key and checks it belongs to the connector named
// in the route. A record reachable under the wrong connector stays hidden.
func (s *Service) lookup(ctx context.Context, connector, recordID string) (*domain.Record, error) {
	want, err := connectorName(connector)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.GetRecordByKey(ctx, recordID)
	if err != nil {
		return nil, apperr.GraphError("get record", err)
	}
	if rec == nil || rec.ConnectorName != want {
		return nil, apperr.NotFound("record")
	}
	return rec, nil
}

// connectorName maps a route segment to the connector name stamped on
// records.
func connectorName(segment string) (string, error) {
	switch segment {
	case segmentGmail:
		return domain.ConnectorGmail, nil
	case segmentDrive:
		return domain.ConnectorDrive, nil
	default:
		return "", apperr.BadRequest(fmt.Sprintf("unknown connector %q", segment))
	}
}
