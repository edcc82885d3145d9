// Package turntoken mints and verifies the short-lived signed credential a
// tool-result re-entry must present before the reasoning loop will let it
// resume a turn (spec.md §4.5 step 7's "Tool dispatch (optional
// re-entry)"). Without it a forged or replayed tool callback could inject
// a result into a turn it was never issued for.
//
// Grounded on the teacher's jwt_service.go, reduced from its access/refresh
// token pair (user login sessions, a refresh store, revocation) to a
// single-purpose, store-free turn credential: a turn token is scoped to one
// (conversation, turn, tool call) triple, expires quickly, and is never
// refreshed — a new tool call gets a new token, it does not renew an old one.
package turntoken

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalid  = errors.New("turntoken: invalid token")
	ErrExpired  = errors.New("turntoken: expired token")
	ErrMismatch = errors.New("turntoken: token does not match this turn/tool call")
)

// Claims binds a turn token to exactly the turn and tool call it was issued
// for; Verify rejects a token presented against any other triple even if
// the signature itself is valid.
type Claims struct {
	ConversationID string `json:"cid"`
	TurnID         string `json:"tid"`
	ToolCallID     string `json:"tcid"`
	jwt.RegisteredClaims
}

// Service issues and verifies turn tokens. There is exactly one signing
// key (config.Config.TurnTokenSigningKey) and one fixed TTL; unlike the
// teacher's JWTService there is no refresh flow and no revocation store —
// a turn token that expires is simply re-issued by re-entering the turn.
type Service struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

func New(secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Service{secret: []byte(secret), ttl: ttl, issuer: "mneme-turntoken"}
}

// Issue mints a token scoped to one pending tool call within one turn.
func (s *Service) Issue(conversationID, turnID, toolCallID string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrInvalid
	}
	now := time.Now().UTC()
	claims := Claims{
		ConversationID: conversationID,
		TurnID:         turnID,
		ToolCallID:     toolCallID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   turnID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses tokenString and checks it was issued for exactly this
// (conversationID, turnID, toolCallID) triple.
func (s *Service) Verify(tokenString, conversationID, turnID, toolCallID string) error {
	if len(s.secret) == 0 {
		return ErrInvalid
	}
	if strings.TrimSpace(tokenString) == "" {
		return ErrInvalid
	}
	claims, err := s.parse(tokenString)
	if err != nil {
		return err
	}
	if claims.Issuer != s.issuer || claims.Subject != claims.TurnID {
		return ErrInvalid
	}
	if claims.ConversationID != conversationID || claims.TurnID != turnID || claims.ToolCallID != toolCallID {
		return ErrMismatch
	}
	return nil
}

func (s *Service) parse(tokenString string) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalid
	}
	return claims, nil
}
