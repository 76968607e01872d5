package peer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals a wrong wallet hash or secret.
	ErrInvalidCredentials = errors.New("peer: invalid credentials")
	// ErrWeakSecret signals the access secret doesn't meet requirements.
	ErrWeakSecret = errors.New("peer: secret must be at least 8 characters")
)

// Repository defines the data access the service requires.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (Peer, error)
	GetByWallet(ctx context.Context, walletHash string) (Peer, error)
	GetByID(ctx context.Context, id string) (Peer, error)
	OwnsPaymentMethods(ctx context.Context, walletHash string, methodIDs []string) (bool, error)
}

// Service handles peer enrollment and session tokens. Tokens carry the
// wallet hash that downstream permission predicates compare against.
type Service struct {
	repo      Repository
	jwtSecret []byte
}

// LoginResult bundles the token and peer returned after a successful login.
type LoginResult struct {
	Token string
	Peer  Peer
}

func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
	}
}

// Register enrolls a new peer, storing a bcrypt hash of its access secret.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Peer, error) {
	if len(req.Secret) < 8 {
		return nil, ErrWeakSecret
	}
	if req.WalletHash == "" || req.PublicKey == "" || req.Address == "" {
		return nil, fmt.Errorf("peer: wallet_hash, public_key and address are required")
	}

	secretHash, err := bcrypt.GenerateFromPassword([]byte(req.Secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("peer: hash secret: %w", err)
	}

	p, err := s.repo.Create(ctx, CreateParams{
		WalletHash: req.WalletHash,
		PublicKey:  req.PublicKey,
		Address:    req.Address,
		SecretHash: string(secretHash),
		IsArbiter:  req.IsArbiter,
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Login authenticates a peer and returns a session token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	p, err := s.repo.GetByWallet(ctx, req.WalletHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(p.SecretHash), []byte(req.Secret)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.generateToken(p.WalletHash)
	if err != nil {
		return LoginResult{}, fmt.Errorf("peer: generate token: %w", err)
	}

	return LoginResult{Token: token, Peer: p}, nil
}

// VerifyToken validates a session token and returns the caller's wallet hash.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("peer: parse token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		wallet, ok := claims["wallet_hash"].(string)
		if !ok || wallet == "" {
			return "", fmt.Errorf("peer: invalid wallet_hash in token")
		}
		return wallet, nil
	}

	return "", fmt.Errorf("peer: invalid token")
}

func (s *Service) generateToken(walletHash string) (string, error) {
	claims := jwt.MapClaims{
		"wallet_hash": walletHash,
		"exp":         time.Now().Add(24 * time.Hour).Unix(),
		"iat":         time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
