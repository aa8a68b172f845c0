package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/avess/gallery-bed/apperr"
	"github.com/avess/gallery-bed/cache"
	"github.com/avess/gallery-bed/database/models"
	"github.com/avess/gallery-bed/database/repo/users"
	"github.com/avess/gallery-bed/utils/crypto"
)

// LoginService handles signup and credential verification.
type LoginService struct {
	users       *users.Repository
	jwt         *JWTService
	cacheHelper *cache.Helper
}

func NewLoginService(usersRepo *users.Repository, jwtService *JWTService, cacheHelper *cache.Helper) *LoginService {
	return &LoginService{users: usersRepo, jwt: jwtService, cacheHelper: cacheHelper}
}

// LoginResult carries the issued token for a verified user.
type LoginResult struct {
	UserID   uint
	Username string
	Role     string
	Token    string
	Expiry   time.Time
}

// Signup validates and registers a new user with an argon2id-hashed
// password.
func (s *LoginService) Signup(username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if l := len(username); l < 3 || l > 64 {
		return nil, apperr.Validation("username must be between 3 and 64 characters")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return nil, apperr.Validation("username must not contain whitespace")
	}
	if len(password) < 8 {
		return nil, apperr.Validation("password must be at least 8 characters")
	}

	hash, err := crypto.GenerateFromPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username: username,
		Password: hash,
		Role:     models.RoleUser,
	}
	if err := s.users.Create(user); err != nil {
		if errors.Is(err, apperr.ErrNameCollision) {
			return nil, apperr.Validation("username already taken")
		}
		return nil, err
	}

	s.cacheHelper.SetUser(user)
	return user, nil
}

// lookupUser fetches a user row by username, cache first.
func (s *LoginService) lookupUser(username string) (*models.User, error) {
	if cached := s.cacheHelper.GetUser(username); cached != nil {
		return cached, nil
	}
	user, err := s.users.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	s.cacheHelper.SetUser(user)
	return user, nil
}

// Login verifies credentials and issues a token. Wrong username and wrong
// password produce the same error.
func (s *LoginService) Login(username, password string) (*LoginResult, error) {
	user, err := s.lookupUser(username)
	if err != nil {
		if errors.Is(err, apperr.ErrUserNotFound) {
			return nil, apperr.Validation("invalid username or password")
		}
		return nil, err
	}

	ok, err := crypto.ComparePasswordAndHash(password, user.Password)
	if err != nil || !ok {
		return nil, apperr.Validation("invalid username or password")
	}

	id := Identity{UserID: user.ID, Username: user.Username, Role: user.Role}
	token, expiry, err := s.jwt.GenerateToken(id)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		Token:    token,
		Expiry:   expiry,
	}, nil
}
