package services

import (
	"errors"
	"time"

	"heartchat-service/internal/auth"
	"heartchat-service/internal/models"
	"heartchat-service/internal/repositories/postgres"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type UserService struct {
	users     *postgres.UserRepository
	jwtSecret string
	jwtTTL    time.Duration
}

func NewUserService(users *postgres.UserRepository, jwtSecret string, jwtTTL time.Duration) *UserService {
	return &UserService{users: users, jwtSecret: jwtSecret, jwtTTL: jwtTTL}
}

func (s *UserService) Register(req *models.RegisterRequest) (*models.UserResponse, error) {
	if _, err := s.users.FindByEmail(req.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Username: req.Username,
		Email:    req.Email,
		Password: string(hash),
	}
	if err := s.users.Create(user); err != nil {
		return nil, err
	}
	return toUserResponse(user), nil
}

func (s *UserService) Login(req *models.LoginRequest) (*models.LoginResponse, error) {
	user, err := s.users.FindByEmail(req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := auth.Issue(user.ID, user.Username, s.jwtSecret, s.jwtTTL)
	if err != nil {
		return nil, err
	}
	return &models.LoginResponse{Token: token, User: *toUserResponse(user)}, nil
}

func (s *UserService) GetByID(id uint) (*models.UserResponse, error) {
	user, err := s.users.FindByID(id)
	if err != nil {
		return nil, err
	}
	return toUserResponse(user), nil
}

func toUserResponse(user *models.User) *models.UserResponse {
	return &models.UserResponse{
		ID:          user.ID,
		Email:       user.Email,
		Username:    user.Username,
		HeartPoints: user.HeartPoints,
		CreatedAt:   user.CreatedAt,
	}
}
